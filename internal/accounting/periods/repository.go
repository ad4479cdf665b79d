package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
)

// Repository encapsulates DB operations for fiscal years and periods.
type Repository interface {
	ListFiscalYears(ctx context.Context, empresaID int64) ([]FiscalYear, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error)
	GetPeriod(ctx context.Context, periodID int64) (Period, error)
	FindPeriodByDate(ctx context.Context, empresaID int64, date time.Time) (Period, error)
	ListClosureAudit(ctx context.Context, empresaID int64, limit int) ([]ClosureAudit, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	GetFiscalYearForUpdate(ctx context.Context, fiscalYearID int64) (FiscalYear, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (Period, error)
	ListPeriodsForUpdate(ctx context.Context, fiscalYearID int64) ([]Period, error)
	PeriodTotals(ctx context.Context, empresaID int64, from, to time.Time) (PeriodTotals, error)
	UpdatePeriodStatus(ctx context.Context, p Period) error
	UpdateFiscalYearStatus(ctx context.Context, fy FiscalYear) error
	AppendClosureAudit(ctx context.Context, audit ClosureAudit) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const fiscalYearCols = `id, empresa_id, year, start_date, end_date, status, closed_by, closed_at, created_at, updated_at`
const periodCols = `id, fiscal_year_id, empresa_id, month, name, start_date, end_date, status, permite_asientos, closed_debit, closed_credit, closed_entry_count, created_at, updated_at`

func scanFiscalYear(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	err := row.Scan(&fy.ID, &fy.EmpresaID, &fy.Year, &fy.StartDate, &fy.EndDate, &fy.Status, &fy.ClosedBy, &fy.ClosedAt, &fy.CreatedAt, &fy.UpdatedAt)
	return fy, err
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.EmpresaID, &p.Month, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.PermiteAsientos, &p.ClosedDebit, &p.ClosedCredit, &p.ClosedEntryCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) ListFiscalYears(ctx context.Context, empresaID int64) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT `+fiscalYearCols+` FROM ejercicios WHERE empresa_id=$1 ORDER BY year DESC`, empresaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		fy, err := scanFiscalYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, fy)
	}
	return years, rows.Err()
}

func (r *repository) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodCols+` FROM periodos WHERE fiscal_year_id=$1 ORDER BY month`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *repository) GetPeriod(ctx context.Context, periodID int64) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodCols+` FROM periodos WHERE id=$1`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) FindPeriodByDate(ctx context.Context, empresaID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodCols+` FROM periodos
WHERE empresa_id=$1 AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, empresaID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) ListClosureAudit(ctx context.Context, empresaID int64, limit int) ([]ClosureAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, empresa_id, period_id, fiscal_year_id, action, actor_id, reason, observations, status_before, status_after, total_debit, total_credit, entry_count, occurred_at
FROM cierres_auditoria WHERE empresa_id=$1 ORDER BY occurred_at DESC LIMIT $2`, empresaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var audits []ClosureAudit
	for rows.Next() {
		var a ClosureAudit
		if err := rows.Scan(&a.ID, &a.EmpresaID, &a.PeriodID, &a.FiscalYearID, &a.Action, &a.ActorID, &a.Reason, &a.Observations, &a.StatusBefore, &a.StatusAfter, &a.TotalDebit, &a.TotalCredit, &a.EntryCount, &a.At); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ejercicios (empresa_id, year, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		fy.EmpresaID, fy.Year, fy.StartDate, fy.EndDate, fy.Status)
	if err := row.Scan(&fy.ID, &fy.CreatedAt, &fy.UpdatedAt); err != nil {
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *txRepository) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO periodos (fiscal_year_id, empresa_id, month, name, start_date, end_date, status, permite_asientos)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		p.FiscalYearID, p.EmpresaID, p.Month, p.Name, p.StartDate, p.EndDate, p.Status, p.PermiteAsientos)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetFiscalYearForUpdate(ctx context.Context, fiscalYearID int64) (FiscalYear, error) {
	fy, err := scanFiscalYear(r.tx.QueryRow(ctx, `SELECT `+fiscalYearCols+` FROM ejercicios WHERE id=$1 FOR UPDATE`, fiscalYearID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodCols+` FROM periodos WHERE id=$1 FOR UPDATE`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) ListPeriodsForUpdate(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodCols+` FROM periodos WHERE fiscal_year_id=$1 ORDER BY month FOR UPDATE`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *txRepository) PeriodTotals(ctx context.Context, empresaID int64, from, to time.Time) (PeriodTotals, error) {
	var totals PeriodTotals
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(l.debit) FILTER (WHERE e.status='confirmado'), 0),
COALESCE(SUM(l.credit) FILTER (WHERE e.status='confirmado'), 0),
COUNT(DISTINCT e.id) FILTER (WHERE e.status='confirmado'),
COUNT(DISTINCT e.id) FILTER (WHERE e.status<>'confirmado')
FROM asientos e
LEFT JOIN movimientos l ON l.asiento_id = e.id
WHERE e.empresa_id=$1 AND e.date BETWEEN $2 AND $3`, empresaID, from, to).
		Scan(&totals.Debit, &totals.Credit, &totals.EntryCount, &totals.Unconfirmed)
	if err != nil {
		return PeriodTotals{}, err
	}
	return totals, nil
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, p Period) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE periodos SET status=$2, permite_asientos=$3, closed_debit=$4, closed_credit=$5, closed_entry_count=$6, updated_at=NOW() WHERE id=$1`,
		p.ID, p.Status, p.PermiteAsientos, p.ClosedDebit, p.ClosedCredit, p.ClosedEntryCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) UpdateFiscalYearStatus(ctx context.Context, fy FiscalYear) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ejercicios SET status=$2, closed_by=$3, closed_at=$4, updated_at=NOW() WHERE id=$1`,
		fy.ID, fy.Status, fy.ClosedBy, fy.ClosedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFiscalYearNotFound
	}
	return nil
}

func (r *txRepository) AppendClosureAudit(ctx context.Context, audit ClosureAudit) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO cierres_auditoria (empresa_id, period_id, fiscal_year_id, action, actor_id, reason, observations, status_before, status_after, total_debit, total_credit, entry_count, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		audit.EmpresaID, audit.PeriodID, audit.FiscalYearID, audit.Action, audit.ActorID, audit.Reason, audit.Observations, audit.StatusBefore, audit.StatusAfter, audit.TotalDebit, audit.TotalCredit, audit.EntryCount, audit.At)
	return err
}
