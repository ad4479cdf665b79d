package partners

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/series"
)

// Repository provides partner access plus the settlement transaction.
type Repository interface {
	UpsertPartner(ctx context.Context, p Partner) (Partner, error)
	GetPartner(ctx context.Context, id int64) (Partner, error)
	ListActivePartners(ctx context.Context, empresaID int64) ([]Partner, error)
	ListCommissions(ctx context.Context, empresaID, partnerID int64, estado CommissionState) ([]Commission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	UnpostedSettlement(ctx context.Context, partnerID int64) (SettlementInvoice, float64, int, error)
	SetInvoiceJournalEntry(ctx context.Context, facturaCompraID, entryID int64) error
}

// SettlementInvoice is the purchase-invoice shape the settlement tx writes
// into the AP tables.
type SettlementInvoice struct {
	ID        int64
	EmpresaID int64
	Number    string
	PartnerID int64
	Nombre    string
	Documento string
	Date      time.Time
	Subtotal  float64
	IVA       float64
	Total     float64
}

// TxRepository exposes the mutations that must share the settlement tx.
type TxRepository interface {
	NextNumber(ctx context.Context, empresaID int64, serie string) (string, error)
	GetPartnerForUpdate(ctx context.Context, id int64) (Partner, error)
	PendingCommissionsForUpdate(ctx context.Context, partnerID int64) ([]Commission, error)
	InsertSettlementInvoice(ctx context.Context, inv SettlementInvoice) (SettlementInvoice, error)
	MarkCommissionsFacturada(ctx context.Context, ids []int64, facturaCompraID int64) error
	AdvanceSchedule(ctx context.Context, partnerID int64, next time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const partnerCols = `id, empresa_id, documento, razon_social, email, comision_pct, frecuencia, dia_facturacion, proxima_facturacion, activo, created_at, updated_at`

func scanPartner(row pgx.Row) (Partner, error) {
	var p Partner
	err := row.Scan(&p.ID, &p.EmpresaID, &p.Documento, &p.RazonSocial, &p.Email, &p.ComisionPct,
		&p.Frecuencia, &p.DiaFacturacion, &p.ProximaFacturacion, &p.Activo, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, ErrPartnerNotFound
	}
	return p, err
}

func (r *repository) UpsertPartner(ctx context.Context, p Partner) (Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `INSERT INTO partners (empresa_id, documento, razon_social, email, comision_pct, frecuencia, dia_facturacion, proxima_facturacion, activo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (empresa_id, documento) DO UPDATE SET
  razon_social=EXCLUDED.razon_social, email=EXCLUDED.email, comision_pct=EXCLUDED.comision_pct,
  frecuencia=EXCLUDED.frecuencia, dia_facturacion=EXCLUDED.dia_facturacion, activo=EXCLUDED.activo,
  updated_at=NOW()
RETURNING `+partnerCols,
		p.EmpresaID, p.Documento, p.RazonSocial, p.Email, p.ComisionPct, p.Frecuencia,
		p.DiaFacturacion, p.ProximaFacturacion, p.Activo))
}

func (r *repository) GetPartner(ctx context.Context, id int64) (Partner, error) {
	return scanPartner(r.db.QueryRow(ctx, `SELECT `+partnerCols+` FROM partners WHERE id=$1`, id))
}

func (r *repository) ListActivePartners(ctx context.Context, empresaID int64) ([]Partner, error) {
	rows, err := r.db.Query(ctx, `SELECT `+partnerCols+` FROM partners WHERE empresa_id=$1 AND activo ORDER BY id`, empresaID)
	if err != nil {
		return nil, fmt.Errorf("partners: list: %w", err)
	}
	defer rows.Close()
	var out []Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const commissionCols = `id, empresa_id, partner_id, factura_id, factura_linea_id, porcentaje, base_amount, amount, estado_comision, estado_pago, factura_compra_id, created_at, updated_at`

func scanCommission(row pgx.Row) (Commission, error) {
	var c Commission
	err := row.Scan(&c.ID, &c.EmpresaID, &c.PartnerID, &c.FacturaID, &c.FacturaLineaID,
		&c.Porcentaje, &c.BaseAmount, &c.Amount, &c.EstadoComision, &c.EstadoPago,
		&c.FacturaCompraID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) ListCommissions(ctx context.Context, empresaID, partnerID int64, estado CommissionState) ([]Commission, error) {
	query := `SELECT ` + commissionCols + ` FROM comisiones_partners WHERE empresa_id=$1`
	args := []any{empresaID}
	if partnerID != 0 {
		args = append(args, partnerID)
		query += fmt.Sprintf(` AND partner_id=$%d`, len(args))
	}
	if estado != "" {
		args = append(args, estado)
		query += fmt.Sprintf(` AND estado_comision=$%d`, len(args))
	}
	query += ` ORDER BY id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("partners: list commissions: %w", err)
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UnpostedSettlement finds the partner's oldest settlement invoice that never
// got its journal entry, together with the gross commission base and the
// linked commission count needed to rebuild the payout lines.
func (r *repository) UnpostedSettlement(ctx context.Context, partnerID int64) (SettlementInvoice, float64, int, error) {
	var (
		inv   SettlementInvoice
		gross float64
		count int
	)
	err := r.db.QueryRow(ctx, `SELECT fc.id, fc.empresa_id, fc.number, fc.partner_id, fc.proveedor_nombre, fc.proveedor_documento, fc.date, fc.subtotal, fc.iva, fc.total,
  COALESCE((SELECT SUM(c.base_amount) FROM comisiones_partners c WHERE c.factura_compra_id = fc.id), 0),
  (SELECT COUNT(*) FROM comisiones_partners c WHERE c.factura_compra_id = fc.id)
FROM facturas_compra fc
WHERE fc.partner_id=$1 AND fc.journal_entry_id IS NULL
ORDER BY fc.id LIMIT 1`, partnerID).Scan(
		&inv.ID, &inv.EmpresaID, &inv.Number, &inv.PartnerID, &inv.Nombre, &inv.Documento,
		&inv.Date, &inv.Subtotal, &inv.IVA, &inv.Total, &gross, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return SettlementInvoice{}, 0, 0, ErrNoUnpostedInvoice
	}
	if err != nil {
		return SettlementInvoice{}, 0, 0, fmt.Errorf("partners: unposted settlement: %w", err)
	}
	return inv, gross, count, nil
}

func (r *repository) SetInvoiceJournalEntry(ctx context.Context, facturaCompraID, entryID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE facturas_compra SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, facturaCompraID, entryID)
	return err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("partners: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextNumber(ctx context.Context, empresaID int64, serie string) (string, error) {
	return series.Next(ctx, r.tx, empresaID, serie)
}

func (r *txRepository) GetPartnerForUpdate(ctx context.Context, id int64) (Partner, error) {
	return scanPartner(r.tx.QueryRow(ctx, `SELECT `+partnerCols+` FROM partners WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) PendingCommissionsForUpdate(ctx context.Context, partnerID int64) ([]Commission, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+commissionCols+` FROM comisiones_partners
WHERE partner_id=$1 AND estado_comision='pendiente' AND factura_compra_id IS NULL
ORDER BY id FOR UPDATE`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("partners: pending commissions: %w", err)
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSettlementInvoice writes the purchase invoice, its single line and
// the payable inside the settlement tx. The shared AP tables keep the
// partner invoice visible to the payables flow.
func (r *txRepository) InsertSettlementInvoice(ctx context.Context, inv SettlementInvoice) (SettlementInvoice, error) {
	dueDate := inv.Date.AddDate(0, 0, 10)
	row := r.tx.QueryRow(ctx, `INSERT INTO facturas_compra (empresa_id, number, proveedor_nombre, proveedor_documento, partner_id, date, due_date, currency, subtotal, iva, total, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,'UYU',$8,$9,$10,'pendiente',0) RETURNING id`,
		inv.EmpresaID, inv.Number, inv.Nombre, inv.Documento, inv.PartnerID,
		inv.Date, dueDate, inv.Subtotal, inv.IVA, inv.Total)
	if err := row.Scan(&inv.ID); err != nil {
		return SettlementInvoice{}, fmt.Errorf("partners: insert settlement invoice: %w", err)
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO facturas_compra_lineas (factura_id, line_no, description, subtotal, iva, total)
VALUES ($1,1,$2,$3,$4,$5)`, inv.ID, fmt.Sprintf("Liquidación de comisiones %s", inv.Nombre), inv.Subtotal, inv.IVA, inv.Total); err != nil {
		return SettlementInvoice{}, fmt.Errorf("partners: insert settlement line: %w", err)
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO cuentas_por_pagar (empresa_id, factura_id, saldo, estado, vencimiento)
VALUES ($1,$2,$3,'pendiente',$4)`, inv.EmpresaID, inv.ID, inv.Total, dueDate); err != nil {
		return SettlementInvoice{}, fmt.Errorf("partners: insert payable: %w", err)
	}
	return inv, nil
}

func (r *txRepository) MarkCommissionsFacturada(ctx context.Context, ids []int64, facturaCompraID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE comisiones_partners
SET estado_comision='facturada', factura_compra_id=$2, updated_at=NOW()
WHERE id = ANY($1)`, ids, facturaCompraID)
	return err
}

func (r *txRepository) AdvanceSchedule(ctx context.Context, partnerID int64, next time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE partners SET proxima_facturacion=$2, updated_at=NOW() WHERE id=$1`, partnerID, next)
	return err
}
