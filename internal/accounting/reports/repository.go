package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
)

// Repository aggregates ledger activity in SQL. Sums stay in the database so
// report size is bounded by the chart of accounts, not by entry volume.
type Repository interface {
	AccountBalances(ctx context.Context, empresaID int64, from, to time.Time) ([]AccountBalance, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// AccountBalances returns, per account: the opening balance (confirmed lines
// strictly before from, sign-adjusted by type) and the debit/credit movement
// inside [from, to] from confirmed entries only.
func (r *repository) AccountBalances(ctx context.Context, empresaID int64, from, to time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT
  c.code,
  c.name,
  c.type,
  c.level,
  COALESCE(SUM(l.debit)  FILTER (WHERE e.date <  $2), 0) AS opening_debit,
  COALESCE(SUM(l.credit) FILTER (WHERE e.date <  $2), 0) AS opening_credit,
  COALESCE(SUM(l.debit)  FILTER (WHERE e.date >= $2 AND e.date <= $3), 0) AS period_debit,
  COALESCE(SUM(l.credit) FILTER (WHERE e.date >= $2 AND e.date <= $3), 0) AS period_credit
FROM cuentas c
LEFT JOIN movimientos l ON l.account_id = c.id
LEFT JOIN asientos e ON e.id = l.asiento_id AND e.status = 'confirmado' AND e.empresa_id = c.empresa_id
WHERE c.empresa_id = $1
GROUP BY c.code, c.name, c.type, c.level
ORDER BY c.code`, empresaID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []AccountBalance
	for rows.Next() {
		var (
			bal                   AccountBalance
			openDebit, openCredit float64
		)
		if err := rows.Scan(&bal.Code, &bal.Name, &bal.Type, &bal.Level, &openDebit, &openCredit, &bal.Debit, &bal.Credit); err != nil {
			return nil, err
		}
		bal.Opening = accounts.Account{Type: bal.Type}.Balance(openDebit, openCredit)
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}
