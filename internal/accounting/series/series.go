// Package series allocates document numbers per empresa and series.
// Allocation runs inside the caller's transaction against a counter row, so
// two concurrent postings can never observe the same number.
package series

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Series codes used across the application.
const (
	Asientos       = "ASI"
	FacturasVenta  = "FV"
	FacturasCompra = "FC"
	NotasCredito   = "NC"
	Pagos          = "PG"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Format renders a document number, zero-padded to five digits.
func Format(serie string, n int64) string {
	return fmt.Sprintf("%s-%05d", serie, n)
}

// Next atomically advances the counter for (empresa, serie) and returns the
// formatted number. The upsert increments under row lock; no read-then-write
// window exists.
func Next(ctx context.Context, q Querier, empresaID int64, serie string) (string, error) {
	var n int64
	err := q.QueryRow(ctx, `INSERT INTO numeraciones (empresa_id, serie, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (empresa_id, serie) DO UPDATE SET last_value = numeraciones.last_value + 1
RETURNING last_value`, empresaID, serie).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("series: next %s: %w", serie, err)
	}
	return Format(serie, n), nil
}
