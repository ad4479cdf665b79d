package ar

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/series"
)

// Repository encapsulates DB operations for AR.
type Repository interface {
	UpsertCliente(ctx context.Context, c Cliente) (Cliente, error)
	GetCliente(ctx context.Context, id int64) (Cliente, error)
	ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]SalesInvoice, error)
	GetInvoice(ctx context.Context, id int64) (SalesInvoice, error)
	SaveDGIResponse(ctx context.Context, invoiceID int64, cae string, vencimiento *string, raw any) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, empresaID int64, serie string) (string, error)
	InsertInvoice(ctx context.Context, inv SalesInvoice) (SalesInvoice, error)
	InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []SalesInvoiceLine) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (SalesInvoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	SetJournalEntry(ctx context.Context, id int64, entryID int64) error
	MarkAnulada(ctx context.Context, id int64, notaCreditoID int64) error
	InsertCreditNote(ctx context.Context, nc CreditNote) (CreditNote, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const invoiceCols = `id, empresa_id, number, cliente_id, date, due_date, currency, subtotal, iva, total, status, cae, cae_vencimiento, journal_entry_id, nota_credito_id, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (SalesInvoice, error) {
	var inv SalesInvoice
	err := row.Scan(&inv.ID, &inv.EmpresaID, &inv.Number, &inv.ClienteID, &inv.Date, &inv.DueDate, &inv.Currency,
		&inv.Subtotal, &inv.IVA, &inv.Total, &inv.Status, &inv.CAE, &inv.CAEVencimiento, &inv.JournalEntryID,
		&inv.NotaCreditoID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

// UpsertCliente matches by RUT within the empresa: inserts when absent,
// refreshes commercial fields when present.
func (r *repository) UpsertCliente(ctx context.Context, c Cliente) (Cliente, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO clientes (empresa_id, rut, razon_social, email, direccion)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (empresa_id, rut) DO UPDATE SET razon_social=EXCLUDED.razon_social, email=EXCLUDED.email, direccion=EXCLUDED.direccion, updated_at=NOW()
RETURNING id, created_at, updated_at`, c.EmpresaID, c.RUT, c.RazonSocial, c.Email, c.Direccion)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Cliente{}, err
	}
	return c, nil
}

func (r *repository) GetCliente(ctx context.Context, id int64) (Cliente, error) {
	var c Cliente
	err := r.db.QueryRow(ctx, `SELECT id, empresa_id, rut, razon_social, email, direccion, created_at, updated_at FROM clientes WHERE id=$1`, id).
		Scan(&c.ID, &c.EmpresaID, &c.RUT, &c.RazonSocial, &c.Email, &c.Direccion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cliente{}, ErrClienteNotFound
		}
		return Cliente{}, err
	}
	return c, nil
}

func (r *repository) ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]SalesInvoice, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + invoiceCols + ` FROM facturas_venta WHERE empresa_id=$1`
	args := []any{empresaID}
	if status != "" {
		query += ` AND status=$2 ORDER BY id DESC LIMIT $3 OFFSET $4`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY id DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []SalesInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (SalesInvoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceCols+` FROM facturas_venta WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesInvoice{}, ErrInvoiceNotFound
		}
		return SalesInvoice{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, factura_id, line_no, description, quantity, unit_price, iva_pct, subtotal, iva, total, created_at
FROM facturas_venta_lineas WHERE factura_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return SalesInvoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SalesInvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.LineNo, &line.Description, &line.Quantity, &line.UnitPrice, &line.IVAPct, &line.Subtotal, &line.IVA, &line.Total, &line.CreatedAt); err != nil {
			return SalesInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// SaveDGIResponse stores the tax-authority approval (or its simulation)
// alongside the invoice.
func (r *repository) SaveDGIResponse(ctx context.Context, invoiceID int64, cae string, vencimiento *string, raw any) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE facturas_venta SET cae=$2, cae_vencimiento=$3::date, dgi_response=$4, updated_at=NOW() WHERE id=$1`,
		invoiceID, cae, vencimiento, payload)
	return err
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

func (r *txRepository) NextNumber(ctx context.Context, empresaID int64, serie string) (string, error) {
	return series.Next(ctx, r.tx, empresaID, serie)
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv SalesInvoice) (SalesInvoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO facturas_venta (empresa_id, number, cliente_id, date, due_date, currency, subtotal, iva, total, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		inv.EmpresaID, inv.Number, inv.ClienteID, inv.Date, inv.DueDate, inv.Currency, inv.Subtotal, inv.IVA, inv.Total, inv.Status, inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return SalesInvoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []SalesInvoiceLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO facturas_venta_lineas (factura_id, line_no, description, quantity, unit_price, iva_pct, subtotal, iva, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, invoiceID, line.LineNo, line.Description, line.Quantity, line.UnitPrice, line.IVAPct, line.Subtotal, line.IVA, line.Total); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (SalesInvoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceCols+` FROM facturas_venta WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesInvoice{}, ErrInvoiceNotFound
		}
		return SalesInvoice{}, err
	}
	return inv, nil
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE facturas_venta SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) SetJournalEntry(ctx context.Context, id int64, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE facturas_venta SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, id, entryID)
	return err
}

func (r *txRepository) MarkAnulada(ctx context.Context, id int64, notaCreditoID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE facturas_venta SET status='anulada', nota_credito_id=$2, updated_at=NOW() WHERE id=$1`, id, notaCreditoID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) InsertCreditNote(ctx context.Context, nc CreditNote) (CreditNote, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO notas_credito (empresa_id, number, factura_id, date, subtotal, iva, total, journal_entry_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		nc.EmpresaID, nc.Number, nc.InvoiceID, nc.Date, nc.Subtotal, nc.IVA, nc.Total, nc.JournalEntryID, nc.CreatedBy)
	if err := row.Scan(&nc.ID, &nc.CreatedAt); err != nil {
		return CreditNote{}, err
	}
	return nc, nil
}
