package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/series"
)

// Repository provides read access plus transaction entry for AP.
type Repository interface {
	ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]PurchaseInvoice, error)
	GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, error)
	GetPayableByInvoice(ctx context.Context, invoiceID int64) (Payable, error)
	GetPayable(ctx context.Context, id int64) (Payable, error)
	ListOpenPayables(ctx context.Context, empresaID int64) ([]Payable, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	SetPaymentJournalEntry(ctx context.Context, paymentID, entryID int64) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, empresaID int64, serie string) (string, error)
	InsertInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error)
	InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []PurchaseInvoiceLine) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (PurchaseInvoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	SetJournalEntry(ctx context.Context, id, entryID int64) error
	InsertPayable(ctx context.Context, p Payable) (Payable, error)
	GetPayableForUpdate(ctx context.Context, invoiceID int64) (Payable, error)
	UpdatePayable(ctx context.Context, id int64, saldo float64, estado PayableStatus) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const invoiceCols = `id, empresa_id, number, proveedor_nombre, proveedor_documento, partner_id, date, due_date, currency, subtotal, iva, total, status, journal_entry_id, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := row.Scan(&inv.ID, &inv.EmpresaID, &inv.Number, &inv.ProveedorNombre, &inv.ProveedorDocumento,
		&inv.PartnerID, &inv.Date, &inv.DueDate, &inv.Currency, &inv.Subtotal, &inv.IVA, &inv.Total,
		&inv.Status, &inv.JournalEntryID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseInvoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *repository) ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]PurchaseInvoice, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + invoiceCols + ` FROM facturas_compra WHERE empresa_id=$1`
	args := []any{empresaID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ap: list invoices: %w", err)
	}
	defer rows.Close()
	var out []PurchaseInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceCols+` FROM facturas_compra WHERE id=$1`, id))
	if err != nil {
		return PurchaseInvoice{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, factura_id, line_no, description, subtotal, iva, total
FROM facturas_compra_lineas WHERE factura_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return PurchaseInvoice{}, fmt.Errorf("ap: load lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line PurchaseInvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.LineNo, &line.Description, &line.Subtotal, &line.IVA, &line.Total); err != nil {
			return PurchaseInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

func scanPayable(row pgx.Row) (Payable, error) {
	var p Payable
	err := row.Scan(&p.ID, &p.EmpresaID, &p.InvoiceID, &p.Saldo, &p.Estado, &p.Vencimiento, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payable{}, ErrPayableNotFound
	}
	return p, err
}

const payableCols = `id, empresa_id, factura_id, saldo, estado, vencimiento, updated_at`

func (r *repository) GetPayableByInvoice(ctx context.Context, invoiceID int64) (Payable, error) {
	return scanPayable(r.db.QueryRow(ctx, `SELECT `+payableCols+` FROM cuentas_por_pagar WHERE factura_id=$1`, invoiceID))
}

func (r *repository) GetPayable(ctx context.Context, id int64) (Payable, error) {
	return scanPayable(r.db.QueryRow(ctx, `SELECT `+payableCols+` FROM cuentas_por_pagar WHERE id=$1`, id))
}

func (r *repository) ListOpenPayables(ctx context.Context, empresaID int64) ([]Payable, error) {
	rows, err := r.db.Query(ctx, `SELECT `+payableCols+` FROM cuentas_por_pagar
WHERE empresa_id=$1 AND estado <> 'cancelado' ORDER BY vencimiento, id`, empresaID)
	if err != nil {
		return nil, fmt.Errorf("ap: list payables: %w", err)
	}
	defer rows.Close()
	var out []Payable
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, `SELECT id, empresa_id, number, factura_id, monto, fecha_pago, tipo_pago, cuenta_bancaria_id, referencia, observaciones, journal_entry_id, created_by, created_at
FROM pagos_proveedores WHERE id=$1`, id).
		Scan(&p.ID, &p.EmpresaID, &p.Number, &p.InvoiceID, &p.Monto, &p.FechaPago, &p.TipoPago,
			&p.CuentaBancID, &p.Referencia, &p.Observaciones, &p.JournalEntryID, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *repository) SetPaymentJournalEntry(ctx context.Context, paymentID, entryID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE pagos_proveedores SET journal_entry_id=$2 WHERE id=$1`, paymentID, entryID)
	return err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("ap: begin tx: %w", err)
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

func (r *txRepository) InsertInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO facturas_compra (empresa_id, number, proveedor_nombre, proveedor_documento, partner_id, date, due_date, currency, subtotal, iva, total, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at, updated_at`,
		inv.EmpresaID, inv.Number, inv.ProveedorNombre, inv.ProveedorDocumento, inv.PartnerID,
		inv.Date, inv.DueDate, inv.Currency, inv.Subtotal, inv.IVA, inv.Total, inv.Status, inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return PurchaseInvoice{}, fmt.Errorf("ap: insert invoice: %w", err)
	}
	return inv, nil
}

func (r *txRepository) InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []PurchaseInvoiceLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO facturas_compra_lineas (factura_id, line_no, description, subtotal, iva, total)
VALUES ($1,$2,$3,$4,$5,$6)`, invoiceID, line.LineNo, line.Description, line.Subtotal, line.IVA, line.Total); err != nil {
			return fmt.Errorf("ap: insert invoice line %d: %w", line.LineNo, err)
		}
	}
	return nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (PurchaseInvoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceCols+` FROM facturas_compra WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE facturas_compra SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("ap: update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE facturas_compra SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, id, entryID)
	return err
}

func (r *txRepository) InsertPayable(ctx context.Context, p Payable) (Payable, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO cuentas_por_pagar (empresa_id, factura_id, saldo, estado, vencimiento)
VALUES ($1,$2,$3,$4,$5) RETURNING id, updated_at`,
		p.EmpresaID, p.InvoiceID, p.Saldo, p.Estado, p.Vencimiento)
	if err := row.Scan(&p.ID, &p.UpdatedAt); err != nil {
		return Payable{}, fmt.Errorf("ap: insert payable: %w", err)
	}
	return p, nil
}

func (r *txRepository) GetPayableForUpdate(ctx context.Context, invoiceID int64) (Payable, error) {
	return scanPayable(r.tx.QueryRow(ctx, `SELECT `+payableCols+` FROM cuentas_por_pagar WHERE factura_id=$1 FOR UPDATE`, invoiceID))
}

func (r *txRepository) UpdatePayable(ctx context.Context, id int64, saldo float64, estado PayableStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE cuentas_por_pagar SET saldo=$2, estado=$3, updated_at=NOW() WHERE id=$1`, id, saldo, estado)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO pagos_proveedores (empresa_id, number, factura_id, monto, fecha_pago, tipo_pago, cuenta_bancaria_id, referencia, observaciones, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		p.EmpresaID, p.Number, p.InvoiceID, p.Monto, p.FechaPago, p.TipoPago, p.CuentaBancID, p.Referencia, p.Observaciones, p.CreatedBy)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return Payment{}, fmt.Errorf("ap: insert payment: %w", err)
	}
	return p, nil
}
