package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/ar"
	"github.com/ledgersur/ledgersur/internal/partners"
)

// EventState tracks the lifecycle of a persisted external event.
type EventState string

const (
	EventPendiente EventState = "pendiente"
	EventProcesado EventState = "procesado"
	EventError     EventState = "error"
)

// Event is one append-only row in eventos_externos. The payment columns keep
// the gateway details queryable for reconciliation without re-parsing the raw
// payload.
type Event struct {
	ID               int64
	EventID          string
	EmpresaID        int64
	TipoEvento       string
	Payload          []byte
	Estado           EventState
	MetodoPago       string
	Pasarela         string
	ComisionPasarela float64
	LastError        string
	Retries          int
	FacturaID        *int64
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}

var (
	// ErrDuplicateEvent indicates the event id was already ingested.
	ErrDuplicateEvent = errors.New("webhooks: duplicate event")
	// ErrEventNotFound indicates a missing event row.
	ErrEventNotFound = errors.New("webhooks: event not found")
)

// Repository persists events and runs the ingest transaction. The ingest tx
// spans customer, invoice, partner and commission tables so a failure leaves
// nothing half-applied.
type Repository interface {
	InsertEvent(ctx context.Context, e Event) (Event, error)
	GetEventByEventID(ctx context.Context, empresaID int64, eventID string) (Event, error)
	MarkEventProcessed(ctx context.Context, id int64, facturaID int64) error
	MarkEventFailed(ctx context.Context, id int64, cause string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the cross-module mutations of the ingest transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, empresaID int64, serie string) (string, error)
	UpsertCliente(ctx context.Context, c ar.Cliente) (ar.Cliente, error)
	InsertInvoice(ctx context.Context, inv ar.SalesInvoice) (ar.SalesInvoice, error)
	InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []ar.SalesInvoiceLine) ([]ar.SalesInvoiceLine, error)
	UpsertPartner(ctx context.Context, p partners.Partner) (partners.Partner, error)
	InsertCommission(ctx context.Context, c partners.Commission) (partners.Commission, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) InsertEvent(ctx context.Context, e Event) (Event, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO eventos_externos (event_id, empresa_id, tipo_evento, payload, estado, metodo_pago, pasarela, comision_pasarela)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		e.EventID, e.EmpresaID, e.TipoEvento, e.Payload, e.Estado, e.MetodoPago, e.Pasarela, e.ComisionPasarela)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Event{}, ErrDuplicateEvent
		}
		return Event{}, fmt.Errorf("webhooks: insert event: %w", err)
	}
	return e, nil
}

const eventCols = `id, event_id, empresa_id, tipo_evento, payload, estado, metodo_pago, pasarela, comision_pasarela, last_error, retries, factura_id, created_at, processed_at`

func (r *repository) GetEventByEventID(ctx context.Context, empresaID int64, eventID string) (Event, error) {
	var e Event
	err := r.db.QueryRow(ctx, `SELECT `+eventCols+` FROM eventos_externos WHERE empresa_id=$1 AND event_id=$2`, empresaID, eventID).
		Scan(&e.ID, &e.EventID, &e.EmpresaID, &e.TipoEvento, &e.Payload, &e.Estado,
			&e.MetodoPago, &e.Pasarela, &e.ComisionPasarela,
			&e.LastError, &e.Retries, &e.FacturaID, &e.CreatedAt, &e.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return e, err
}

func (r *repository) MarkEventProcessed(ctx context.Context, id int64, facturaID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE eventos_externos SET estado='procesado', factura_id=$2, last_error='', processed_at=NOW() WHERE id=$1`, id, facturaID)
	return err
}

func (r *repository) MarkEventFailed(ctx context.Context, id int64, cause string) error {
	_, err := r.db.Exec(ctx, `UPDATE eventos_externos SET estado='error', last_error=$2, retries=retries+1 WHERE id=$1`, id, cause)
	return err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("webhooks: begin tx: %w", err)
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

func (r *txRepository) UpsertCliente(ctx context.Context, c ar.Cliente) (ar.Cliente, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO clientes (empresa_id, rut, razon_social, email, direccion)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (empresa_id, rut) DO UPDATE SET
  razon_social=EXCLUDED.razon_social, email=EXCLUDED.email, direccion=EXCLUDED.direccion, updated_at=NOW()
RETURNING id, created_at, updated_at`, c.EmpresaID, c.RUT, c.RazonSocial, c.Email, c.Direccion)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return ar.Cliente{}, fmt.Errorf("webhooks: upsert cliente: %w", err)
	}
	return c, nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv ar.SalesInvoice) (ar.SalesInvoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO facturas_venta (empresa_id, number, cliente_id, date, due_date, currency, subtotal, iva, total, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		inv.EmpresaID, inv.Number, inv.ClienteID, inv.Date, inv.DueDate, inv.Currency,
		inv.Subtotal, inv.IVA, inv.Total, inv.Status, inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return ar.SalesInvoice{}, fmt.Errorf("webhooks: insert invoice: %w", err)
	}
	return inv, nil
}

func (r *txRepository) InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []ar.SalesInvoiceLine) ([]ar.SalesInvoiceLine, error) {
	for i := range lines {
		row := r.tx.QueryRow(ctx, `INSERT INTO facturas_venta_lineas (factura_id, line_no, description, quantity, unit_price, iva_pct, subtotal, iva, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			invoiceID, lines[i].LineNo, lines[i].Description, lines[i].Quantity, lines[i].UnitPrice,
			lines[i].IVAPct, lines[i].Subtotal, lines[i].IVA, lines[i].Total)
		if err := row.Scan(&lines[i].ID); err != nil {
			return nil, fmt.Errorf("webhooks: insert invoice line %d: %w", lines[i].LineNo, err)
		}
		lines[i].InvoiceID = invoiceID
	}
	return lines, nil
}

func (r *txRepository) UpsertPartner(ctx context.Context, p partners.Partner) (partners.Partner, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO partners (empresa_id, documento, razon_social, email, comision_pct, frecuencia, dia_facturacion, proxima_facturacion, activo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (empresa_id, documento) DO UPDATE SET
  razon_social=EXCLUDED.razon_social, email=EXCLUDED.email, comision_pct=EXCLUDED.comision_pct, updated_at=NOW()
RETURNING id, frecuencia, proxima_facturacion`,
		p.EmpresaID, p.Documento, p.RazonSocial, p.Email, p.ComisionPct, p.Frecuencia,
		p.DiaFacturacion, p.ProximaFacturacion, p.Activo)
	if err := row.Scan(&p.ID, &p.Frecuencia, &p.ProximaFacturacion); err != nil {
		return partners.Partner{}, fmt.Errorf("webhooks: upsert partner: %w", err)
	}
	return p, nil
}

func (r *txRepository) InsertCommission(ctx context.Context, c partners.Commission) (partners.Commission, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO comisiones_partners (empresa_id, partner_id, factura_id, factura_linea_id, porcentaje, base_amount, amount, estado_comision, estado_pago)
VALUES ($1,$2,$3,$4,$5,$6,$7,'pendiente','pendiente') RETURNING id, created_at`,
		c.EmpresaID, c.PartnerID, c.FacturaID, c.FacturaLineaID, c.Porcentaje, c.BaseAmount, c.Amount)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return partners.Commission{}, fmt.Errorf("webhooks: insert commission: %w", err)
	}
	c.EstadoComision = partners.ComisionPendiente
	c.EstadoPago = partners.PagoPendiente
	return c, nil
}
