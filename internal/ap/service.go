package ap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Poster abstracts the ledger posting service.
type Poster interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	GetBySource(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// Service drives the AP lifecycle: purchase invoices, payables and payments.
type Service struct {
	repo   Repository
	poster Poster
	now    func() time.Time
}

func NewService(repo Repository, poster Poster) *Service {
	return &Service{repo: repo, poster: poster, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoiceInput groups fields to register a factura de compra.
type CreateInvoiceInput struct {
	EmpresaID          int64
	ProveedorNombre    string
	ProveedorDocumento string
	PartnerID          *int64
	Date               time.Time
	DueDate            time.Time
	Currency           string
	Subtotal           float64
	IVA                float64
	ActorID            int64
	Lines              []CreateInvoiceLineInput
}

// CreateInvoiceLineInput is one requested purchase item.
type CreateInvoiceLineInput struct {
	Description string
	Subtotal    float64
	IVA         float64
}

// CreateInvoice allocates the FC number and inserts the header as borrador.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (PurchaseInvoice, error) {
	if in.EmpresaID == 0 {
		return PurchaseInvoice{}, internalShared.ErrEmpresaRequired
	}
	if in.ActorID == 0 {
		return PurchaseInvoice{}, internalShared.ErrActorRequired
	}
	if strings.TrimSpace(in.ProveedorNombre) == "" {
		return PurchaseInvoice{}, fmt.Errorf("ap: proveedor nombre required")
	}
	if in.Subtotal < 0 || in.IVA < 0 {
		return PurchaseInvoice{}, ErrInvalidAmount
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	if in.DueDate.IsZero() {
		in.DueDate = in.Date.AddDate(0, 0, 30)
	}
	if in.Currency == "" {
		in.Currency = "UYU"
	}
	if len(in.Lines) == 0 {
		in.Lines = []CreateInvoiceLineInput{{Description: "Compra " + in.ProveedorNombre, Subtotal: in.Subtotal, IVA: in.IVA}}
	} else {
		var subtotal, iva decimal.Decimal
		for _, line := range in.Lines {
			subtotal = subtotal.Add(decimal.NewFromFloat(line.Subtotal))
			iva = iva.Add(decimal.NewFromFloat(line.IVA))
		}
		in.Subtotal = subtotal.Round(2).InexactFloat64()
		in.IVA = iva.Round(2).InexactFloat64()
	}
	total := decimal.NewFromFloat(in.Subtotal).Add(decimal.NewFromFloat(in.IVA)).Round(2)

	var invoice PurchaseInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, in.EmpresaID, series.FacturasCompra)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertInvoice(ctx, PurchaseInvoice{
			EmpresaID:          in.EmpresaID,
			Number:             number,
			ProveedorNombre:    in.ProveedorNombre,
			ProveedorDocumento: in.ProveedorDocumento,
			PartnerID:          in.PartnerID,
			Date:               in.Date,
			DueDate:            in.DueDate,
			Currency:           in.Currency,
			Subtotal:           in.Subtotal,
			IVA:                in.IVA,
			Total:              total.InexactFloat64(),
			Status:             StatusBorrador,
			CreatedBy:          in.ActorID,
		})
		if err != nil {
			return err
		}
		lines := make([]PurchaseInvoiceLine, 0, len(in.Lines))
		for idx, lineIn := range in.Lines {
			lines = append(lines, PurchaseInvoiceLine{
				LineNo:      idx + 1,
				Description: lineIn.Description,
				Subtotal:    lineIn.Subtotal,
				IVA:         lineIn.IVA,
				Total:       decimal.NewFromFloat(lineIn.Subtotal).Add(decimal.NewFromFloat(lineIn.IVA)).Round(2).InexactFloat64(),
			})
		}
		if err := tx.InsertInvoiceLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		inserted.Lines = lines
		invoice = inserted
		return nil
	})
	if err != nil {
		return PurchaseInvoice{}, err
	}
	return invoice, nil
}

// ConfirmInvoice moves a borrador to pendiente, opens the payable and posts
// the expense entry. A pendiente invoice without a journal entry can be
// confirmed again: the retry skips the payable and reposts under the same
// source reference.
func (s *Service) ConfirmInvoice(ctx context.Context, invoiceID, actorID int64) (PurchaseInvoice, error) {
	if actorID == 0 {
		return PurchaseInvoice{}, internalShared.ErrActorRequired
	}
	var invoice PurchaseInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		switch {
		case current.Status == StatusBorrador:
			if err := tx.UpdateInvoiceStatus(ctx, current.ID, StatusPendiente); err != nil {
				return err
			}
			if _, err := tx.InsertPayable(ctx, Payable{
				EmpresaID:   current.EmpresaID,
				InvoiceID:   current.ID,
				Saldo:       current.Total,
				Estado:      PayablePendiente,
				Vencimiento: current.DueDate,
			}); err != nil {
				return err
			}
			current.Status = StatusPendiente
		case current.Status == StatusPendiente && current.JournalEntryID == nil:
			// An earlier confirm opened the payable but never posted.
		default:
			return ErrInvalidStatus
		}
		invoice = current
		return nil
	})
	if err != nil {
		return PurchaseInvoice{}, err
	}
	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         invoice.Date,
		Memo:         fmt.Sprintf("Factura de compra %s", invoice.Number),
		Reference:    invoice.Number,
		SourceModule: "AP",
		SourceID:     journals.SourceRef("AP", invoice.ID),
		ActorID:      actorID,
		Lines:        journals.PurchaseInvoiceLines(invoice.Number, invoice.ProveedorNombre, invoice.Subtotal, invoice.IVA),
	})
	if err != nil {
		return PurchaseInvoice{}, fmt.Errorf("ap: confirm posting: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetJournalEntry(ctx, invoice.ID, entry.ID)
	})
	if err != nil {
		return PurchaseInvoice{}, err
	}
	entryID := entry.ID
	invoice.JournalEntryID = &entryID
	return invoice, nil
}

// PayInput registers a disbursement against a payable.
type PayInput struct {
	PayableID     int64
	Monto         float64
	FechaPago     time.Time
	TipoPago      journals.PaymentMethod
	CuentaBancID  *int64
	Referencia    string
	Observaciones string
	ActorID       int64
}

// PayPayable records a (possibly partial) payment, reduces the balance and
// posts the cash entry. A payment that clears the balance flips the invoice
// to pagada.
func (s *Service) PayPayable(ctx context.Context, in PayInput) (Payment, error) {
	if in.ActorID == 0 {
		return Payment{}, internalShared.ErrActorRequired
	}
	if in.Monto <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	if in.FechaPago.IsZero() {
		in.FechaPago = s.now()
	}
	if in.TipoPago == "" {
		in.TipoPago = journals.PaymentTransferencia
	}

	ref, err := s.repo.GetPayable(ctx, in.PayableID)
	if err != nil {
		return Payment{}, err
	}

	var (
		payment Payment
		invoice PurchaseInvoice
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, ref.InvoiceID)
		if err != nil {
			return err
		}
		if current.Status != StatusPendiente {
			return ErrInvalidStatus
		}
		payable, err := tx.GetPayableForUpdate(ctx, current.ID)
		if err != nil {
			return err
		}
		saldo := decimal.NewFromFloat(payable.Saldo)
		monto := decimal.NewFromFloat(in.Monto)
		remaining := saldo.Sub(monto).Round(2)
		if remaining.IsNegative() {
			return ErrOverpayment
		}
		number, err := tx.NextNumber(ctx, current.EmpresaID, series.Pagos)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertPayment(ctx, Payment{
			EmpresaID:     current.EmpresaID,
			Number:        number,
			InvoiceID:     current.ID,
			Monto:         in.Monto,
			FechaPago:     in.FechaPago,
			TipoPago:      string(in.TipoPago),
			CuentaBancID:  in.CuentaBancID,
			Referencia:    in.Referencia,
			Observaciones: in.Observaciones,
			CreatedBy:     in.ActorID,
		})
		if err != nil {
			return err
		}
		estado := PayableParcial
		if remaining.IsZero() {
			estado = PayableCancelado
			if err := tx.UpdateInvoiceStatus(ctx, current.ID, StatusPagada); err != nil {
				return err
			}
		}
		if err := tx.UpdatePayable(ctx, payable.ID, remaining.InexactFloat64(), estado); err != nil {
			return err
		}
		payment = inserted
		invoice = current
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         in.FechaPago,
		Memo:         fmt.Sprintf("Pago %s factura %s", payment.Number, invoice.Number),
		Reference:    payment.Number,
		SourceModule: "AP:PAYMENT",
		SourceID:     journals.SourceRef("AP:PAYMENT", payment.ID),
		ActorID:      in.ActorID,
		Lines:        journals.PayablePaymentLines(invoice.Number, in.Monto, in.TipoPago),
	})
	if err != nil {
		// The payment committed; RepostPayment retries the entry.
		return Payment{}, fmt.Errorf("ap: payment posting: %w", err)
	}
	if err := s.repo.SetPaymentJournalEntry(ctx, payment.ID, entry.ID); err != nil {
		return Payment{}, err
	}
	entryID := entry.ID
	payment.JournalEntryID = &entryID
	return payment, nil
}

// RepostPayment retries the ledger posting for a payment that committed
// without one.
func (s *Service) RepostPayment(ctx context.Context, paymentID, actorID int64) (Payment, error) {
	if actorID == 0 {
		return Payment{}, internalShared.ErrActorRequired
	}
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.JournalEntryID != nil {
		return Payment{}, ErrInvalidStatus
	}
	invoice, err := s.repo.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return Payment{}, err
	}
	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         payment.FechaPago,
		Memo:         fmt.Sprintf("Pago %s factura %s", payment.Number, invoice.Number),
		Reference:    payment.Number,
		SourceModule: "AP:PAYMENT",
		SourceID:     journals.SourceRef("AP:PAYMENT", payment.ID),
		ActorID:      actorID,
		Lines:        journals.PayablePaymentLines(invoice.Number, payment.Monto, journals.PaymentMethod(payment.TipoPago)),
	})
	if err != nil {
		return Payment{}, fmt.Errorf("ap: repost payment: %w", err)
	}
	if err := s.repo.SetPaymentJournalEntry(ctx, payment.ID, entry.ID); err != nil {
		return Payment{}, err
	}
	entryID := entry.ID
	payment.JournalEntryID = &entryID
	return payment, nil
}

// postOnce posts the input, resolving a respaldo conflict to the entry that
// already carries the link.
func (s *Service) postOnce(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error) {
	entry, err := s.poster.Post(ctx, input)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, shared.ErrSourceAlreadyLinked) || errors.Is(err, shared.ErrSourceConflict) {
		return s.poster.GetBySource(ctx, input.SourceModule, input.SourceID)
	}
	return journals.JournalEntry{}, err
}

// ListInvoices returns purchase invoices for an empresa, optionally by status.
func (s *Service) ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]PurchaseInvoice, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	return s.repo.ListInvoices(ctx, empresaID, status, limit, offset)
}

// GetInvoice loads one purchase invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// GetPayableByInvoice returns the payable row for an invoice.
func (s *Service) GetPayableByInvoice(ctx context.Context, invoiceID int64) (Payable, error) {
	return s.repo.GetPayableByInvoice(ctx, invoiceID)
}

// ListOpenPayables returns payables that still carry a balance.
func (s *Service) ListOpenPayables(ctx context.Context, empresaID int64) ([]Payable, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	return s.repo.ListOpenPayables(ctx, empresaID)
}
