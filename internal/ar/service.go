package ar

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
	Reverse(ctx context.Context, input journals.ReverseInput) (journals.JournalEntry, error)
	GetBySource(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// Service drives the AR lifecycle: invoices, collections, credit notes and
// DGI submission.
type Service struct {
	repo   Repository
	poster Poster
	dgi    *DGIClient
	now    func() time.Time
}

func NewService(repo Repository, poster Poster, dgi *DGIClient) *Service {
	return &Service{repo: repo, poster: poster, dgi: dgi, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// UpsertCliente matches by RUT within the empresa.
func (s *Service) UpsertCliente(ctx context.Context, c Cliente) (Cliente, error) {
	if c.EmpresaID == 0 {
		return Cliente{}, internalShared.ErrEmpresaRequired
	}
	c.RUT = strings.TrimSpace(c.RUT)
	if c.RUT == "" {
		return Cliente{}, errors.New("ar: rut required")
	}
	if strings.TrimSpace(c.RazonSocial) == "" {
		return Cliente{}, errors.New("ar: razon social required")
	}
	return s.repo.UpsertCliente(ctx, c)
}

// CreateInvoiceLineInput is one requested item.
type CreateInvoiceLineInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	IVAPct      float64
}

// CreateInvoiceInput groups fields to create a factura de venta.
type CreateInvoiceInput struct {
	EmpresaID int64
	ClienteID int64
	Date      time.Time
	DueDate   time.Time
	Currency  string
	Status    InvoiceStatus
	ActorID   int64
	Lines     []CreateInvoiceLineInput
}

// ComputeLineTotals derives subtotal/IVA/total for a line with exact decimal
// arithmetic, rounded half-up to two places.
func ComputeLineTotals(in CreateInvoiceLineInput) SalesInvoiceLine {
	qty := decimal.NewFromFloat(in.Quantity)
	price := decimal.NewFromFloat(in.UnitPrice)
	pct := decimal.NewFromFloat(in.IVAPct).Div(decimal.NewFromInt(100))
	subtotal := qty.Mul(price).Round(2)
	iva := subtotal.Mul(pct).Round(2)
	return SalesInvoiceLine{
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		IVAPct:      in.IVAPct,
		Subtotal:    subtotal.InexactFloat64(),
		IVA:         iva.InexactFloat64(),
		Total:       subtotal.Add(iva).InexactFloat64(),
	}
}

// CreateInvoice allocates the FV number and inserts header plus lines in one
// transaction.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (SalesInvoice, error) {
	if in.EmpresaID == 0 {
		return SalesInvoice{}, internalShared.ErrEmpresaRequired
	}
	if in.ActorID == 0 {
		return SalesInvoice{}, internalShared.ErrActorRequired
	}
	if len(in.Lines) == 0 {
		return SalesInvoice{}, ErrNoLines
	}
	if in.Status == "" {
		in.Status = StatusBorrador
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

	lines := make([]SalesInvoiceLine, 0, len(in.Lines))
	var subtotal, iva decimal.Decimal
	for idx, lineIn := range in.Lines {
		line := ComputeLineTotals(lineIn)
		line.LineNo = idx + 1
		lines = append(lines, line)
		subtotal = subtotal.Add(decimal.NewFromFloat(line.Subtotal))
		iva = iva.Add(decimal.NewFromFloat(line.IVA))
	}

	var invoice SalesInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, in.EmpresaID, series.FacturasVenta)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertInvoice(ctx, SalesInvoice{
			EmpresaID: in.EmpresaID,
			Number:    number,
			ClienteID: in.ClienteID,
			Date:      in.Date,
			DueDate:   in.DueDate,
			Currency:  in.Currency,
			Subtotal:  subtotal.InexactFloat64(),
			IVA:       iva.InexactFloat64(),
			Total:     subtotal.Add(iva).InexactFloat64(),
			Status:    in.Status,
			CreatedBy: in.ActorID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertInvoiceLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		inserted.Lines = lines
		invoice = inserted
		return nil
	})
	if err != nil {
		return SalesInvoice{}, err
	}
	return invoice, nil
}

// ConfirmInvoice moves a borrador to pendiente and posts it to the ledger.
// The status commit and the posting run in separate transactions, so a
// posting failure leaves the invoice pendiente without a journal entry;
// confirming again retries the posting under the same source reference.
func (s *Service) ConfirmInvoice(ctx context.Context, invoiceID, actorID int64) (SalesInvoice, error) {
	if actorID == 0 {
		return SalesInvoice{}, internalShared.ErrActorRequired
	}
	var invoice SalesInvoice
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
			current.Status = StatusPendiente
		case current.Status == StatusPendiente && current.JournalEntryID == nil:
			// An earlier confirm committed the status but never posted.
		default:
			return ErrInvalidStatus
		}
		invoice = current
		return nil
	})
	if err != nil {
		return SalesInvoice{}, err
	}
	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         invoice.Date,
		Memo:         fmt.Sprintf("Factura de venta %s", invoice.Number),
		Reference:    invoice.Number,
		SourceModule: "AR",
		SourceID:     journals.SourceRef("AR", invoice.ID),
		ActorID:      actorID,
		Lines:        journals.SaleInvoiceLines(invoice.Number, invoice.Subtotal, invoice.IVA),
	})
	if err != nil {
		return SalesInvoice{}, fmt.Errorf("ar: confirm posting: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetJournalEntry(ctx, invoice.ID, entry.ID)
	})
	if err != nil {
		return SalesInvoice{}, err
	}
	entryID := entry.ID
	invoice.JournalEntryID = &entryID
	return invoice, nil
}

// PaymentInput records a customer collection.
type PaymentInput struct {
	InvoiceID int64
	Amount    float64
	Method    journals.PaymentMethod
	Date      time.Time
	ActorID   int64
}

// RegisterPayment marks a pendiente invoice pagada and posts the collection.
// Re-registering against a pagada invoice retries a collection posting that
// never landed; once the posting exists the call is rejected.
func (s *Service) RegisterPayment(ctx context.Context, in PaymentInput) (SalesInvoice, error) {
	if in.ActorID == 0 {
		return SalesInvoice{}, internalShared.ErrActorRequired
	}
	if in.Amount <= 0 {
		return SalesInvoice{}, errors.New("ar: payment amount must be positive")
	}
	var invoice SalesInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusPendiente:
			if err := tx.UpdateInvoiceStatus(ctx, current.ID, StatusPagada); err != nil {
				return err
			}
			current.Status = StatusPagada
		case StatusPagada:
			// The respaldo link decides below whether the collection
			// still needs posting.
		default:
			return ErrInvalidStatus
		}
		invoice = current
		return nil
	})
	if err != nil {
		return SalesInvoice{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	if _, err := s.poster.Post(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         date,
		Memo:         fmt.Sprintf("Cobro factura %s", invoice.Number),
		Reference:    invoice.Number,
		SourceModule: "AR:PAYMENT",
		SourceID:     journals.SourceRef("AR:PAYMENT", invoice.ID),
		ActorID:      in.ActorID,
		Lines:        journals.PaymentReceivedLines(invoice.Number, in.Amount, in.Method),
	}); err != nil {
		if errors.Is(err, shared.ErrSourceAlreadyLinked) || errors.Is(err, shared.ErrSourceConflict) {
			return SalesInvoice{}, ErrInvalidStatus
		}
		return SalesInvoice{}, fmt.Errorf("ar: payment posting: %w", err)
	}
	return invoice, nil
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

// IssueCreditNote reverses an invoice in full: the nota de crédito carries
// the exact negation of the invoice totals, the invoice flips to anulada,
// and the original ledger entry is reversed.
func (s *Service) IssueCreditNote(ctx context.Context, invoiceID, actorID int64) (CreditNote, error) {
	if actorID == 0 {
		return CreditNote{}, internalShared.ErrActorRequired
	}
	original, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return CreditNote{}, err
	}
	if original.Status == StatusAnulada || original.NotaCreditoID != nil {
		return CreditNote{}, ErrAlreadyCredited
	}
	if original.Status == StatusBorrador {
		return CreditNote{}, ErrInvalidStatus
	}

	var reversalID *int64
	if original.JournalEntryID != nil {
		reversal, err := s.poster.Reverse(ctx, journals.ReverseInput{
			EntryID: *original.JournalEntryID,
			ActorID: actorID,
			Memo:    fmt.Sprintf("Nota de crédito por factura %s", original.Number),
		})
		if err != nil {
			return CreditNote{}, fmt.Errorf("ar: credit note reversal: %w", err)
		}
		id := reversal.ID
		reversalID = &id
	}

	var note CreditNote
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if current.Status == StatusAnulada || current.NotaCreditoID != nil {
			return ErrAlreadyCredited
		}
		if current.Status == StatusBorrador {
			return ErrInvalidStatus
		}
		number, err := tx.NextNumber(ctx, current.EmpresaID, series.NotasCredito)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertCreditNote(ctx, CreditNote{
			EmpresaID:      current.EmpresaID,
			Number:         number,
			InvoiceID:      current.ID,
			Date:           s.now(),
			Subtotal:       -current.Subtotal,
			IVA:            -current.IVA,
			Total:          -current.Total,
			JournalEntryID: reversalID,
			CreatedBy:      actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkAnulada(ctx, current.ID, inserted.ID); err != nil {
			return err
		}
		note = inserted
		return nil
	})
	if err != nil {
		return CreditNote{}, err
	}
	return note, nil
}

// SubmitDGI sends the invoice to the electronic-invoicing endpoint and
// stores the approval code. Retries are manual re-invocations.
func (s *Service) SubmitDGI(ctx context.Context, invoiceID int64) (DGIResponse, error) {
	invoice, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return DGIResponse{}, err
	}
	if invoice.Status == StatusBorrador || invoice.Status == StatusAnulada {
		return DGIResponse{}, ErrInvalidStatus
	}
	resp, err := s.dgi.Submit(ctx, invoice)
	if err != nil {
		return DGIResponse{}, err
	}
	if err := s.repo.SaveDGIResponse(ctx, invoice.ID, resp.CAE, resp.Vencimiento, resp); err != nil {
		return DGIResponse{}, err
	}
	return resp, nil
}

// ListInvoices returns invoices for an empresa, optionally by status.
func (s *Service) ListInvoices(ctx context.Context, empresaID int64, status InvoiceStatus, limit, offset int) ([]SalesInvoice, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	return s.repo.ListInvoices(ctx, empresaID, status, limit, offset)
}

// GetInvoice loads one invoice with lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (SalesInvoice, error) {
	return s.repo.GetInvoice(ctx, id)
}
