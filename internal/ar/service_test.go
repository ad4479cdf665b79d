package ar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
)

type fakeRepo struct {
	clientes   map[int64]Cliente
	invoices   map[int64]*SalesInvoice
	lines      map[int64][]SalesInvoiceLine
	notes      map[int64]CreditNote
	counters   map[string]int64
	nextID     int64
	dgiByCAE   map[int64]string
	savedDGIAt map[int64]any
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clientes:   make(map[int64]Cliente),
		invoices:   make(map[int64]*SalesInvoice),
		lines:      make(map[int64][]SalesInvoiceLine),
		notes:      make(map[int64]CreditNote),
		counters:   make(map[string]int64),
		dgiByCAE:   make(map[int64]string),
		savedDGIAt: make(map[int64]any),
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

func (f *fakeRepo) UpsertCliente(_ context.Context, c Cliente) (Cliente, error) {
	for _, existing := range f.clientes {
		if existing.EmpresaID == c.EmpresaID && existing.RUT == c.RUT {
			c.ID = existing.ID
			f.clientes[c.ID] = c
			return c, nil
		}
	}
	c.ID = f.id()
	f.clientes[c.ID] = c
	return c, nil
}

func (f *fakeRepo) GetCliente(_ context.Context, id int64) (Cliente, error) {
	c, ok := f.clientes[id]
	if !ok {
		return Cliente{}, ErrClienteNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListInvoices(_ context.Context, empresaID int64, status InvoiceStatus, _, _ int) ([]SalesInvoice, error) {
	var out []SalesInvoice
	for _, inv := range f.invoices {
		if inv.EmpresaID == empresaID && (status == "" || inv.Status == status) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetInvoice(_ context.Context, id int64) (SalesInvoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return SalesInvoice{}, ErrInvoiceNotFound
	}
	copied := *inv
	copied.Lines = f.lines[id]
	return copied, nil
}

func (f *fakeRepo) SaveDGIResponse(_ context.Context, invoiceID int64, cae string, _ *string, raw any) error {
	if _, ok := f.invoices[invoiceID]; !ok {
		return ErrInvoiceNotFound
	}
	f.dgiByCAE[invoiceID] = cae
	f.savedDGIAt[invoiceID] = raw
	caeCopy := cae
	f.invoices[invoiceID].CAE = &caeCopy
	return nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*fakeTx)(f))
}

type fakeTx fakeRepo

func (f *fakeTx) NextNumber(_ context.Context, empresaID int64, serie string) (string, error) {
	key := fmt.Sprintf("%d:%s", empresaID, serie)
	f.counters[key]++
	return series.Format(serie, f.counters[key]), nil
}

func (f *fakeTx) InsertInvoice(_ context.Context, inv SalesInvoice) (SalesInvoice, error) {
	inv.ID = (*fakeRepo)(f).id()
	inv.CreatedAt = time.Now()
	f.invoices[inv.ID] = &inv
	return inv, nil
}

func (f *fakeTx) InsertInvoiceLines(_ context.Context, invoiceID int64, lines []SalesInvoiceLine) error {
	f.lines[invoiceID] = lines
	return nil
}

func (f *fakeTx) GetInvoiceForUpdate(_ context.Context, id int64) (SalesInvoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return SalesInvoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

func (f *fakeTx) UpdateInvoiceStatus(_ context.Context, id int64, status InvoiceStatus) error {
	inv, ok := f.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	return nil
}

func (f *fakeTx) SetJournalEntry(_ context.Context, id, entryID int64) error {
	inv, ok := f.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.JournalEntryID = &entryID
	return nil
}

func (f *fakeTx) MarkAnulada(_ context.Context, id, notaCreditoID int64) error {
	inv, ok := f.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = StatusAnulada
	inv.NotaCreditoID = &notaCreditoID
	return nil
}

func (f *fakeTx) InsertCreditNote(_ context.Context, nc CreditNote) (CreditNote, error) {
	nc.ID = (*fakeRepo)(f).id()
	nc.CreatedAt = time.Now()
	f.notes[nc.ID] = nc
	return nc, nil
}

type fakePoster struct {
	posted   []journals.PostingInput
	reversed []journals.ReverseInput
	entries  map[string]journals.JournalEntry
	nextID   int64
	failNext error
}

func (p *fakePoster) Post(_ context.Context, input journals.PostingInput) (journals.JournalEntry, error) {
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return journals.JournalEntry{}, err
	}
	if err := input.Validate(); err != nil {
		return journals.JournalEntry{}, err
	}
	if p.entries == nil {
		p.entries = make(map[string]journals.JournalEntry)
	}
	key := input.SourceModule + ":" + input.SourceID.String()
	if _, linked := p.entries[key]; linked {
		return journals.JournalEntry{}, shared.ErrSourceAlreadyLinked
	}
	p.posted = append(p.posted, input)
	p.nextID++
	entry := journals.JournalEntry{ID: p.nextID, EmpresaID: input.EmpresaID, SourceModule: input.SourceModule, SourceID: input.SourceID}
	p.entries[key] = entry
	return entry, nil
}

func (p *fakePoster) Reverse(_ context.Context, input journals.ReverseInput) (journals.JournalEntry, error) {
	p.reversed = append(p.reversed, input)
	p.nextID++
	return journals.JournalEntry{ID: p.nextID}, nil
}

func (p *fakePoster) GetBySource(_ context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error) {
	entry, ok := p.entries[module+":"+ref.String()]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

func newTestService(repo *fakeRepo, poster *fakePoster) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, poster, NewDGIClient(DGIConfig{}, logger))
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc
}

func createTestInvoice(t *testing.T, svc *Service) SalesInvoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		EmpresaID: 1,
		ClienteID: 7,
		ActorID:   42,
		Lines: []CreateInvoiceLineInput{
			{Description: "Servicio mensual", Quantity: 1, UnitPrice: 1000, IVAPct: 22},
			{Description: "Soporte", Quantity: 2, UnitPrice: 250, IVAPct: 22},
		},
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceTotalsAndNumbering(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	inv := createTestInvoice(t, svc)
	require.Equal(t, "FV-00001", inv.Number)
	require.Equal(t, StatusBorrador, inv.Status)
	require.InDelta(t, 1500.0, inv.Subtotal, 0.001)
	require.InDelta(t, 330.0, inv.IVA, 0.001)
	require.InDelta(t, 1830.0, inv.Total, 0.001)
	require.Len(t, inv.Lines, 2)
	require.Equal(t, 1, inv.Lines[0].LineNo)

	second := createTestInvoice(t, svc)
	require.Equal(t, "FV-00002", second.Number)
}

func TestCreateInvoiceRequiresLines(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePoster{})
	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{EmpresaID: 1, ClienteID: 7, ActorID: 42})
	require.ErrorIs(t, err, ErrNoLines)
}

func TestConfirmInvoicePostsLedgerEntry(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	confirmed, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, confirmed.Status)
	require.NotNil(t, confirmed.JournalEntryID)

	require.Len(t, poster.posted, 1)
	posting := poster.posted[0]
	require.Equal(t, "AR", posting.SourceModule)
	require.Equal(t, int64(42), posting.ActorID)

	var debit, credit float64
	for _, line := range posting.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	require.InDelta(t, debit, credit, 0.001)
	require.InDelta(t, 1830.0, debit, 0.001)

	// Confirming twice is rejected.
	_, err = svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRegisterPaymentFlipsToPagada(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)

	paid, err := svc.RegisterPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID,
		Amount:    1830,
		Method:    journals.PaymentTransferencia,
		ActorID:   42,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPagada, paid.Status)
	require.Len(t, poster.posted, 2)
	require.Equal(t, "AR:PAYMENT", poster.posted[1].SourceModule)

	// Paying a pagada invoice again is rejected.
	_, err = svc.RegisterPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, Amount: 10, Method: journals.PaymentEfectivo, ActorID: 42,
	})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestIssueCreditNoteNegatesInvoiceExactly(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)

	note, err := svc.IssueCreditNote(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	require.Equal(t, "NC-00001", note.Number)
	require.Equal(t, inv.ID, note.InvoiceID)
	require.Equal(t, -inv.Subtotal, note.Subtotal)
	require.Equal(t, -inv.IVA, note.IVA)
	require.Equal(t, -inv.Total, note.Total)
	require.NotNil(t, note.JournalEntryID)
	require.Len(t, poster.reversed, 1)

	after, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAnulada, after.Status)
	require.NotNil(t, after.NotaCreditoID)
	require.Equal(t, note.ID, *after.NotaCreditoID)

	// A second credit note against the same invoice is rejected.
	_, err = svc.IssueCreditNote(context.Background(), inv.ID, 42)
	require.ErrorIs(t, err, ErrAlreadyCredited)
}

func TestIssueCreditNoteRejectsBorrador(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	inv := createTestInvoice(t, svc)
	_, err := svc.IssueCreditNote(context.Background(), inv.ID, 42)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSubmitDGISimulatedFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	inv := createTestInvoice(t, svc)
	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)

	resp, err := svc.SubmitDGI(context.Background(), inv.ID)
	require.NoError(t, err)
	require.True(t, resp.Simulado)
	require.Contains(t, resp.CAE, "SIM-FV-00001")
	require.Equal(t, "aprobado", resp.Estado)
	require.Equal(t, resp.CAE, repo.dgiByCAE[inv.ID])
}

func TestSubmitDGIRejectsBorrador(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	inv := createTestInvoice(t, svc)
	_, err := svc.SubmitDGI(context.Background(), inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpsertClienteMatchesByRUT(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	first, err := svc.UpsertCliente(context.Background(), Cliente{
		EmpresaID: 1, RUT: "211234560017", RazonSocial: "Acme SA",
	})
	require.NoError(t, err)

	second, err := svc.UpsertCliente(context.Background(), Cliente{
		EmpresaID: 1, RUT: "211234560017", RazonSocial: "Acme Sociedad Anónima",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Acme Sociedad Anónima", second.RazonSocial)
}

func TestConfirmInvoiceRetriesAfterPostingFailure(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	poster.failNext = errors.New("ledger unavailable")

	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.Error(t, err)

	// The status commit survived the failed posting.
	stranded, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, stranded.Status)
	require.Nil(t, stranded.JournalEntryID)

	// Confirming again posts and links the entry.
	confirmed, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, confirmed.JournalEntryID)
	require.Len(t, poster.posted, 1)
	require.Equal(t, journals.SourceRef("AR", inv.ID), poster.posted[0].SourceID)
}

func TestConfirmInvoiceRecoversLinkedEntry(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)

	// Simulate an entry that posted but was never linked back.
	first, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	wantEntry := *first.JournalEntryID
	repo.invoices[inv.ID].JournalEntryID = nil

	confirmed, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, confirmed.JournalEntryID)
	require.Equal(t, wantEntry, *confirmed.JournalEntryID)
	require.Len(t, poster.posted, 1)
}

func TestRegisterPaymentRetriesAfterPostingFailure(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createTestInvoice(t, svc)
	_, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)

	poster.failNext = errors.New("ledger unavailable")
	_, err = svc.RegisterPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, Amount: 1830, Method: journals.PaymentTransferencia, ActorID: 42,
	})
	require.Error(t, err)
	require.Equal(t, StatusPagada, repo.invoices[inv.ID].Status)

	// The retry posts the collection that never landed.
	paid, err := svc.RegisterPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, Amount: 1830, Method: journals.PaymentTransferencia, ActorID: 42,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPagada, paid.Status)
	require.Len(t, poster.posted, 2)
	require.Equal(t, journals.SourceRef("AR:PAYMENT", inv.ID), poster.posted[1].SourceID)

	// A third call conflicts on the respaldo link.
	_, err = svc.RegisterPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, Amount: 1830, Method: journals.PaymentTransferencia, ActorID: 42,
	})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
