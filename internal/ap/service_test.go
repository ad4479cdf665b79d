package ap

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
)

type fakeRepo struct {
	invoices map[int64]*PurchaseInvoice
	payables map[int64]*Payable
	payments map[int64]Payment
	counters map[string]int64
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		invoices: make(map[int64]*PurchaseInvoice),
		payables: make(map[int64]*Payable),
		payments: make(map[int64]Payment),
		counters: make(map[string]int64),
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

func (f *fakeRepo) ListInvoices(_ context.Context, empresaID int64, status InvoiceStatus, _, _ int) ([]PurchaseInvoice, error) {
	var out []PurchaseInvoice
	for _, inv := range f.invoices {
		if inv.EmpresaID == empresaID && (status == "" || inv.Status == status) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetInvoice(_ context.Context, id int64) (PurchaseInvoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return PurchaseInvoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

func (f *fakeRepo) GetPayableByInvoice(_ context.Context, invoiceID int64) (Payable, error) {
	for _, p := range f.payables {
		if p.InvoiceID == invoiceID {
			return *p, nil
		}
	}
	return Payable{}, ErrPayableNotFound
}

func (f *fakeRepo) GetPayable(_ context.Context, id int64) (Payable, error) {
	p, ok := f.payables[id]
	if !ok {
		return Payable{}, ErrPayableNotFound
	}
	return *p, nil
}

func (f *fakeRepo) ListOpenPayables(_ context.Context, empresaID int64) ([]Payable, error) {
	var out []Payable
	for _, p := range f.payables {
		if p.EmpresaID == empresaID && p.Estado != PayableCancelado {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPayment(_ context.Context, id int64) (Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakeRepo) SetPaymentJournalEntry(_ context.Context, paymentID, entryID int64) error {
	p, ok := f.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.JournalEntryID = &entryID
	f.payments[paymentID] = p
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

func (f *fakeTx) InsertInvoice(_ context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	inv.ID = (*fakeRepo)(f).id()
	inv.CreatedAt = time.Now()
	f.invoices[inv.ID] = &inv
	return inv, nil
}

func (f *fakeTx) InsertInvoiceLines(_ context.Context, invoiceID int64, lines []PurchaseInvoiceLine) error {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Lines = lines
	return nil
}

func (f *fakeTx) GetInvoiceForUpdate(_ context.Context, id int64) (PurchaseInvoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return PurchaseInvoice{}, ErrInvoiceNotFound
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

func (f *fakeTx) InsertPayable(_ context.Context, p Payable) (Payable, error) {
	p.ID = (*fakeRepo)(f).id()
	f.payables[p.ID] = &p
	return p, nil
}

func (f *fakeTx) GetPayableForUpdate(_ context.Context, invoiceID int64) (Payable, error) {
	for _, p := range f.payables {
		if p.InvoiceID == invoiceID {
			return *p, nil
		}
	}
	return Payable{}, ErrPayableNotFound
}

func (f *fakeTx) UpdatePayable(_ context.Context, id int64, saldo float64, estado PayableStatus) error {
	p, ok := f.payables[id]
	if !ok {
		return ErrPayableNotFound
	}
	p.Saldo = saldo
	p.Estado = estado
	return nil
}

func (f *fakeTx) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	p.ID = (*fakeRepo)(f).id()
	p.CreatedAt = time.Now()
	f.payments[p.ID] = p
	return p, nil
}

type fakePoster struct {
	posted   []journals.PostingInput
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

func (p *fakePoster) GetBySource(_ context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error) {
	entry, ok := p.entries[module+":"+ref.String()]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

func newTestService(repo *fakeRepo, poster *fakePoster) *Service {
	svc := NewService(repo, poster)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc
}

func createConfirmed(t *testing.T, svc *Service) PurchaseInvoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		EmpresaID:       1,
		ProveedorNombre: "Insumos del Este SRL",
		Subtotal:        500,
		IVA:             110,
		ActorID:         42,
	})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	return confirmed
}

func TestCreateInvoiceNumbering(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePoster{})
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		EmpresaID: 1, ProveedorNombre: "Proveedor SA", Subtotal: 100, IVA: 22, ActorID: 42,
	})
	require.NoError(t, err)
	require.Equal(t, "FC-00001", inv.Number)
	require.Equal(t, StatusBorrador, inv.Status)
	require.InDelta(t, 122.0, inv.Total, 0.001)
}

func TestConfirmInvoiceOpensPayableAndPosts(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv := createConfirmed(t, svc)
	require.Equal(t, StatusPendiente, inv.Status)
	require.NotNil(t, inv.JournalEntryID)

	payable, err := svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 610.0, payable.Saldo, 0.001)
	require.Equal(t, PayablePendiente, payable.Estado)

	require.Len(t, poster.posted, 1)
	require.Equal(t, "AP", poster.posted[0].SourceModule)
	var debit, credit float64
	for _, line := range poster.posted[0].Lines {
		debit += line.Debit
		credit += line.Credit
	}
	require.InDelta(t, debit, credit, 0.001)
	require.InDelta(t, 610.0, credit, 0.001)

	_, err = svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPayPayablePartialThenFull(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)
	inv := createConfirmed(t, svc)
	payable, err := svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	first, err := svc.PayPayable(context.Background(), PayInput{
		PayableID: payable.ID, Monto: 400, TipoPago: journals.PaymentTransferencia,
		Referencia: "transf 1234", ActorID: 42,
	})
	require.NoError(t, err)
	require.Equal(t, "PG-00001", first.Number)

	payable, err = svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 210.0, payable.Saldo, 0.001)
	require.Equal(t, PayableParcial, payable.Estado)

	_, err = svc.PayPayable(context.Background(), PayInput{
		PayableID: payable.ID, Monto: 210, TipoPago: journals.PaymentEfectivo, ActorID: 42,
	})
	require.NoError(t, err)

	payable, err = svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, payable.Saldo, 0.001)
	require.Equal(t, PayableCancelado, payable.Estado)

	after, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPagada, after.Status)
}

func TestPayPayableRejectsOverpayment(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePoster{})
	inv := createConfirmed(t, svc)
	payable, err := svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	_, err = svc.PayPayable(context.Background(), PayInput{
		PayableID: payable.ID, Monto: 700, TipoPago: journals.PaymentTransferencia, ActorID: 42,
	})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestPayPayableRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePoster{})
	inv := createConfirmed(t, svc)
	payable, err := svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	_, err = svc.PayPayable(context.Background(), PayInput{
		PayableID: payable.ID, Monto: 0, TipoPago: journals.PaymentEfectivo, ActorID: 42,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConfirmInvoiceRetriesAfterPostingFailure(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		EmpresaID: 1, ProveedorNombre: "Proveedor SA", Subtotal: 500, IVA: 110, ActorID: 42,
	})
	require.NoError(t, err)

	poster.failNext = errors.New("ledger unavailable")
	_, err = svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.Error(t, err)

	// The status flip and the payable committed without a journal entry.
	stranded, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, stranded.Status)
	require.Nil(t, stranded.JournalEntryID)
	require.Len(t, repo.payables, 1)

	// The retry posts without opening a second payable.
	confirmed, err := svc.ConfirmInvoice(context.Background(), inv.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, confirmed.JournalEntryID)
	require.Len(t, repo.payables, 1)
	require.Len(t, poster.posted, 1)
	require.Equal(t, journals.SourceRef("AP", inv.ID), poster.posted[0].SourceID)
}

func TestRepostPaymentAfterPostingFailure(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)
	inv := createConfirmed(t, svc)
	payable, err := svc.GetPayableByInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	poster.failNext = errors.New("ledger unavailable")
	_, err = svc.PayPayable(context.Background(), PayInput{
		PayableID: payable.ID, Monto: 610, TipoPago: journals.PaymentTransferencia, ActorID: 42,
	})
	require.Error(t, err)

	// The payment committed without its journal entry.
	var strandedID int64
	for id, p := range repo.payments {
		require.Nil(t, p.JournalEntryID)
		strandedID = id
	}
	require.NotZero(t, strandedID)

	reposted, err := svc.RepostPayment(context.Background(), strandedID, 42)
	require.NoError(t, err)
	require.NotNil(t, reposted.JournalEntryID)
	require.Equal(t, journals.SourceRef("AP:PAYMENT", strandedID),
		poster.posted[len(poster.posted)-1].SourceID)

	// A payment that already carries its entry cannot be reposted.
	_, err = svc.RepostPayment(context.Background(), strandedID, 42)
	require.ErrorIs(t, err, ErrInvalidStatus)
}
