package partners

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
	"github.com/ledgersur/ledgersur/internal/observability"
)

type fakeRepo struct {
	partners    map[int64]*Partner
	commissions map[int64]*Commission
	invoices    map[int64]SettlementInvoice
	entries     map[int64]int64
	counters    map[string]int64
	nextID      int64
	failTxFor   map[int64]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		partners:    make(map[int64]*Partner),
		commissions: make(map[int64]*Commission),
		invoices:    make(map[int64]SettlementInvoice),
		entries:     make(map[int64]int64),
		counters:    make(map[string]int64),
		failTxFor:   make(map[int64]error),
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

func (f *fakeRepo) addPartner(p Partner) Partner {
	p.ID = f.id()
	f.partners[p.ID] = &p
	return p
}

func (f *fakeRepo) addCommission(c Commission) Commission {
	c.ID = f.id()
	c.EstadoComision = ComisionPendiente
	c.EstadoPago = PagoPendiente
	f.commissions[c.ID] = &c
	return c
}

func (f *fakeRepo) UpsertPartner(_ context.Context, p Partner) (Partner, error) {
	for _, existing := range f.partners {
		if existing.EmpresaID == p.EmpresaID && existing.Documento == p.Documento {
			p.ID = existing.ID
			p.ProximaFacturacion = existing.ProximaFacturacion
			f.partners[p.ID] = &p
			return p, nil
		}
	}
	return f.addPartner(p), nil
}

func (f *fakeRepo) GetPartner(_ context.Context, id int64) (Partner, error) {
	p, ok := f.partners[id]
	if !ok {
		return Partner{}, ErrPartnerNotFound
	}
	return *p, nil
}

func (f *fakeRepo) ListActivePartners(_ context.Context, empresaID int64) ([]Partner, error) {
	var out []Partner
	for id := int64(1); id <= f.nextID; id++ {
		if p, ok := f.partners[id]; ok && p.EmpresaID == empresaID && p.Activo {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListCommissions(_ context.Context, empresaID, partnerID int64, estado CommissionState) ([]Commission, error) {
	var out []Commission
	for _, c := range f.commissions {
		if c.EmpresaID != empresaID {
			continue
		}
		if partnerID != 0 && c.PartnerID != partnerID {
			continue
		}
		if estado != "" && c.EstadoComision != estado {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) SetInvoiceJournalEntry(_ context.Context, facturaCompraID, entryID int64) error {
	f.entries[facturaCompraID] = entryID
	return nil
}

func (f *fakeRepo) UnpostedSettlement(_ context.Context, partnerID int64) (SettlementInvoice, float64, int, error) {
	for id := int64(1); id <= f.nextID; id++ {
		inv, ok := f.invoices[id]
		if !ok || inv.PartnerID != partnerID {
			continue
		}
		if _, posted := f.entries[inv.ID]; posted {
			continue
		}
		var gross float64
		var count int
		for _, c := range f.commissions {
			if c.FacturaCompraID != nil && *c.FacturaCompraID == inv.ID {
				gross += c.BaseAmount
				count++
			}
		}
		return inv, gross, count, nil
	}
	return SettlementInvoice{}, 0, 0, ErrNoUnpostedInvoice
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := f.snapshot()
	if err := fn(ctx, (*fakeTx)(f)); err != nil {
		f.restore(snapshot)
		return err
	}
	return nil
}

type repoState struct {
	partners    map[int64]Partner
	commissions map[int64]Commission
	invoices    map[int64]SettlementInvoice
	counters    map[string]int64
	nextID      int64
}

func (f *fakeRepo) snapshot() repoState {
	st := repoState{
		partners:    make(map[int64]Partner),
		commissions: make(map[int64]Commission),
		invoices:    make(map[int64]SettlementInvoice),
		counters:    make(map[string]int64),
		nextID:      f.nextID,
	}
	for id, p := range f.partners {
		st.partners[id] = *p
	}
	for id, c := range f.commissions {
		st.commissions[id] = *c
	}
	for id, inv := range f.invoices {
		st.invoices[id] = inv
	}
	for k, v := range f.counters {
		st.counters[k] = v
	}
	return st
}

func (f *fakeRepo) restore(st repoState) {
	f.partners = make(map[int64]*Partner)
	for id := range st.partners {
		p := st.partners[id]
		f.partners[id] = &p
	}
	f.commissions = make(map[int64]*Commission)
	for id := range st.commissions {
		c := st.commissions[id]
		f.commissions[id] = &c
	}
	f.invoices = st.invoices
	f.counters = st.counters
	f.nextID = st.nextID
}

type fakeTx fakeRepo

func (f *fakeTx) NextNumber(_ context.Context, empresaID int64, serie string) (string, error) {
	key := fmt.Sprintf("%d:%s", empresaID, serie)
	f.counters[key]++
	return series.Format(serie, f.counters[key]), nil
}

func (f *fakeTx) GetPartnerForUpdate(_ context.Context, id int64) (Partner, error) {
	if err, ok := f.failTxFor[id]; ok {
		return Partner{}, err
	}
	p, ok := f.partners[id]
	if !ok {
		return Partner{}, ErrPartnerNotFound
	}
	return *p, nil
}

func (f *fakeTx) PendingCommissionsForUpdate(_ context.Context, partnerID int64) ([]Commission, error) {
	var out []Commission
	for id := int64(1); id <= f.nextID; id++ {
		c, ok := f.commissions[id]
		if ok && c.PartnerID == partnerID && c.EstadoComision == ComisionPendiente && c.FacturaCompraID == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeTx) InsertSettlementInvoice(_ context.Context, inv SettlementInvoice) (SettlementInvoice, error) {
	inv.ID = (*fakeRepo)(f).id()
	f.invoices[inv.ID] = inv
	return inv, nil
}

func (f *fakeTx) MarkCommissionsFacturada(_ context.Context, ids []int64, facturaCompraID int64) error {
	for _, id := range ids {
		c, ok := f.commissions[id]
		if !ok {
			return errors.New("missing commission")
		}
		c.EstadoComision = ComisionFacturada
		c.FacturaCompraID = &facturaCompraID
	}
	return nil
}

func (f *fakeTx) AdvanceSchedule(_ context.Context, partnerID int64, next time.Time) error {
	p, ok := f.partners[partnerID]
	if !ok {
		return ErrPartnerNotFound
	}
	p.ProximaFacturacion = next
	return nil
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

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, poster *fakePoster) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, poster, NewMarketplaceSplit(7, 50, 22), logger, observability.NewMetrics())
	svc.WithNow(func() time.Time { return testNow })
	return svc
}

func duePartner(repo *fakeRepo) Partner {
	return repo.addPartner(Partner{
		EmpresaID:          1,
		Documento:          "219999990015",
		RazonSocial:        "Partner Uno",
		ComisionPct:        15,
		Frecuencia:         FrequencyQuincenal,
		ProximaFacturacion: testNow.AddDate(0, 0, -1),
		Activo:             true,
	})
}

func TestRunSettlesCanonicalScenario(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	partner := duePartner(repo)
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: partner.ID, FacturaID: 10, FacturaLineaID: 100, Porcentaje: 15, BaseAmount: 600, Amount: 90})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: partner.ID, FacturaID: 11, FacturaLineaID: 101, Porcentaje: 15, BaseAmount: 400, Amount: 60})

	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Settled, 1)
	require.Empty(t, result.Failed)

	settled := result.Settled[0]
	require.Equal(t, partner.ID, settled.PartnerID)
	require.Equal(t, "FC-00001", settled.Invoice)
	require.Equal(t, 994.30, settled.Total)
	require.Equal(t, 2, settled.Commissions)

	// Commissions flipped and linked.
	for _, c := range repo.commissions {
		require.Equal(t, ComisionFacturada, c.EstadoComision)
		require.NotNil(t, c.FacturaCompraID)
	}

	// Schedule advanced by the quincenal offset.
	after, err := svc.GetPartner(context.Background(), partner.ID)
	require.NoError(t, err)
	require.Equal(t, testNow.AddDate(0, 0, 15), after.ProximaFacturacion)

	// Payout entry balanced, linked to the invoice.
	require.Len(t, poster.posted, 1)
	var debit, credit float64
	for _, line := range poster.posted[0].Lines {
		debit += line.Debit
		credit += line.Credit
	}
	require.InDelta(t, debit, credit, 0.001)
	require.Len(t, repo.entries, 1)
}

func TestRunSkipsNotDuePartner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	partner := repo.addPartner(Partner{
		EmpresaID: 1, Documento: "210000110011", RazonSocial: "Partner Futuro",
		ComisionPct: 15, Frecuencia: FrequencyMensual,
		ProximaFacturacion: testNow.AddDate(0, 0, 5), Activo: true,
	})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: partner.ID, BaseAmount: 100, Amount: 15})

	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Empty(t, result.Settled)
	require.Len(t, result.Skipped, 1)

	// Force overrides the schedule.
	result, err = svc.Run(context.Background(), RunInput{EmpresaID: 1, Force: true, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Settled, 1)
}

func TestRunSkipsPartnerWithoutCommissions(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})
	duePartner(repo)

	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Empty(t, result.Settled)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, ErrNothingToSettle.Error(), result.Skipped[0].Reason)
}

func TestRunContinuesPastFailingPartner(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	bad := duePartner(repo)
	good := repo.addPartner(Partner{
		EmpresaID: 1, Documento: "218888880012", RazonSocial: "Partner Dos",
		ComisionPct: 10, Frecuencia: FrequencySemanal,
		ProximaFacturacion: testNow.AddDate(0, 0, -2), Activo: true,
	})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: bad.ID, BaseAmount: 500, Amount: 75})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: good.ID, BaseAmount: 200, Amount: 20})
	repo.failTxFor[bad.ID] = errors.New("deadlock detected")

	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	require.Equal(t, bad.ID, result.Failed[0].PartnerID)
	require.Len(t, result.Settled, 1)
	require.Equal(t, good.ID, result.Settled[0].PartnerID)

	// Failed partner's commissions stay pendiente.
	pending, err := svc.ListCommissions(context.Background(), 1, bad.ID, ComisionPendiente)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestRunSinglePartnerScope(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	first := duePartner(repo)
	second := repo.addPartner(Partner{
		EmpresaID: 1, Documento: "217777770013", RazonSocial: "Partner Tres",
		ComisionPct: 15, Frecuencia: FrequencyQuincenal,
		ProximaFacturacion: testNow.AddDate(0, 0, -1), Activo: true,
	})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: first.ID, BaseAmount: 100, Amount: 15})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: second.ID, BaseAmount: 100, Amount: 15})

	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, PartnerID: &first.ID, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Settled, 1)
	require.Equal(t, first.ID, result.Settled[0].PartnerID)
}

func TestRunRepostsStrandedSettlementInvoice(t *testing.T) {
	repo := newFakeRepo()
	poster := &fakePoster{}
	svc := newTestService(repo, poster)

	partner := duePartner(repo)
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: partner.ID, FacturaID: 10, FacturaLineaID: 100, Porcentaje: 15, BaseAmount: 600, Amount: 90})
	repo.addCommission(Commission{EmpresaID: 1, PartnerID: partner.ID, FacturaID: 11, FacturaLineaID: 101, Porcentaje: 15, BaseAmount: 400, Amount: 60})

	poster.failNext = errors.New("ledger unavailable")
	result, err := svc.Run(context.Background(), RunInput{EmpresaID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)

	// The settlement tx committed: commissions invoiced, no journal entry.
	for _, c := range repo.commissions {
		require.Equal(t, ComisionFacturada, c.EstadoComision)
	}
	require.Len(t, repo.invoices, 1)
	require.Empty(t, repo.entries)

	// The next run reposts the stranded invoice instead of settling again.
	result, err = svc.Run(context.Background(), RunInput{EmpresaID: 1, Force: true, ActorID: 42})
	require.NoError(t, err)
	require.Len(t, result.Settled, 1)
	require.Equal(t, "FC-00001", result.Settled[0].Invoice)
	require.Equal(t, 994.30, result.Settled[0].Total)
	require.Equal(t, 2, result.Settled[0].Commissions)

	require.Len(t, repo.invoices, 1)
	require.Len(t, repo.entries, 1)
	require.Len(t, poster.posted, 1)
	var invoiceID int64
	for id := range repo.invoices {
		invoiceID = id
	}
	require.Equal(t, journals.SourceRef("SETTLEMENT", invoiceID), poster.posted[0].SourceID)
}

func TestUpsertPartnerDefaultsSchedule(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePoster{})

	p, err := svc.UpsertPartner(context.Background(), Partner{
		EmpresaID: 1, Documento: "211111110014", RazonSocial: "Partner Nuevo", ComisionPct: 12, Activo: true,
	})
	require.NoError(t, err)
	require.Equal(t, FrequencyQuincenal, p.Frecuencia)
	require.Equal(t, testNow.AddDate(0, 0, 15), p.ProximaFacturacion)
}
