package journals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

type fakeRepo struct {
	counters map[string]int64
	entries  []JournalEntry
	lines    map[int64][]JournalLine
	links    map[string]int64
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		counters: map[string]int64{},
		lines:    map[int64][]JournalLine{},
		links:    map[string]int64{},
	}
}

func (f *fakeRepo) List(ctx context.Context, empresaID int64, limit, offset int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range f.entries {
		if e.EmpresaID == empresaID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	for _, e := range f.entries {
		if e.ID == entryID {
			e.Lines = f.lines[e.ID]
			return e, nil
		}
	}
	return JournalEntry{}, shared.ErrJournalNotFound
}

func (f *fakeRepo) GetBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	id, ok := f.links[module+":"+ref.String()]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return f.GetWithLines(ctx, id)
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := *f
	snapshotEntries := append([]JournalEntry(nil), f.entries...)
	if err := fn(ctx, (*fakeTx)(f)); err != nil {
		*f = snapshot
		f.entries = snapshotEntries
		return err
	}
	return nil
}

type fakeTx fakeRepo

func (f *fakeTx) NextNumber(ctx context.Context, empresaID int64, serie string) (string, error) {
	f.counters[serie]++
	return series.Format(serie, f.counters[serie]), nil
}

func (f *fakeTx) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	f.nextID++
	entry.ID = f.nextID
	entry.PostedAt = time.Now()
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeTx) InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	f.lines[entryID] = lines
	return nil
}

func (f *fakeTx) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := module + ":" + ref.String()
	if _, exists := f.links[key]; exists {
		return shared.ErrSourceConflict
	}
	f.links[key] = entryID
	return nil
}

func (f *fakeTx) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := (*fakeRepo)(f).GetWithLines(ctx, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, entry.Lines, nil
}

type fakeResolver struct {
	accounts map[string]accounts.Account
}

func (f fakeResolver) Resolve(ctx context.Context, empresaID int64, codes []string) (map[string]accounts.Account, error) {
	out := map[string]accounts.Account{}
	for _, code := range codes {
		acc, ok := f.accounts[code]
		if !ok {
			return nil, shared.ErrAccountNotFound
		}
		out[code] = acc
	}
	return out, nil
}

type fakeGuard struct {
	err error
}

func (f fakeGuard) EnsureOpenForPosting(ctx context.Context, empresaID int64, date time.Time) error {
	return f.err
}

type fakeAudit struct {
	logs []internalShared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log internalShared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func testResolver() fakeResolver {
	return fakeResolver{accounts: map[string]accounts.Account{
		accounts.CodeDeudoresPorVentas: {ID: 1, Code: accounts.CodeDeudoresPorVentas},
		accounts.CodeVentas:            {ID: 2, Code: accounts.CodeVentas},
		accounts.CodeIVAPorPagar:       {ID: 3, Code: accounts.CodeIVAPorPagar},
		accounts.CodeCajaYBancos:       {ID: 4, Code: accounts.CodeCajaYBancos},
	}}
}

func saleInput(empresaID int64) PostingInput {
	return PostingInput{
		EmpresaID:    empresaID,
		Date:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Memo:         "Factura FV-00001",
		SourceModule: "AR",
		SourceID:     uuid.New(),
		ActorID:      7,
		Lines: []PostingLineInput{
			{AccountCode: accounts.CodeDeudoresPorVentas, Debit: 1830},
			{AccountCode: accounts.CodeVentas, Credit: 1500},
			{AccountCode: accounts.CodeIVAPorPagar, Credit: 330},
		},
	}
}

func TestPostAssignsSequentialNumbers(t *testing.T) {
	repo := newFakeRepo()
	audit := &fakeAudit{}
	svc := NewService(repo, testResolver(), fakeGuard{}, audit)

	first, err := svc.Post(context.Background(), saleInput(1))
	require.NoError(t, err)
	require.Equal(t, "ASI-00001", first.Number)
	require.Equal(t, JournalStatusConfirmado, first.Status)
	require.Equal(t, int64(7), first.PostedBy)
	require.Len(t, first.Lines, 3)
	require.Equal(t, 1, first.Lines[0].LineNo)
	require.Equal(t, int64(1), first.Lines[0].AccountID)

	second, err := svc.Post(context.Background(), saleInput(1))
	require.NoError(t, err)
	require.Equal(t, "ASI-00002", second.Number)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "journal.post", audit.logs[0].Action)
}

func TestPostNumberContinuesFromCounter(t *testing.T) {
	repo := newFakeRepo()
	repo.counters[series.Asientos] = 42
	svc := NewService(repo, testResolver(), fakeGuard{}, nil)

	entry, err := svc.Post(context.Background(), saleInput(1))
	require.NoError(t, err)
	require.Equal(t, "ASI-00043", entry.Number)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testResolver(), fakeGuard{}, nil)

	unbalanced := saleInput(1)
	unbalanced.Lines[1].Credit = 1400
	_, err := svc.Post(context.Background(), unbalanced)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	mixed := saleInput(1)
	mixed.Lines[0].Credit = 10
	_, err = svc.Post(context.Background(), mixed)
	require.ErrorIs(t, err, shared.ErrMixedLine)

	negative := saleInput(1)
	negative.Lines[0].Debit = -5
	_, err = svc.Post(context.Background(), negative)
	require.ErrorIs(t, err, shared.ErrNegativeAmount)

	short := saleInput(1)
	short.Lines = short.Lines[:1]
	_, err = svc.Post(context.Background(), short)
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	noActor := saleInput(1)
	noActor.ActorID = 0
	_, err = svc.Post(context.Background(), noActor)
	require.ErrorIs(t, err, internalShared.ErrActorRequired)

	require.Empty(t, repo.entries)
}

func TestPostUnknownAccountFailsHard(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, fakeResolver{accounts: map[string]accounts.Account{}}, fakeGuard{}, nil)

	_, err := svc.Post(context.Background(), saleInput(1))
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.Empty(t, repo.entries)
}

func TestPostClosedPeriodRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testResolver(), fakeGuard{err: shared.ErrPeriodClosed}, nil)

	_, err := svc.Post(context.Background(), saleInput(1))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Empty(t, repo.entries)
}

func TestReverseMirrorsLines(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testResolver(), fakeGuard{}, nil)

	original, err := svc.Post(context.Background(), saleInput(1))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{EntryID: original.ID, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, "ASI-00002", reversal.Number)
	require.Equal(t, original.Number, reversal.Reference)
	require.Equal(t, "AR:REVERSAL", reversal.SourceModule)
	require.Equal(t, "Reversión de ASI-00001", reversal.Memo)

	require.Len(t, reversal.Lines, 3)
	for i, line := range reversal.Lines {
		require.Equal(t, original.Lines[i].Debit, line.Credit)
		require.Equal(t, original.Lines[i].Credit, line.Debit)
	}

	// The original stays untouched; corrections never edit in place.
	stored, err := svc.Get(context.Background(), original.ID)
	require.NoError(t, err)
	require.Equal(t, JournalStatusConfirmado, stored.Status)
	require.Equal(t, float64(1830), stored.Lines[0].Debit)
}

func TestPostSameSourceConflicts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testResolver(), fakeGuard{}, nil)

	input := saleInput(1)
	input.SourceID = SourceRef("AR", 7)

	first, err := svc.Post(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 1)

	// The linked entry stays reachable through its source document.
	linked, err := svc.GetBySource(context.Background(), "AR", input.SourceID)
	require.NoError(t, err)
	require.Equal(t, first.ID, linked.ID)
}

func TestSourceRefIsDeterministic(t *testing.T) {
	require.Equal(t, SourceRef("AR", 7), SourceRef("AR", 7))
	require.NotEqual(t, SourceRef("AR", 7), SourceRef("AR", 8))
	require.NotEqual(t, SourceRef("AR", 7), SourceRef("AP", 7))
	require.NotEqual(t, uuid.Nil, SourceRef("AR", 7))
}

func TestReverseTwiceConflicts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, testResolver(), fakeGuard{}, nil)

	original, err := svc.Post(context.Background(), saleInput(1))
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReverseInput{EntryID: original.ID, ActorID: 7})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReverseInput{EntryID: original.ID, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
}
