package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// AccountResolver maps chart codes to accounts for an empresa.
type AccountResolver interface {
	Resolve(ctx context.Context, empresaID int64, codes []string) (map[string]accounts.Account, error)
}

// PeriodGuard blocks postings into periods that do not accept entries.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, empresaID int64, date time.Time) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service coordinates posting and reversing journal entries.
type Service struct {
	repo     Repository
	resolver AccountResolver
	guard    PeriodGuard
	audit    AuditPort
	posted   prometheus.Counter
	now      func() time.Time
}

// NewService constructs the ledger posting service.
func NewService(repo Repository, resolver AccountResolver, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, resolver: resolver, guard: guard, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPostedCounter wires the posted-entries metric.
func (s *Service) WithPostedCounter(c prometheus.Counter) {
	s.posted = c
}

// List returns recent entries for an empresa.
func (s *Service) List(ctx context.Context, empresaID int64, limit, offset int) ([]JournalEntry, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	return s.repo.List(ctx, empresaID, limit, offset)
}

// Get loads one entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, entryID)
}

// GetBySource loads the entry already linked to a source document. Callers
// use it to recover the entry after Post reports ErrSourceAlreadyLinked.
func (s *Service) GetBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	return s.repo.GetBySource(ctx, module, ref)
}

// Post validates and persists a new confirmed journal entry. Number
// allocation, account resolution, header, lines and the source link share
// one transaction; there is no compensating delete because nothing partial
// ever commits.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if s.guard != nil {
		if err := s.guard.EnsureOpenForPosting(ctx, input.EmpresaID, input.Date); err != nil {
			return JournalEntry{}, err
		}
	}
	codes := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		codes = append(codes, line.AccountCode)
	}
	resolved, err := s.resolver.Resolve(ctx, input.EmpresaID, codes)
	if err != nil {
		return JournalEntry{}, err
	}

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, input.EmpresaID, series.Asientos)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntry(ctx, JournalEntry{
			EmpresaID:    input.EmpresaID,
			Number:       number,
			Date:         input.Date,
			Memo:         input.Memo,
			Reference:    input.Reference,
			SourceModule: input.SourceModule,
			SourceID:     input.SourceID,
			Status:       JournalStatusConfirmado,
			PostedBy:     input.ActorID,
		})
		if err != nil {
			return err
		}
		lines := toJournalLines(inserted.ID, input.Lines, resolved)
		if err := tx.InsertJournalLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, inserted.ID); err != nil {
			if errors.Is(err, shared.ErrSourceConflict) {
				return fmt.Errorf("%w: %s %s", shared.ErrSourceAlreadyLinked, input.SourceModule, input.SourceID)
			}
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.posted != nil {
		s.posted.Inc()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			EmpresaID: entry.EmpresaID,
			ActorID:   input.ActorID,
			Action:    "journal.post",
			Entity:    "asiento",
			EntityID:  entry.Number,
			Meta: map[string]any{
				"source_module": input.SourceModule,
				"source_id":     input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Reverse posts a mirrored entry for an existing confirmed one. Entries are
// never edited or deleted in place.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("accounting: entry id required")
	}
	if input.ActorID == 0 {
		return JournalEntry{}, internalShared.ErrActorRequired
	}
	original, err := s.repo.GetWithLines(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = original.Date
	}
	posting := PostingInput{
		EmpresaID:    original.EmpresaID,
		Date:         date,
		Memo:         defaultReversalMemo(input.Memo, original.Number),
		Reference:    original.Number,
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     SourceRef(original.SourceModule+":REVERSAL", original.ID),
		ActorID:      input.ActorID,
		Lines:        reverseLines(original.Lines),
	}
	reversal, err := s.Post(ctx, posting)
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			EmpresaID: original.EmpresaID,
			ActorID:   input.ActorID,
			Action:    "journal.reverse",
			Entity:    "asiento",
			EntityID:  original.Number,
			Meta: map[string]any{
				"reversal_number": reversal.Number,
			},
			At: s.now(),
		})
	}
	return reversal, nil
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, inputs []PostingLineInput, resolved map[string]accounts.Account) []JournalLine {
	out := make([]JournalLine, 0, len(inputs))
	for idx, line := range inputs {
		out = append(out, JournalLine{
			JournalID:   entryID,
			LineNo:      idx + 1,
			AccountID:   resolved[line.AccountCode].ID,
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversión de %s", number)
}
