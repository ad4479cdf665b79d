package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// PostingLineInput describes a journal line for a posting request. Accounts
// are referenced by chart code; resolution to ids happens inside the
// posting transaction and unknown codes fail hard.
type PostingLineInput struct {
	AccountCode string
	Description string
	Debit       float64
	Credit      float64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EmpresaID    int64
	Date         time.Time
	Memo         string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	ActorID      int64
	Lines        []PostingLineInput
}

// Validate ensures posting input meets minimum criteria. Templates are
// balanced by construction, but the sum is verified here anyway so a broken
// caller can never confirm an unbalanced entry.
func (in PostingInput) Validate() error {
	if in.EmpresaID == 0 {
		return internalShared.ErrEmpresaRequired
	}
	if in.ActorID == 0 {
		return internalShared.ErrActorRequired
	}
	if in.Date.IsZero() {
		return errors.New("accounting: date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("accounting: line %d missing account code", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("accounting: line %d: %w", idx, shared.ErrNegativeAmount)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("accounting: line %d: %w", idx, shared.ErrMixedLine)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return shared.ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
	Date    time.Time
}
