package journals

import (
	"time"

	"github.com/google/uuid"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusBorrador   JournalStatus = "borrador"
	JournalStatusConfirmado JournalStatus = "confirmado"
)

// JournalEntry captures posting metadata for an asiento contable. Entries
// are immutable once confirmed; corrections are posted as reversals.
type JournalEntry struct {
	ID           int64
	EmpresaID    int64
	Number       string
	Date         time.Time
	Memo         string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	Status       JournalStatus
	PostedBy     int64
	PostedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores one debit-or-credit amount against an account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	LineNo      int
	AccountID   int64
	AccountCode string
	Description string
	Debit       float64
	Credit      float64
	CreatedAt   time.Time
}
