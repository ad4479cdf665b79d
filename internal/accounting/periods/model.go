package periods

import "time"

// Status enumerates fiscal year and period states.
type Status string

const (
	StatusAbierto           Status = "abierto"
	StatusCerrado           Status = "cerrado"
	StatusCerradoDefinitivo Status = "cerrado_definitivo"
)

// ClosureAction enumerates audit trail actions.
type ClosureAction string

const (
	ActionCierre     ClosureAction = "CIERRE"
	ActionReapertura ClosureAction = "REAPERTURA"
)

// FiscalYear models an ejercicio fiscal scoped to an empresa.
type FiscalYear struct {
	ID        int64
	EmpresaID int64
	Year      int
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	ClosedBy  *int64
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period models a one-month accounting window within a fiscal year.
type Period struct {
	ID              int64
	FiscalYearID    int64
	EmpresaID       int64
	Month           int
	Name            string
	StartDate       time.Time
	EndDate         time.Time
	Status          Status
	PermiteAsientos bool
	// Totals captured at close time.
	ClosedDebit      float64
	ClosedCredit     float64
	ClosedEntryCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// ClosureAudit is one append-only row of the close/reopen trail. Rows are
// never updated or deleted.
type ClosureAudit struct {
	ID           int64
	EmpresaID    int64
	PeriodID     *int64
	FiscalYearID *int64
	Action       ClosureAction
	ActorID      int64
	Reason       string
	Observations string
	StatusBefore Status
	StatusAfter  Status
	TotalDebit   float64
	TotalCredit  float64
	EntryCount   int
	At           time.Time
}

// PeriodTotals aggregates confirmed journal activity inside a period window.
type PeriodTotals struct {
	Debit      float64
	Credit     float64
	EntryCount int
	// Unconfirmed counts entries in range whose status is not confirmado.
	Unconfirmed int
}
