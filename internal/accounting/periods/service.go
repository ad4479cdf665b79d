package periods

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

var (
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = errors.New("periods: period not found")
	// ErrFiscalYearNotFound indicates a missing fiscal year row.
	ErrFiscalYearNotFound = errors.New("periods: fiscal year not found")
	// ErrYearAlreadyExists indicates a duplicate ejercicio for the empresa.
	ErrYearAlreadyExists = errors.New("periods: fiscal year already exists")
	// ErrNotOpen indicates a close attempt on a non-open period.
	ErrNotOpen = errors.New("periods: period is not open")
	// ErrAlreadyOpen indicates a reopen attempt on an open period.
	ErrAlreadyOpen = errors.New("periods: period already open")
	// ErrDefinitivelyClosed indicates the terminal state was reached.
	ErrDefinitivelyClosed = errors.New("periods: period definitively closed")
	// ErrReasonRequired indicates a reopen without justification.
	ErrReasonRequired = errors.New("periods: reopen reason required")
	// ErrPeriodsStillOpen indicates a year close with open months.
	ErrPeriodsStillOpen = errors.New("periods: all periods must be closed first")
)

// ErrUnconfirmedEntries carries the offending count when a close is rejected.
type ErrUnconfirmedEntries struct {
	Count int
}

func (e ErrUnconfirmedEntries) Error() string {
	return fmt.Sprintf("periods: %d entries in range are not confirmed", e.Count)
}

// Service drives the fiscal-year and period lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFiscalYearInput bundles parameters for opening an ejercicio.
type CreateFiscalYearInput struct {
	EmpresaID int64
	Year      int
	ActorID   int64
}

var monthNames = [...]string{"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre"}

// CreateFiscalYear inserts the ejercicio and bulk-creates its twelve monthly
// periods, all open.
func (s *Service) CreateFiscalYear(ctx context.Context, in CreateFiscalYearInput) (FiscalYear, []Period, error) {
	if in.EmpresaID == 0 {
		return FiscalYear{}, nil, internalShared.ErrEmpresaRequired
	}
	if in.Year < 2000 || in.Year > 2100 {
		return FiscalYear{}, nil, fmt.Errorf("periods: year %d out of range", in.Year)
	}
	existing, err := s.repo.ListFiscalYears(ctx, in.EmpresaID)
	if err != nil {
		return FiscalYear{}, nil, err
	}
	for _, fy := range existing {
		if fy.Year == in.Year {
			return FiscalYear{}, nil, ErrYearAlreadyExists
		}
	}

	start := time.Date(in.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(in.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
	var year FiscalYear
	var months []Period
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertFiscalYear(ctx, FiscalYear{
			EmpresaID: in.EmpresaID,
			Year:      in.Year,
			StartDate: start,
			EndDate:   end,
			Status:    StatusAbierto,
		})
		if err != nil {
			return err
		}
		year = inserted
		for m := 1; m <= 12; m++ {
			first := time.Date(in.Year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			last := first.AddDate(0, 1, -1)
			p, err := tx.InsertPeriod(ctx, Period{
				FiscalYearID:    inserted.ID,
				EmpresaID:       in.EmpresaID,
				Month:           m,
				Name:            fmt.Sprintf("%s %d", monthNames[m-1], in.Year),
				StartDate:       first,
				EndDate:         last,
				Status:          StatusAbierto,
				PermiteAsientos: true,
			})
			if err != nil {
				return err
			}
			months = append(months, p)
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, nil, err
	}
	return year, months, nil
}

// ListFiscalYears returns the ejercicios for an empresa.
func (s *Service) ListFiscalYears(ctx context.Context, empresaID int64) ([]FiscalYear, error) {
	return s.repo.ListFiscalYears(ctx, empresaID)
}

// ListPeriods returns the months of a fiscal year.
func (s *Service) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, fiscalYearID)
}

// ListClosureAudit returns the most recent close/reopen trail rows.
func (s *Service) ListClosureAudit(ctx context.Context, empresaID int64, limit int) ([]ClosureAudit, error) {
	return s.repo.ListClosureAudit(ctx, empresaID, limit)
}

// CloseInput bundles parameters for closing a period.
type CloseInput struct {
	PeriodID     int64
	ActorID      int64
	Observations string
}

// ClosePeriod locks the period row, verifies every entry in range is
// confirmado, captures totals and appends the CIERRE audit row. A rejection
// leaves the period untouched.
func (s *Service) ClosePeriod(ctx context.Context, in CloseInput) (Period, error) {
	if in.PeriodID == 0 {
		return Period{}, ErrPeriodNotFound
	}
	if in.ActorID == 0 {
		return Period{}, internalShared.ErrActorRequired
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, in.PeriodID)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusCerradoDefinitivo:
			return ErrDefinitivelyClosed
		case StatusCerrado:
			return ErrNotOpen
		}
		totals, err := tx.PeriodTotals(ctx, current.EmpresaID, current.StartDate, current.EndDate)
		if err != nil {
			return err
		}
		if totals.Unconfirmed > 0 {
			return ErrUnconfirmedEntries{Count: totals.Unconfirmed}
		}
		before := current.Status
		current.Status = StatusCerrado
		current.PermiteAsientos = false
		current.ClosedDebit = totals.Debit
		current.ClosedCredit = totals.Credit
		current.ClosedEntryCount = totals.EntryCount
		if err := tx.UpdatePeriodStatus(ctx, current); err != nil {
			return err
		}
		periodID := current.ID
		if err := tx.AppendClosureAudit(ctx, ClosureAudit{
			EmpresaID:    current.EmpresaID,
			PeriodID:     &periodID,
			Action:       ActionCierre,
			ActorID:      in.ActorID,
			Observations: in.Observations,
			StatusBefore: before,
			StatusAfter:  StatusCerrado,
			TotalDebit:   totals.Debit,
			TotalCredit:  totals.Credit,
			EntryCount:   totals.EntryCount,
			At:           s.now(),
		}); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// ReopenInput bundles parameters for reopening a period.
type ReopenInput struct {
	PeriodID     int64
	ActorID      int64
	Reason       string
	Observations string
}

// ReopenPeriod returns a closed period to abierto. A reason is mandatory and
// a definitively closed period never reopens.
func (s *Service) ReopenPeriod(ctx context.Context, in ReopenInput) (Period, error) {
	if in.PeriodID == 0 {
		return Period{}, ErrPeriodNotFound
	}
	if in.ActorID == 0 {
		return Period{}, internalShared.ErrActorRequired
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Period{}, ErrReasonRequired
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, in.PeriodID)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusCerradoDefinitivo:
			return ErrDefinitivelyClosed
		case StatusAbierto:
			return ErrAlreadyOpen
		}
		before := current.Status
		current.Status = StatusAbierto
		current.PermiteAsientos = true
		if err := tx.UpdatePeriodStatus(ctx, current); err != nil {
			return err
		}
		periodID := current.ID
		if err := tx.AppendClosureAudit(ctx, ClosureAudit{
			EmpresaID:    current.EmpresaID,
			PeriodID:     &periodID,
			Action:       ActionReapertura,
			ActorID:      in.ActorID,
			Reason:       in.Reason,
			Observations: in.Observations,
			StatusBefore: before,
			StatusAfter:  StatusAbierto,
			At:           s.now(),
		}); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// CloseFiscalYearInput bundles parameters for the definitive year close.
type CloseFiscalYearInput struct {
	FiscalYearID int64
	ActorID      int64
	Observations string
}

// CloseFiscalYear moves the ejercicio and all its months to
// cerrado_definitivo. Every month must already be cerrado.
func (s *Service) CloseFiscalYear(ctx context.Context, in CloseFiscalYearInput) (FiscalYear, error) {
	if in.FiscalYearID == 0 {
		return FiscalYear{}, ErrFiscalYearNotFound
	}
	if in.ActorID == 0 {
		return FiscalYear{}, internalShared.ErrActorRequired
	}
	var year FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetFiscalYearForUpdate(ctx, in.FiscalYearID)
		if err != nil {
			return err
		}
		if current.Status == StatusCerradoDefinitivo {
			return ErrDefinitivelyClosed
		}
		months, err := tx.ListPeriodsForUpdate(ctx, current.ID)
		if err != nil {
			return err
		}
		for _, p := range months {
			if p.Status != StatusCerrado {
				return ErrPeriodsStillOpen
			}
		}
		before := current.Status
		now := s.now()
		actor := in.ActorID
		current.Status = StatusCerradoDefinitivo
		current.ClosedBy = &actor
		current.ClosedAt = &now
		if err := tx.UpdateFiscalYearStatus(ctx, current); err != nil {
			return err
		}
		for _, p := range months {
			p.Status = StatusCerradoDefinitivo
			p.PermiteAsientos = false
			if err := tx.UpdatePeriodStatus(ctx, p); err != nil {
				return err
			}
		}
		yearID := current.ID
		if err := tx.AppendClosureAudit(ctx, ClosureAudit{
			EmpresaID:    current.EmpresaID,
			FiscalYearID: &yearID,
			Action:       ActionCierre,
			ActorID:      in.ActorID,
			Observations: in.Observations,
			StatusBefore: before,
			StatusAfter:  StatusCerradoDefinitivo,
			At:           now,
		}); err != nil {
			return err
		}
		year = current
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	return year, nil
}

// EnsureOpenForPosting is the guard used by the posting path. The date must
// fall inside a period that currently accepts entries.
func (s *Service) EnsureOpenForPosting(ctx context.Context, empresaID int64, date time.Time) error {
	period, err := s.repo.FindPeriodByDate(ctx, empresaID, date)
	if err != nil {
		return err
	}
	if period.Status == StatusCerradoDefinitivo {
		return shared.ErrPeriodLocked
	}
	if !period.PermiteAsientos || period.Status != StatusAbierto {
		return shared.ErrPeriodClosed
	}
	return nil
}
