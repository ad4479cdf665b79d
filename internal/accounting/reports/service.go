package reports

import (
	"context"
	"time"

	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Service builds trial balance reports.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Request bounds a trial balance computation.
type Request struct {
	EmpresaID int64
	From      time.Time
	To        time.Time
	Level     int
}

// TrialBalance computes the report for the window. From defaults to the
// epoch (no opening cut) and To defaults to today.
func (s *Service) TrialBalance(ctx context.Context, req Request) (TrialBalance, error) {
	if req.EmpresaID == 0 {
		return TrialBalance{}, internalShared.ErrEmpresaRequired
	}
	from := req.From
	if from.IsZero() {
		from = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	to := req.To
	if to.IsZero() {
		to = time.Now()
	}
	balances, err := s.repo.AccountBalances(ctx, req.EmpresaID, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(balances, req.Level), nil
}
