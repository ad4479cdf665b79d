package partners

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	"github.com/ledgersur/ledgersur/internal/observability"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Poster abstracts the ledger posting service.
type Poster interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	GetBySource(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
}

// Service runs partner commission settlements.
type Service struct {
	repo     Repository
	poster   Poster
	strategy SettlementStrategy
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewService(repo Repository, poster Poster, strategy SettlementStrategy, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, poster: poster, strategy: strategy, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// UpsertPartner matches by documento within the empresa. A new partner with
// no schedule starts at the next frequency offset from now.
func (s *Service) UpsertPartner(ctx context.Context, p Partner) (Partner, error) {
	if p.EmpresaID == 0 {
		return Partner{}, internalShared.ErrEmpresaRequired
	}
	p.Documento = strings.TrimSpace(p.Documento)
	if p.Documento == "" {
		return Partner{}, fmt.Errorf("partners: documento required")
	}
	if p.Frecuencia == "" {
		p.Frecuencia = FrequencyQuincenal
	}
	if p.ProximaFacturacion.IsZero() {
		p.ProximaFacturacion = NextBilling(s.now(), p.Frecuencia)
	}
	return s.repo.UpsertPartner(ctx, p)
}

// GetPartner loads one partner.
func (s *Service) GetPartner(ctx context.Context, id int64) (Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

// ListCommissions returns commissions for an empresa, optionally filtered.
func (s *Service) ListCommissions(ctx context.Context, empresaID, partnerID int64, estado CommissionState) ([]Commission, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	return s.repo.ListCommissions(ctx, empresaID, partnerID, estado)
}

// RunInput scopes a settlement run. PartnerID narrows the run to one
// partner; Force ignores the billing schedule.
type RunInput struct {
	EmpresaID int64
	PartnerID *int64
	Force     bool
	ActorID   int64
}

// Run settles every due partner. Each partner is processed in its own
// transaction; a failure is recorded in the result and the batch continues.
func (s *Service) Run(ctx context.Context, in RunInput) (RunResult, error) {
	if in.EmpresaID == 0 {
		return RunResult{}, internalShared.ErrEmpresaRequired
	}
	now := s.now()
	result := RunResult{EmpresaID: in.EmpresaID, RanAt: now}

	var candidates []Partner
	if in.PartnerID != nil {
		partner, err := s.repo.GetPartner(ctx, *in.PartnerID)
		if err != nil {
			return RunResult{}, err
		}
		candidates = []Partner{partner}
	} else {
		all, err := s.repo.ListActivePartners(ctx, in.EmpresaID)
		if err != nil {
			return RunResult{}, err
		}
		candidates = all
	}

	for _, partner := range candidates {
		if !DueForSettlement(partner, now, in.Force) {
			result.Skipped = append(result.Skipped, PartnerResult{
				PartnerID: partner.ID, RazonSocial: partner.RazonSocial, Reason: ErrNotDue.Error(),
			})
			continue
		}
		settled, err := s.settleOne(ctx, partner, now, in.ActorID)
		switch {
		case err == nil:
			result.Settled = append(result.Settled, settled)
			s.metrics.SettlementRuns.WithLabelValues("settled").Inc()
		case errors.Is(err, ErrNothingToSettle):
			result.Skipped = append(result.Skipped, PartnerResult{
				PartnerID: partner.ID, RazonSocial: partner.RazonSocial, Reason: err.Error(),
			})
			s.metrics.SettlementRuns.WithLabelValues("skipped").Inc()
		default:
			s.logger.Error("partner settlement failed",
				slog.Int64("partner_id", partner.ID), slog.Any("error", err))
			result.Failed = append(result.Failed, PartnerResult{
				PartnerID: partner.ID, RazonSocial: partner.RazonSocial, Reason: err.Error(),
			})
			s.metrics.SettlementRuns.WithLabelValues("failed").Inc()
		}
	}
	return result, nil
}

func (s *Service) settleOne(ctx context.Context, partner Partner, now time.Time, actorID int64) (PartnerResult, error) {
	// A previous run may have invoiced the commissions and then failed to
	// post. Those commissions are already facturada, so that invoice must be
	// reposted before anything new is settled.
	if result, err := s.repostStranded(ctx, partner, actorID); err == nil {
		return result, nil
	} else if !errors.Is(err, ErrNoUnpostedInvoice) {
		return PartnerResult{}, err
	}

	var (
		invoice   SettlementInvoice
		breakdown Breakdown
		count     int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetPartnerForUpdate(ctx, partner.ID)
		if err != nil {
			return err
		}
		commissions, err := tx.PendingCommissionsForUpdate(ctx, locked.ID)
		if err != nil {
			return err
		}
		if len(commissions) == 0 {
			return ErrNothingToSettle
		}
		gross := decimal.Zero
		ids := make([]int64, 0, len(commissions))
		for _, c := range commissions {
			gross = gross.Add(decimal.NewFromFloat(c.BaseAmount))
			ids = append(ids, c.ID)
		}
		breakdown = s.strategy.Compute(gross.Round(2).InexactFloat64(), locked.ComisionPct)

		number, err := tx.NextNumber(ctx, locked.EmpresaID, series.FacturasCompra)
		if err != nil {
			return err
		}
		invoice, err = tx.InsertSettlementInvoice(ctx, SettlementInvoice{
			EmpresaID: locked.EmpresaID,
			Number:    number,
			PartnerID: locked.ID,
			Nombre:    locked.RazonSocial,
			Documento: locked.Documento,
			Date:      now,
			Subtotal:  breakdown.PreTax,
			IVA:       breakdown.VAT,
			Total:     breakdown.TotalPayable,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkCommissionsFacturada(ctx, ids, invoice.ID); err != nil {
			return err
		}
		count = len(ids)
		return tx.AdvanceSchedule(ctx, locked.ID, NextBilling(now, locked.Frecuencia))
	})
	if err != nil {
		return PartnerResult{}, err
	}

	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         now,
		Memo:         fmt.Sprintf("Liquidación %s (%s)", partner.RazonSocial, invoice.Number),
		Reference:    invoice.Number,
		SourceModule: "SETTLEMENT",
		SourceID:     journals.SourceRef("SETTLEMENT", invoice.ID),
		ActorID:      actorID,
		Lines: journals.PartnerPayoutLines(invoice.Number, partner.RazonSocial,
			breakdown.Gross, breakdown.PlatformFee, breakdown.GatewayRetention,
			breakdown.VAT, breakdown.TotalPayable),
	})
	if err != nil {
		return PartnerResult{}, fmt.Errorf("partners: payout posting for %s: %w", invoice.Number, err)
	}
	if err := s.repo.SetInvoiceJournalEntry(ctx, invoice.ID, entry.ID); err != nil {
		return PartnerResult{}, err
	}
	return PartnerResult{
		PartnerID:   partner.ID,
		RazonSocial: partner.RazonSocial,
		Invoice:     invoice.Number,
		Total:       breakdown.TotalPayable,
		Commissions: count,
	}, nil
}

// repostStranded retries the payout entry for a settlement invoice whose
// posting failed after the settlement tx committed. The payout lines are
// rebuilt from the gross base of the commissions linked to the invoice.
func (s *Service) repostStranded(ctx context.Context, partner Partner, actorID int64) (PartnerResult, error) {
	invoice, gross, count, err := s.repo.UnpostedSettlement(ctx, partner.ID)
	if err != nil {
		return PartnerResult{}, err
	}
	breakdown := s.strategy.Compute(gross, partner.ComisionPct)
	entry, err := s.postOnce(ctx, journals.PostingInput{
		EmpresaID:    invoice.EmpresaID,
		Date:         invoice.Date,
		Memo:         fmt.Sprintf("Liquidación %s (%s)", partner.RazonSocial, invoice.Number),
		Reference:    invoice.Number,
		SourceModule: "SETTLEMENT",
		SourceID:     journals.SourceRef("SETTLEMENT", invoice.ID),
		ActorID:      actorID,
		Lines: journals.PartnerPayoutLines(invoice.Number, partner.RazonSocial,
			breakdown.Gross, breakdown.PlatformFee, breakdown.GatewayRetention,
			breakdown.VAT, breakdown.TotalPayable),
	})
	if err != nil {
		return PartnerResult{}, fmt.Errorf("partners: payout reposting for %s: %w", invoice.Number, err)
	}
	if err := s.repo.SetInvoiceJournalEntry(ctx, invoice.ID, entry.ID); err != nil {
		return PartnerResult{}, err
	}
	s.logger.Info("settlement invoice reposted",
		slog.Int64("partner_id", partner.ID), slog.String("factura", invoice.Number))
	return PartnerResult{
		PartnerID:   partner.ID,
		RazonSocial: partner.RazonSocial,
		Invoice:     invoice.Number,
		Total:       invoice.Total,
		Commissions: count,
	}, nil
}

// postOnce posts the input, resolving a respaldo conflict to the entry that
// already carries the link.
func (s *Service) postOnce(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error) {
	entry, err := s.poster.Post(ctx, input)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, shared.ErrSourceAlreadyLinked) || errors.Is(err, shared.ErrSourceConflict) {
		return s.poster.GetBySource(ctx, input.SourceModule, input.SourceID)
	}
	return journals.JournalEntry{}, err
}
