package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ledgersur/ledgersur/internal/accounting/series"
	"github.com/ledgersur/ledgersur/internal/ar"
	"github.com/ledgersur/ledgersur/internal/observability"
	"github.com/ledgersur/ledgersur/internal/partners"
)

const dedupTTL = 24 * time.Hour

// IngestResult is the data block of a successful ingestion response.
type IngestResult struct {
	FacturaID             int64  `json:"factura_id"`
	NumeroFactura         string `json:"numero_factura"`
	ClienteID             int64  `json:"cliente_id"`
	ComisionesRegistradas int    `json:"comisiones_registradas"`
	Duplicated            bool   `json:"-"`
}

// Service ingests order.paid events. The raw payload is persisted before any
// processing; the business effects land in a single transaction.
type Service struct {
	repo      Repository
	rdb       *redis.Client
	validator *validator.Validate
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewService(repo Repository, rdb *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:      repo,
		rdb:       rdb,
		validator: validator.New(),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Ingest validates, persists and processes one order.paid payload. A replay
// of a processed event returns the original result with Duplicated set; a
// replay of a failed event retries processing on the same row.
func (s *Service) Ingest(ctx context.Context, raw []byte) (IngestResult, error) {
	payload, err := ParsePayload(raw, s.validator)
	if err != nil {
		s.metrics.WebhooksProcessed.WithLabelValues("invalid").Inc()
		return IngestResult{}, err
	}

	event, result, err := s.ensureEvent(ctx, payload, raw)
	if err != nil {
		return IngestResult{}, err
	}
	if result != nil {
		s.metrics.WebhooksProcessed.WithLabelValues("duplicate").Inc()
		return *result, nil
	}

	ingested, err := s.process(ctx, payload)
	if err != nil {
		if markErr := s.repo.MarkEventFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logger.Error("mark event failed", slog.Any("error", markErr))
		}
		s.metrics.WebhooksProcessed.WithLabelValues("failed").Inc()
		return IngestResult{}, err
	}
	if err := s.repo.MarkEventProcessed(ctx, event.ID, ingested.FacturaID); err != nil {
		return IngestResult{}, err
	}
	s.metrics.WebhooksProcessed.WithLabelValues("processed").Inc()
	return ingested, nil
}

// ensureEvent persists the raw payload, or resolves a replay. A non-nil
// result means the event was already processed.
func (s *Service) ensureEvent(ctx context.Context, payload OrderPaidPayload, raw []byte) (Event, *IngestResult, error) {
	fresh := true
	if s.rdb != nil {
		key := fmt.Sprintf("webhook:evt:%d:%s", payload.EmpresaID, payload.EventID)
		set, err := s.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
		if err != nil {
			// Redis is a fast path only; the unique constraint decides.
			s.logger.Warn("webhook dedup cache unavailable", slog.Any("error", err))
		} else {
			fresh = set
		}
	}

	row := Event{
		EventID:          payload.EventID,
		EmpresaID:        payload.EmpresaID,
		TipoEvento:       payload.Event,
		Payload:          raw,
		Estado:           EventPendiente,
		MetodoPago:       payload.Payment.Method,
		Pasarela:         payload.Payment.Gateway,
		ComisionPasarela: payload.Payment.GatewayFee,
	}
	if fresh {
		event, err := s.repo.InsertEvent(ctx, row)
		if err == nil {
			return event, nil, nil
		}
		if !errors.Is(err, ErrDuplicateEvent) {
			return Event{}, nil, err
		}
	}

	existing, err := s.repo.GetEventByEventID(ctx, payload.EmpresaID, payload.EventID)
	if errors.Is(err, ErrEventNotFound) {
		// Redis knew the key but the row is gone; insert again.
		event, insErr := s.repo.InsertEvent(ctx, row)
		return event, nil, insErr
	}
	if err != nil {
		return Event{}, nil, err
	}
	if existing.Estado == EventProcesado && existing.FacturaID != nil {
		return existing, &IngestResult{FacturaID: *existing.FacturaID, Duplicated: true}, nil
	}
	// Failed or interrupted earlier; retry on the same row.
	return existing, nil, nil
}

func (s *Service) process(ctx context.Context, payload OrderPaidPayload) (IngestResult, error) {
	now := s.now()
	currency := payload.Order.Currency
	if currency == "" {
		currency = "UYU"
	}
	lines := make([]ar.SalesInvoiceLine, 0, len(payload.Lines))
	var subtotal, iva decimal.Decimal
	for idx, lineIn := range payload.Lines {
		line := ar.ComputeLineTotals(ar.CreateInvoiceLineInput{
			Description: lineIn.Description,
			Quantity:    lineIn.Quantity,
			UnitPrice:   lineIn.UnitPrice,
			IVAPct:      lineIn.IVAPct,
		})
		line.LineNo = idx + 1
		lines = append(lines, line)
		subtotal = subtotal.Add(decimal.NewFromFloat(line.Subtotal))
		iva = iva.Add(decimal.NewFromFloat(line.IVA))
	}

	var result IngestResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cliente, err := tx.UpsertCliente(ctx, ar.Cliente{
			EmpresaID:   payload.EmpresaID,
			RUT:         payload.Customer.RUT,
			RazonSocial: payload.Customer.RazonSocial,
			Email:       payload.Customer.Email,
			Direccion:   payload.Customer.Direccion,
		})
		if err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, payload.EmpresaID, series.FacturasVenta)
		if err != nil {
			return err
		}
		invoice, err := tx.InsertInvoice(ctx, ar.SalesInvoice{
			EmpresaID: payload.EmpresaID,
			Number:    number,
			ClienteID: cliente.ID,
			Date:      now,
			DueDate:   now,
			Currency:  currency,
			Subtotal:  subtotal.Round(2).InexactFloat64(),
			IVA:       iva.Round(2).InexactFloat64(),
			Total:     subtotal.Add(iva).Round(2).InexactFloat64(),
			Status:    ar.StatusPagada,
		})
		if err != nil {
			return err
		}
		inserted, err := tx.InsertInvoiceLines(ctx, invoice.ID, lines)
		if err != nil {
			return err
		}

		registered := 0
		for idx, lineIn := range payload.Lines {
			if lineIn.Partner == nil {
				continue
			}
			frecuencia := partners.BillingFrequency(lineIn.Partner.Frecuencia)
			if frecuencia == "" {
				frecuencia = partners.FrequencyQuincenal
			}
			partner, err := tx.UpsertPartner(ctx, partners.Partner{
				EmpresaID:          payload.EmpresaID,
				Documento:          lineIn.Partner.Documento,
				RazonSocial:        lineIn.Partner.RazonSocial,
				Email:              lineIn.Partner.Email,
				ComisionPct:        lineIn.Partner.ComisionPct,
				Frecuencia:         frecuencia,
				ProximaFacturacion: partners.NextBilling(now, frecuencia),
				Activo:             true,
			})
			if err != nil {
				return err
			}
			base := decimal.NewFromFloat(inserted[idx].Total)
			amount := base.Mul(decimal.NewFromFloat(lineIn.Partner.ComisionPct)).Div(decimal.NewFromInt(100)).Round(2)
			if _, err := tx.InsertCommission(ctx, partners.Commission{
				EmpresaID:      payload.EmpresaID,
				PartnerID:      partner.ID,
				FacturaID:      invoice.ID,
				FacturaLineaID: inserted[idx].ID,
				Porcentaje:     lineIn.Partner.ComisionPct,
				BaseAmount:     base.InexactFloat64(),
				Amount:         amount.InexactFloat64(),
			}); err != nil {
				return err
			}
			registered++
		}
		result = IngestResult{
			FacturaID:             invoice.ID,
			NumeroFactura:         invoice.Number,
			ClienteID:             cliente.ID,
			ComisionesRegistradas: registered,
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}
