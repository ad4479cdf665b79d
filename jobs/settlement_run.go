package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/ledgersur/ledgersur/internal/jobs"
	"github.com/ledgersur/ledgersur/internal/partners"
	"github.com/ledgersur/ledgersur/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SettlementRunJob executes the scheduled partner commission settlement.
type SettlementRunJob struct {
	Partners *partners.Service
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSettlementRunJob wires dependencies for the settlement handler.
func NewSettlementRunJob(svc *partners.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementRunJob {
	return &SettlementRunJob{Partners: svc, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSettlementRun tasks. Partner failures inside a run do
// not fail the task; the run result already records them and the next
// scheduled run picks the pending commissions up again.
func (j *SettlementRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Partners == nil {
		return errors.New("settlement run: handler not configured")
	}
	var payload SettlementRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSettlementRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	empresas, err := j.resolveEmpresas(ctx, payload.EmpresaID)
	if err != nil {
		resultErr = err
		return resultErr
	}

	for _, empresaID := range empresas {
		result, err := j.Partners.Run(ctx, partners.RunInput{
			EmpresaID: empresaID,
			Force:     payload.Force,
			ActorID:   shared.SystemActorID,
		})
		if err != nil {
			resultErr = err
			return resultErr
		}
		j.logger().Info("settlement run finished",
			slog.Int64("empresa_id", empresaID),
			slog.Int("settled", len(result.Settled)),
			slog.Int("skipped", len(result.Skipped)),
			slog.Int("failed", len(result.Failed)))
	}
	return nil
}

func (j *SettlementRunJob) resolveEmpresas(ctx context.Context, empresaID int64) ([]int64, error) {
	if empresaID > 0 {
		return []int64{empresaID}, nil
	}
	if j.Pool == nil {
		return nil, errors.New("settlement run: no empresa scope and no pool configured")
	}
	rows, err := j.Pool.Query(ctx, "SELECT id FROM empresas WHERE activa ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *SettlementRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SettlementRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
