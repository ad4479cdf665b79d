package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettlementRun is the task type for scheduled commission settlement.
	TaskSettlementRun = "partners:settlement_run"
)

// SettlementRunPayload scopes a settlement task. A zero EmpresaID means
// every active empresa.
type SettlementRunPayload struct {
	EmpresaID int64 `json:"empresa_id"`
	Force     bool  `json:"force"`
}

// NewSettlementRunTask constructs an Asynq task.
func NewSettlementRunTask(payload SettlementRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementRun, data), nil
}
