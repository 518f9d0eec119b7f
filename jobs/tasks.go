package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRebuild rebuilds ledger rows for a date range.
	TaskLedgerRebuild = "ledger:rebuild"
	// TaskPnLBuild builds a P&L snapshot for a period.
	TaskPnLBuild = "pnl:build"
)

// LedgerRebuildPayload selects what to rebuild. An empty Family rebuilds every
// family. Empty dates mean the trailing LookbackDays ending at the most recent
// closed shift.
type LedgerRebuildPayload struct {
	Family       string `json:"family,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	LookbackDays int    `json:"lookback_days,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// PnLBuildPayload selects the snapshot period.
type PnLBuildPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewLedgerRebuildTask constructs an Asynq task for ledger rebuilds.
func NewLedgerRebuildTask(payload LedgerRebuildPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRebuild, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// NewPnLBuildTask constructs an Asynq task for snapshot builds.
func NewPnLBuildTask(payload PnLBuildPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPnLBuild, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
