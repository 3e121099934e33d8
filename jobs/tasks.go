package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep expires overdue stock reservations.
	TaskReservationSweep = "inventory:reservation_sweep"
	// TaskSummaryWarmup pre-populates the daily sales summary cache.
	TaskSummaryWarmup = "reports:summary_warmup"
)

// SummaryWarmupPayload selects the day to warm. Empty date means yesterday.
type SummaryWarmupPayload struct {
	Date string `json:"date,omitempty"`
}

// NewReservationSweepTask constructs the sweep task.
func NewReservationSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskReservationSweep, nil), nil
}

// NewSummaryWarmupTask constructs the warmup task.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}
