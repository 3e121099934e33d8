package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Sweeper expires overdue reservations; satisfied by inventory.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ReservationSweepJob releases holds whose TTL has elapsed. Safe to run from
// multiple workers at once: the sweep query locks candidate rows with SKIP
// LOCKED, so each reservation is released exactly once.
type ReservationSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewReservationSweepJob wires the sweep handler.
func NewReservationSweepJob(sweeper Sweeper, logger *slog.Logger) *ReservationSweepJob {
	return &ReservationSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskReservationSweep tasks.
func (j *ReservationSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("reservation sweep: handler not configured")
	}
	now := j.now()
	swept, err := j.Sweeper.SweepExpired(ctx, now)
	if err != nil {
		j.logger().Error("sweep expired reservations", slog.Any("error", err))
		return err
	}
	if swept > 0 {
		j.logger().Info("swept expired reservations", slog.Int("count", swept))
	}
	return nil
}

func (j *ReservationSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReservationSweep))
	}
	return slog.Default().With(slog.String("job", TaskReservationSweep))
}

func (j *ReservationSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
