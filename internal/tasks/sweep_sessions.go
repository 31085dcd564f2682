package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// SessionSweeper reclaims expired session rows.
type SessionSweeper interface {
	Sweep() (int64, error)
}

// SweepSessionsTask removes session rows past their expiry. Enqueued on a
// schedule; login requests also sweep opportunistically, so a missed run is
// harmless.
type SweepSessionsTask struct{}

// Config returns the queue configuration for session sweep tasks.
func (t SweepSessionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sweep_sessions",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     1 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SweepSessionsProcessor creates a processor function for SweepSessionsTask.
func SweepSessionsProcessor(sweeper SessionSweeper) backlite.QueueProcessor[SweepSessionsTask] {
	return func(ctx context.Context, task SweepSessionsTask) error {
		if sweeper == nil {
			return fmt.Errorf("session sweeper not configured")
		}

		reclaimed, err := sweeper.Sweep()
		if err != nil {
			return fmt.Errorf("sweep sessions: %w", err)
		}

		if reclaimed > 0 {
			log.Printf("[TASK] Reclaimed %d expired sessions", reclaimed)
		}
		return nil
	}
}

// NewSweepSessionsQueue creates a backlite queue for session sweep tasks.
func NewSweepSessionsQueue(sweeper SessionSweeper) backlite.Queue {
	return backlite.NewQueue(SweepSessionsProcessor(sweeper))
}
