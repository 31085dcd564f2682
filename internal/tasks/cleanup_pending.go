package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// PendingStateCleaner reclaims abandoned federated login state rows.
type PendingStateCleaner interface {
	CleanupExpiredStates() (int64, error)
}

// CleanupPendingStatesTask removes federated login correlation rows whose
// replay window has closed without a callback ever arriving.
type CleanupPendingStatesTask struct{}

// Config returns the queue configuration for pending state cleanup tasks.
func (t CleanupPendingStatesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_pending_states",
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

// CleanupPendingStatesProcessor creates a processor function for
// CleanupPendingStatesTask.
func CleanupPendingStatesProcessor(cleaner PendingStateCleaner) backlite.QueueProcessor[CleanupPendingStatesTask] {
	return func(ctx context.Context, task CleanupPendingStatesTask) error {
		if cleaner == nil {
			return fmt.Errorf("pending state cleaner not configured")
		}

		removed, err := cleaner.CleanupExpiredStates()
		if err != nil {
			return fmt.Errorf("cleanup pending states: %w", err)
		}

		if removed > 0 {
			log.Printf("[TASK] Removed %d abandoned login states", removed)
		}
		return nil
	}
}

// NewCleanupPendingStatesQueue creates a backlite queue for pending state
// cleanup tasks.
func NewCleanupPendingStatesQueue(cleaner PendingStateCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupPendingStatesProcessor(cleaner))
}
