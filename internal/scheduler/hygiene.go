package scheduler

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/syncserver/internal/tasks"
)

// HygieneScheduler enqueues the periodic storage hygiene tasks: the expired
// session sweep and the abandoned login state cleanup. The actual work runs
// on the task queue workers, so a slow sweep never blocks the scheduler.
type HygieneScheduler struct {
	taskClient         *tasks.Client
	schedule           string
	auditRetentionDays int

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewHygieneScheduler creates a new scheduler instance.
func NewHygieneScheduler(taskClient *tasks.Client, schedule string, auditRetentionDays int) *HygieneScheduler {
	return &HygieneScheduler{
		taskClient:         taskClient,
		schedule:           schedule,
		auditRetentionDays: auditRetentionDays,
		cron:               cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler. Safe to call once; later calls are no-ops.
func (s *HygieneScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueue); err != nil {
		return fmt.Errorf("failed to schedule hygiene job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Hygiene scheduler started with schedule %q", s.schedule)
	return nil
}

// Stop halts the scheduler, waiting for a running enqueue to finish.
func (s *HygieneScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	log.Printf("Hygiene scheduler stopped")
}

func (s *HygieneScheduler) enqueue() {
	if _, err := s.taskClient.Add(tasks.SweepSessionsTask{}).Save(); err != nil {
		log.Printf("Failed to enqueue session sweep: %v", err)
	}
	if _, err := s.taskClient.Add(tasks.CleanupPendingStatesTask{}).Save(); err != nil {
		log.Printf("Failed to enqueue pending state cleanup: %v", err)
	}
	if _, err := s.taskClient.Add(tasks.CleanupAuditEventsTask{RetentionDays: s.auditRetentionDays}).Save(); err != nil {
		log.Printf("Failed to enqueue audit cleanup: %v", err)
	}
}
