package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/weavetrack/erp-api/pkg/logger"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler fires named jobs on cron schedules. Each firing is handed to
// the worker pool rather than run on the cron goroutine.
type Scheduler struct {
	cron    *cron.Cron
	worker  *Worker
	mu      sync.RWMutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler that runs jobs in UTC on worker.
func NewScheduler(worker *Worker) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		worker:  worker,
		entries: make(map[string]cron.EntryID),
	}
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Register adds job under name. Registering the same name twice is an error.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		logger.Info("Scheduled job triggered", "job", name)
		s.worker.Enqueue(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	s.entries[name] = id
	return nil
}

// NextRun returns when name fires next, or the zero time if unknown.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new firings. The returned context is done once running
// cron callbacks have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
