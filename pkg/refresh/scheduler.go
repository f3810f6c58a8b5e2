// Package refresh runs cron-driven invalidation and eviction sweeps against
// the query store.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/castwave/client/pkg/observability"
)

const evictJobName = "evict"

// Invalidator is the part of the query store the scheduler drives
type Invalidator interface {
	InvalidatePrefix(prefix string) int
	Evict() int
}

type job struct {
	name     string
	prefix   string
	evict    bool
	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler checks its jobs every tick and runs the ones that are due
type Scheduler struct {
	log    logrus.FieldLogger
	target Invalidator
	tick   time.Duration
	now    func() time.Time

	mu   sync.Mutex
	jobs []*job

	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler for cfg. Schedules are parsed here so a
// bad expression fails at startup.
func NewScheduler(log logrus.FieldLogger, cfg *Config, target Invalidator) (*Scheduler, error) {
	s := &Scheduler{
		log:    log.WithField("service", "refresh"),
		target: target,
		tick:   cfg.Tick,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	if s.tick <= 0 {
		s.tick = time.Second
	}

	for _, sc := range cfg.Schedules {
		parsed, err := parser.Parse(sc.Spec)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %s: %w", sc.Name, err)
		}

		s.jobs = append(s.jobs, &job{name: sc.Name, prefix: sc.Prefix, schedule: parsed})
	}

	if cfg.EvictSchedule != "" {
		parsed, err := parser.Parse(cfg.EvictSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid evict schedule: %w", err)
		}

		s.jobs = append(s.jobs, &job{name: evictJobName, evict: true, schedule: parsed})
	}

	return s, nil
}

// Start runs the tick loop. It blocks until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.WithField("jobs", len(s.jobs)).Info("Starting refresh scheduler")

	s.plan(s.now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Refresh scheduler context canceled, stopping")
			return ctx.Err()
		case <-s.done:
			s.log.Info("Refresh scheduler stopped")
			return nil
		case <-ticker.C:
			s.runDue(s.now())
		}
	}
}

// Stop ends the tick loop
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	return nil
}

// plan computes each job's first run after now
func (s *Scheduler) plan(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		j.nextRun = j.schedule.Next(now)
	}
}

// runDue runs every job whose next run is not after now and returns how many
// ran.
func (s *Scheduler) runDue(now time.Time) int {
	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))

	for _, j := range s.jobs {
		if j.nextRun.IsZero() {
			j.nextRun = j.schedule.Next(now)
			continue
		}

		if now.Before(j.nextRun) {
			continue
		}

		due = append(due, j)
		j.nextRun = j.schedule.Next(now)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.run(j)
	}

	return len(due)
}

func (s *Scheduler) run(j *job) {
	observability.RecordRefresh(j.name)

	if j.evict {
		n := s.target.Evict()
		s.log.WithField("evicted", n).Debug("Ran eviction sweep")

		return
	}

	n := s.target.InvalidatePrefix(j.prefix)
	s.log.WithFields(logrus.Fields{
		"schedule":    j.name,
		"prefix":      j.prefix,
		"invalidated": n,
	}).Debug("Ran scheduled invalidation")
}
