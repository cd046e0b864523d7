// Package logrotate periodically recycles the on-disk statelog files a
// long-running netserver/netclient process accumulates, grounded on the
// teacher's taskmanager package (a gocron.Scheduler driving named
// background jobs) repurposed from job-archive housekeeping to state-log
// housekeeping.
package logrotate

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mattlee78/netstate/pkg/log"
)

// Scheduler wraps a gocron.Scheduler driving one recurring rotation job.
type Scheduler struct {
	sched gocron.Scheduler
}

// New creates (but does not start) a Scheduler.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("logrotate: new scheduler: %w", err)
	}
	return &Scheduler{sched: s}, nil
}

// RegisterRotation schedules rotate to run every interval. rotate is
// expected to close and reopen whatever log handles it owns; errors are
// logged, not propagated, matching the teacher's fire-and-forget
// background job style.
func (s *Scheduler) RegisterRotation(interval time.Duration, rotate func() error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := rotate(); err != nil {
				log.Errorf("logrotate: rotation failed: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("logrotate: register job: %w", err)
	}
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.sched.Start() }

// Stop waits for in-flight jobs to finish and stops the scheduler.
func (s *Scheduler) Stop() error { return s.sched.Shutdown() }
