package feeds

import (
	"context"
	"errors"
	"time"
)

// Scheduler invokes a task periodically
// The task must not block for long: it's meant to submit work, such as Feeds.QueueUpdate
type Scheduler struct {
	// Interval between runs
	Interval time.Duration
	// Delay before the first run
	Delay time.Duration
	// Task to invoke
	Task func(ctx context.Context)
}

// Run invokes the task after the delay and then at every interval, until the context is canceled
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return errors.New("scheduler interval must be greater than zero")
	}
	if s.Task == nil {
		return errors.New("scheduler task is nil")
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.Task(ctx)
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		// On the interval, submit the task
		case <-ticker.C:
			s.Task(ctx)

		// Context canceled
		case <-ctx.Done():
			return nil
		}
	}
}
