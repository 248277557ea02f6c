// Package scheduler runs the daily reservation expiry sweep at a
// fixed UTC wall time.
package scheduler

import (
	"context"
	"log"
	"time"
)

// Sweep is the function the scheduler triggers. It returns how many
// reservations were expired.
type Sweep func(ctx context.Context) (int, error)

// Sweeper fires once per day at Hour:Minute UTC. Runs are
// independent: a failed run is logged and the next one still happens.
type Sweeper struct {
	Hour   int
	Minute int
	Sweep  Sweep
}

// NewSweeper returns a Sweeper firing daily at the given UTC wall time.
func NewSweeper(hour, minute int, sweep Sweep) *Sweeper {
	return &Sweeper{Hour: hour, Minute: minute, Sweep: sweep}
}

// Start launches the sweep loop in a goroutine. It stops when ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		next := nextRun(time.Now().UTC(), s.Hour, s.Minute)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		n, err := s.Sweep(runCtx)
		cancel()
		if err != nil {
			log.Printf("sweeper: expiry sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("sweeper: expired %d reservations", n)
		}
	}
}

// nextRun returns the first instant strictly after now that falls on
// the given UTC wall time.
func nextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
