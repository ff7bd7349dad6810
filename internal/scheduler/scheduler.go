// Package scheduler runs self-rescheduling background drivers. Each tick is a
// single shot that computes its own next delay, so a slow tick can never
// overlap the next one, and a failing tick is logged and rescheduled rather
// than killing the process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts wall-clock waits so tick cadence is testable without real
// sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }

// TickFunc performs one scheduler pass and returns the delay until the next
// one. The returned delay is honored even when the tick errors.
type TickFunc func(ctx context.Context, now time.Time) (time.Duration, error)

// Scheduler drives one background concern.
type Scheduler struct {
	name    string
	clock   Clock
	initial time.Duration
	tick    TickFunc
	log     zerolog.Logger
	onError func(name string)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithErrorHook registers a callback invoked after every failed tick, keyed
// by scheduler name. Used for metrics.
func WithErrorHook(hook func(name string)) Option {
	return func(s *Scheduler) { s.onError = hook }
}

// New builds a scheduler named name whose first tick fires after initial.
func New(name string, clock Clock, initial time.Duration, tick TickFunc, log zerolog.Logger, opts ...Option) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	s := &Scheduler{
		name:    name,
		clock:   clock,
		initial: initial,
		tick:    tick,
		log:     log.With().Str("scheduler", name).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes ticks until ctx is cancelled. It blocks; callers start it in
// its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	delay := s.initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}

		now := s.clock.Now()
		next, err := s.runTick(ctx, now)
		if err != nil {
			s.log.Error().Err(err).Msg("scheduler tick failed")
			if s.onError != nil {
				s.onError(s.name)
			}
		}
		if next <= 0 {
			next = time.Minute
		}
		delay = next
	}
}

func (s *Scheduler) runTick(ctx context.Context, now time.Time) (next time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return s.tick(ctx, now)
}

// UntilUTCHour returns the duration from now until the next occurrence of
// hour:00 UTC strictly after now.
func UntilUTCHour(now time.Time, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
