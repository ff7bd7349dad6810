package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock hands out tick channels on demand so tests control time fully.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waits = append(c.waits, ch)
	return ch
}

// fire releases the oldest pending wait, advancing the clock by d.
func (c *fakeClock) fire(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waits) == 0 {
		return false
	}
	c.now = c.now.Add(d)
	ch := c.waits[0]
	c.waits = c.waits[1:]
	ch <- c.now
	return true
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSchedulerTicksAndReschedules(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	var ticks int
	s := New("test", clock, time.Minute, func(ctx context.Context, now time.Time) (time.Duration, error) {
		mu.Lock()
		ticks++
		mu.Unlock()
		return time.Hour, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Minute)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks == 1
	})
	// The tick's returned delay must have been re-armed.
	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Hour)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks == 2
	})
}

func TestSchedulerErrorStillReschedules(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	var ticks, hookCalls int
	s := New("failing", clock, time.Minute, func(ctx context.Context, now time.Time) (time.Duration, error) {
		mu.Lock()
		ticks++
		mu.Unlock()
		return time.Hour, errors.New("tick boom")
	}, zerolog.Nop(), WithErrorHook(func(name string) {
		mu.Lock()
		hookCalls++
		mu.Unlock()
		if name != "failing" {
			t.Errorf("hook got name %q, want failing", name)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Minute)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks == 1 && hookCalls == 1
	})
	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Hour)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks == 2 && hookCalls == 2
	})
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	var ticks int
	s := New("panicky", clock, time.Minute, func(ctx context.Context, now time.Time) (time.Duration, error) {
		mu.Lock()
		ticks++
		n := ticks
		mu.Unlock()
		if n == 1 {
			panic("tick blew up")
		}
		return time.Hour, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Minute)
	// The panic is recovered and, with no usable delay, the scheduler falls
	// back to a one-minute retry.
	waitFor(t, func() bool { return clock.pending() == 1 })
	clock.fire(time.Minute)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks == 2
	})
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	s := New("stopping", clock, time.Minute, func(ctx context.Context, now time.Time) (time.Duration, error) {
		return time.Hour, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return clock.pending() == 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUntilUTCHour(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		hour int
		want time.Duration
	}{
		{"earlier today", time.Date(2026, time.March, 1, 6, 30, 0, 0, time.UTC), 9, 2*time.Hour + 30*time.Minute},
		{"exactly on the hour", time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC), 9, 24 * time.Hour},
		{"already past", time.Date(2026, time.March, 1, 14, 0, 0, 0, time.UTC), 9, 19 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UntilUTCHour(tc.now, tc.hour); got != tc.want {
				t.Fatalf("UntilUTCHour(%v, %d) = %v, want %v", tc.now, tc.hour, got, tc.want)
			}
		})
	}
}
