// Package countdown derives remaining time from absolute server deadlines.
//
// Nothing here counts down a local timer: every read recomputes from the
// deadline and the clock, so suspension or drift cannot desynchronise the
// value presented to the user.
package countdown

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Deadline struct {
	At time.Time
}

func NewDeadline(at time.Time) Deadline {
	return Deadline{At: at}
}

// Remaining is never negative.
func (d Deadline) Remaining(now time.Time) time.Duration {
	r := d.At.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

func (d Deadline) Expired(now time.Time) bool {
	return d.Remaining(now) <= 0
}

// Ticker is implemented by state machines that react to the passage of time.
// Tick returns false once the machine no longer needs ticks.
type Ticker interface {
	Tick(now time.Time) bool
}

// Run calls t.Tick every interval until ctx is cancelled or Tick returns false.
// The first tick fires immediately.
func Run(ctx context.Context, clock Clock, interval time.Duration, t Ticker) {
	if !t.Tick(clock.Now()) {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.Tick(clock.Now()) {
				return
			}
		}
	}
}

// Loop owns at most one running ticker and cancels it when replaced.
type Loop struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewLoop(clock Clock, interval time.Duration) *Loop {
	return &Loop{clock: clock, interval: interval}
}

// Start replaces the current ticker with t. The loop stops when parent is
// cancelled, Stop is called, or t reports it is finished.
func (l *Loop) Start(parent context.Context, t Ticker) {
	l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	go func() {
		defer close(done)
		Run(ctx, l.clock, l.interval, t)
	}()
}

func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
