package hal

import (
	"sync/atomic"
	"time"

	"codeberg.org/mutker/stepperctl/internal/errors"
)

// MonotonicTimer derives the microsecond counter from the Go monotonic clock
type MonotonicTimer struct {
	initialized atomic.Bool
	running     atomic.Bool
	base        time.Time
	stoppedAt   atomic.Uint32
}

func NewMonotonicTimer() *MonotonicTimer {
	return &MonotonicTimer{}
}

func (t *MonotonicTimer) Init(cfg TimerConfig) error {
	if cfg.ResolutionUs != 1 {
		return errors.New().WithData(ErrTimerResolution, cfg.ResolutionUs)
	}
	t.initialized.Store(true)

	return nil
}

func (t *MonotonicTimer) Start() error {
	if !t.initialized.Load() {
		return errors.New().New(ErrTimerNotInitialized)
	}
	if t.running.Load() {
		return nil
	}
	t.base = time.Now()
	t.running.Store(true)

	return nil
}

func (t *MonotonicTimer) Stop() error {
	if !t.running.Load() {
		return nil
	}
	t.stoppedAt.Store(t.Counter())
	t.running.Store(false)

	return nil
}

func (t *MonotonicTimer) Counter() uint32 {
	if !t.running.Load() {
		return t.stoppedAt.Load()
	}

	//nolint:gosec // G115: wraparound is part of the counter contract
	return uint32(time.Since(t.base) / time.Microsecond)
}

// MonotonicClock is a millisecond tick counter based on process start
type MonotonicClock struct {
	base time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{base: time.Now()}
}

func (c *MonotonicClock) Tick() uint32 {
	//nolint:gosec // G115: wraps after ~49 days like the hardware tick
	return uint32(time.Since(c.base) / time.Millisecond)
}

func (*MonotonicClock) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
