// Package timectrl provides the clock abstractions used by sessions and
// replays. Animation stepping depends on a Clock rather than the wall
// clock directly, so tests and replays can drive time deterministically.
package timectrl

import (
	"sync"
	"time"
)

// Clock supplies the current time to animation stepping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a clock advanced explicitly by its owner. Replays use it
// to step animation at a fixed rate regardless of real elapsed time, and
// tests use it to make frame timing deterministic.
type ManualClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewManualClock constructs a manual clock at the given start time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{t: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Mode describes how a FrameLoop advances frames.
type Mode int

const (
	// RealTime emits frames according to wall-clock time.
	RealTime Mode = iota
	// Accelerated emits frames as quickly as the loop can run while still
	// stepping the frame clock by Tick. Headless replays use this to
	// render a session faster than real time.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// FrameLoop drives fixed-rate frame callbacks and notifies registered
// listeners. In Accelerated mode the loop's own ManualClock advances by
// Tick per frame with no sleeping in between.
type FrameLoop struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	clock *ManualClock
	stop  chan struct{}

	listeners []func(now time.Time, delta time.Duration)
}

// NewFrameLoop constructs a frame loop.
func NewFrameLoop(start time.Time, tick time.Duration, mode Mode) *FrameLoop {
	return &FrameLoop{
		StartTime: start,
		Tick:      tick,
		Mode:      mode,
		clock:     NewManualClock(start),
	}
}

// Clock returns the loop's frame clock. Sessions stepped by this loop
// should read time from it so frame deltas match the loop's ticks.
func (fl *FrameLoop) Clock() Clock { return fl.clock }

// Now returns the current frame time.
func (fl *FrameLoop) Now() time.Time { return fl.clock.Now() }

// AddListener registers a callback invoked on every frame.
func (fl *FrameLoop) AddListener(fn func(now time.Time, delta time.Duration)) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.listeners = append(fl.listeners, fn)
}

// Start runs the loop for the specified frame-time duration in a separate
// goroutine; a non-positive duration runs until Stop. It returns a
// channel that is closed when the loop finishes.
func (fl *FrameLoop) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	stop := make(chan struct{})

	fl.mu.Lock()
	fl.stop = stop
	fl.mu.Unlock()

	go func() {
		defer close(done)

		fl.clock.Set(fl.StartTime)
		elapsed := time.Duration(0)

		var ticker *time.Ticker
		if fl.Mode == RealTime {
			ticker = time.NewTicker(fl.Tick)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-stop:
					return
				}
			} else {
				select {
				case <-stop:
					return
				default:
				}
			}

			now := fl.clock.Advance(fl.Tick)
			elapsed += fl.Tick

			fl.mu.RLock()
			listeners := append([]func(time.Time, time.Duration){}, fl.listeners...)
			fl.mu.RUnlock()

			for _, fn := range listeners {
				fn(now, fl.Tick)
			}
		}
	}()
	return done
}

// Stop asks a running loop to exit. It is safe to call more than once.
func (fl *FrameLoop) Stop() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.stop != nil {
		select {
		case <-fl.stop:
		default:
			close(fl.stop)
		}
	}
}
