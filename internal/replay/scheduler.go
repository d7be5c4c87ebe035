// internal/replay/scheduler.go

// Package replay plays recorded twist sequences back into live sessions
// on a simulation clock. A Scheduler holds time-ordered callbacks; a
// Player turns a session recording into scheduled dispatches at their
// original offsets. The headless simulator and the API's replay surface
// both drive playback by advancing a clock and calling RunDue.
package replay

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/timectrl"
)

// Scheduler runs callbacks at simulation times. Callers advance the
// underlying clock (or let it run on wall time) and call RunDue after
// each advance.
type Scheduler interface {
	// Schedule registers f to run at simulation time at and returns an
	// id usable with Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel drops a scheduled callback. Unknown or already-run ids are
	// ignored.
	Cancel(id string)

	// Now returns the current simulation time.
	Now() time.Time

	// RunDue executes every callback scheduled at or before Now, in
	// time order. Callbacks run outside the scheduler lock, so they may
	// schedule further events.
	RunDue()
}

type scheduledEvent struct {
	id        string
	when      time.Time
	fn        func()
	cancelled bool
}

type scheduler struct {
	clock timectrl.Clock

	mu     sync.Mutex
	nextID uint64
	queue  []*scheduledEvent // ordered by when, earliest first
	byID   map[string]*scheduledEvent
}

// NewScheduler returns a scheduler reading time from clock. Accelerated
// replays and tests pass a ManualClock; live use passes SystemClock.
func NewScheduler(clock timectrl.Clock) Scheduler {
	return &scheduler{
		clock: clock,
		byID:  make(map[string]*scheduledEvent),
	}
}

func (s *scheduler) Schedule(at time.Time, fn func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev := &scheduledEvent{
		id:   fmt.Sprintf("ev-%d", s.nextID),
		when: at,
		fn:   fn,
	}

	// Insert in time order so RunDue only ever inspects the head.
	i := sort.Search(len(s.queue), func(i int) bool {
		return !s.queue[i].when.Before(at)
	})
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = ev
	s.byID[ev.id] = ev
	return ev.id
}

func (s *scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.byID[id]; ok {
		// Queue removal is lazy; RunDue discards cancelled entries.
		ev.cancelled = true
		delete(s.byID, id)
	}
}

func (s *scheduler) Now() time.Time { return s.clock.Now() }

// popDueLocked removes and returns the earliest runnable event at or
// before now, discarding cancelled entries along the way.
func (s *scheduler) popDueLocked(now time.Time) *scheduledEvent {
	for len(s.queue) > 0 {
		ev := s.queue[0]
		if ev.cancelled {
			s.queue = s.queue[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		s.queue = s.queue[1:]
		delete(s.byID, ev.id)
		return ev
	}
	return nil
}

func (s *scheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.popDueLocked(s.clock.Now())
		s.mu.Unlock()
		if ev == nil {
			return
		}
		if ev.fn != nil {
			ev.fn()
		}
	}
}
