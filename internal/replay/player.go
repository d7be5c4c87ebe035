// internal/replay/player.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

var (
	// ErrPuzzleMismatch indicates a recording targets a different puzzle
	// than the player's session.
	ErrPuzzleMismatch = errors.New("replay: recording is for a different puzzle")
	// ErrReplayActive indicates a load was attempted while a previous
	// replay still has events pending.
	ErrReplayActive = errors.New("replay: a replay is already in progress")
)

// Recording is a replayable capture of a session: the scramble params
// that set it up and the chronological event log. Marker events (drag,
// start-solve, end-solve) are carried for completeness but regenerate
// during playback rather than being dispatched.
type Recording struct {
	Puzzle   string
	Scramble *core.ScrambleParams
	Events   []session.ReplayEvent
}

// Record captures a live session's history as a recording that can be
// played into a fresh session of the same puzzle.
func Record(s *session.Session) Recording {
	rec := Recording{
		Puzzle: s.Definition().Name,
		Events: s.ReplayLog(),
	}
	if sc, ok := s.Scramble(); ok {
		params := sc.Params
		rec.Scramble = &params
	}
	return rec
}

// Script builds a synthetic recording that applies one twist per
// interval, after an optional scramble at offset zero. The headless
// simulator uses it to turn a scenario's twist list into a timed run.
func Script(puzzle string, scramble *core.ScrambleParams, twists []model.LayeredTwist, interval time.Duration) Recording {
	rec := Recording{Puzzle: puzzle, Scramble: scramble}
	var at time.Time
	if scramble != nil {
		rec.Events = append(rec.Events, session.ReplayEvent{Kind: session.EventScramble, Time: at})
		at = at.Add(interval)
	}
	for _, lt := range twists {
		rec.Events = append(rec.Events, session.ReplayEvent{
			Kind:   session.EventTwists,
			Twists: []model.LayeredTwist{lt},
			Time:   at,
		})
		at = at.Add(interval)
	}
	return rec
}

// Player dispatches a recording's events into a session at their
// recorded offsets via a Scheduler.
type Player struct {
	sess  *session.Session
	sched Scheduler
	log   logging.Logger

	mu        sync.Mutex
	ids       []string
	remaining int
	done      chan struct{}
}

// PlayerOption customises player construction.
type PlayerOption func(*Player)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) PlayerOption {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPlayer returns a player targeting sess. A fresh player reports
// Done immediately; Load arms it.
func NewPlayer(sess *session.Session, sched Scheduler, opts ...PlayerOption) *Player {
	p := &Player{
		sess:  sess,
		sched: sched,
		log:   logging.Noop(),
		done:  make(chan struct{}),
	}
	close(p.done)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Load schedules the recording's events relative to start and returns
// the offset of the last dispatch. Events replay in recorded order at
// their original spacing; a twist that blocked when recorded blocks
// again. Loading while a previous replay is unfinished fails with
// ErrReplayActive.
func (p *Player) Load(start time.Time, rec Recording) (time.Duration, error) {
	if rec.Puzzle != "" && rec.Puzzle != p.sess.Definition().Name {
		return 0, fmt.Errorf("%w: recording %q, session %q",
			ErrPuzzleMismatch, rec.Puzzle, p.sess.Definition().Name)
	}

	type dispatch struct {
		offset time.Duration
		ev     session.ReplayEvent
	}
	var dispatches []dispatch
	var base time.Time
	for i, ev := range rec.Events {
		if i == 0 {
			base = ev.Time
		}
		switch ev.Kind {
		case session.EventScramble:
			if rec.Scramble == nil {
				p.log.Warn(context.Background(), "recording has a scramble event but no scramble params",
					logging.String("puzzle", rec.Puzzle))
				continue
			}
		case session.EventTwists, session.EventUndo, session.EventRedo:
		default:
			// Markers regenerate during playback.
			continue
		}
		offset := ev.Time.Sub(base)
		if offset < 0 {
			offset = 0
		}
		dispatches = append(dispatches, dispatch{offset: offset, ev: ev})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining > 0 {
		return 0, ErrReplayActive
	}
	p.done = make(chan struct{})
	p.ids = p.ids[:0]
	p.remaining = len(dispatches)
	if p.remaining == 0 {
		close(p.done)
		return 0, nil
	}

	var last time.Duration
	for _, d := range dispatches {
		ev := d.ev
		p.ids = append(p.ids, p.sched.Schedule(start.Add(d.offset), func() {
			p.dispatch(ev, rec.Scramble)
		}))
		if d.offset > last {
			last = d.offset
		}
	}
	return last, nil
}

func (p *Player) dispatch(ev session.ReplayEvent, scramble *core.ScrambleParams) {
	var err error
	switch ev.Kind {
	case session.EventScramble:
		p.sess.ApplyScramble(*scramble)
	case session.EventTwists:
		err = p.sess.ApplyTwists(ev.Twists)
	case session.EventUndo:
		err = p.sess.Undo()
	case session.EventRedo:
		err = p.sess.Redo()
	}

	var blocked *core.BlockedTwistError
	switch {
	case err == nil:
	case errors.As(err, &blocked):
		// Faithful playback: the move blocked when recorded too.
		p.log.Debug(context.Background(), "replayed twist blocked",
			logging.Int("blocking_pieces", len(blocked.Pieces)))
	default:
		p.log.Warn(context.Background(), "replay event failed",
			logging.String("kind", string(ev.Kind)),
			logging.Any("error", err))
	}

	p.mu.Lock()
	p.remaining--
	if p.remaining == 0 {
		close(p.done)
	}
	p.mu.Unlock()
}

// Stop cancels outstanding dispatches. Events that already ran stay
// applied to the session.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.ids {
		p.sched.Cancel(id)
	}
	p.ids = p.ids[:0]
	if p.remaining > 0 {
		p.remaining = 0
		close(p.done)
	}
}

// Done returns a channel closed once every scheduled event has run or
// the player was stopped.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Pending returns the number of dispatches not yet run.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}
