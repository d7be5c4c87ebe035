// internal/sim/session/action.go
package session

import (
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// ActionKind discriminates entries in the undo history.
type ActionKind int

const (
	// ActionTwists is a batch of twists applied as one undoable unit.
	// Keyboard input produces single-twist batches; a confirmed drag may
	// produce several.
	ActionTwists ActionKind = iota
	// ActionScramble marks the scramble applied at the start of a solve.
	ActionScramble
	// ActionStartSolve marks the first twist after a scramble.
	ActionStartSolve
	// ActionEndSolve marks the twist that returned the puzzle to solved.
	ActionEndSolve
)

// String renders the kind for logs and serialized histories.
func (k ActionKind) String() string {
	switch k {
	case ActionTwists:
		return "twists"
	case ActionScramble:
		return "scramble"
	case ActionStartSolve:
		return "start_solve"
	case ActionEndSolve:
		return "end_solve"
	default:
		return "unknown"
	}
}

// Action is one entry in the undo history.
type Action struct {
	Kind   ActionKind
	Twists []model.LayeredTwist // ActionTwists only

	// Time and Duration annotate the solve markers: when the marker was
	// recorded and how much session time had elapsed by then.
	Time     time.Time
	Duration time.Duration
}

// undoBehavior classifies how the undo loop treats an action.
type undoBehavior int

const (
	// undoStop is a normal entry: the undo loop undoes it and stops.
	undoStop undoBehavior = iota
	// undoSkip is undone in passing; the loop continues to the next entry.
	undoSkip
	// undoBarrier cannot be crossed; undo ends without consuming it.
	undoBarrier
)

func (a Action) behavior() undoBehavior {
	switch a.Kind {
	case ActionScramble:
		return undoBarrier
	case ActionStartSolve, ActionEndSolve:
		return undoSkip
	default:
		return undoStop
	}
}

// EventKind discriminates entries in the replay log.
type EventKind string

const (
	// EventTwists records twists applied by the player.
	EventTwists EventKind = "twists"
	// EventDragTwist marks that the following twists event came from a
	// confirmed pointer drag rather than discrete input.
	EventDragTwist EventKind = "drag_twist"
	// EventScramble records the initial scramble.
	EventScramble EventKind = "scramble"
	// EventStartSolve records the start of timed solving.
	EventStartSolve EventKind = "start_solve"
	// EventEndSolve records the moment the puzzle was solved.
	EventEndSolve EventKind = "end_solve"
	// EventUndo and EventRedo record history navigation, so replaying the
	// log reproduces the exact final state even when moves were taken
	// back.
	EventUndo EventKind = "undo"
	EventRedo EventKind = "redo"
)

// ReplayEvent is one entry in the session's chronological event log.
type ReplayEvent struct {
	Kind   EventKind
	Twists []model.LayeredTwist // EventTwists only
	Time   time.Time            // session clock time when the event was recorded
}
