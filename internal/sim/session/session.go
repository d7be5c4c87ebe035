// internal/sim/session/session.go
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
	"github.com/polytopelabs/hyperpuzzle-simulator/timectrl"
)

var (
	// ErrNothingToUndo indicates the undo stack holds no undoable action.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo indicates the redo stack is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrNoPartialTwist indicates no drag twist is in progress.
	ErrNoPartialTwist = errors.New("no partial twist in progress")
)

// Twist outcome labels reported to the metrics recorder.
const (
	outcomeApplied = "applied"
	outcomeBlocked = "blocked"
)

// MetricsRecorder receives engine-level counters from the session. The
// observability package's EngineCollector satisfies it.
type MetricsRecorder interface {
	RecordTwist(puzzle, outcome string)
	RecordScramble()
	RecordSolve()
	ObserveGripDuration(d time.Duration)
}

// ScrambleRecord describes the scramble a session started from: the
// parameters that make it reproducible and the twists actually applied.
type ScrambleRecord struct {
	Params   core.ScrambleParams
	Twists   []model.LayeredTwist
	Notation string
}

// PartialTwist is an in-progress drag: a gripped set of pieces following
// the pointer before the move commits to a real twist or snaps back.
type PartialTwist struct {
	Axis      model.Axis
	Layers    model.LayerMask
	Grip      model.PieceMask
	Transform pga.Motor
}

// Session drives one live puzzle. It owns the latest immutable state and
// layers move execution, undo history, the replay log, scrambling, and
// animation on top of it. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	def   *model.PuzzleDefinition
	cache *core.TransformCache

	// state is the latest puzzle state, not including any animation in
	// flight or partial drag.
	state *core.PuzzleState

	// scramble is the scramble this session started from, nil before the
	// first ApplyScramble.
	scramble *ScrambleRecord

	undoStack []Action
	redoStack []Action
	replay    []ReplayEvent

	// Solve lifecycle. solvedHandled keeps the one-shot solved
	// notification from firing more than once per solve.
	started       bool
	solved        bool
	solvedHandled bool

	loadTime time.Time

	// lastFrame is the time of the previous animated frame; hasFrame is
	// false while the puzzle is at rest so the first moving frame uses
	// the assumed frame interval instead of the full idle gap.
	lastFrame time.Time
	hasFrame  bool

	twistAnim    twistAnimationState
	blockingAnim blockingAnimationState
	partial      *PartialTwist

	// frame holds the latest per-piece display transforms. It is
	// replaced, never mutated, so handing it out is safe.
	frame []pga.Motor

	cfg          Config
	clock        timectrl.Clock
	log          logging.Logger
	metrics      MetricsRecorder
	cacheMetrics core.CacheMetricsRecorder
}

// Option customises session construction.
type Option func(*Session)

// WithConfig overrides the animation settings. Zero durations fall back
// to their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg.withDefaults()
	}
}

// WithClock substitutes the time source used for frame deltas and replay
// timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a recorder for twist, scramble, and solve counts.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithCacheMetrics attaches a recorder to the session's transform cache.
func WithCacheMetrics(m core.CacheMetricsRecorder) Option {
	return func(s *Session) {
		s.cacheMetrics = m
	}
}

// New constructs a session on a fresh solved state of def. The transform
// cache is created here and shared by every state the session moves
// through.
func New(def *model.PuzzleDefinition, opts ...Option) *Session {
	s := &Session{
		def:   def,
		cfg:   DefaultConfig(),
		clock: timectrl.SystemClock{},
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	var cacheOpts []core.CacheOption
	if s.cacheMetrics != nil {
		cacheOpts = append(cacheOpts, core.WithCacheMetrics(s.cacheMetrics))
	}
	s.cache = core.NewTransformCache(def, cacheOpts...)
	s.state = core.NewSolvedState(def, s.cache, core.WithLogger(s.log))
	s.loadTime = s.clock.Now()
	s.frame = s.state.PieceTransforms()
	return s
}

// Definition returns the puzzle definition the session plays.
func (s *Session) Definition() *model.PuzzleDefinition { return s.def }

// Cache returns the session's transform cache.
func (s *Session) Cache() *core.TransformCache { return s.cache }

// State returns the latest puzzle state, not including animation.
func (s *Session) State() *core.PuzzleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ApplyTwist executes one twist: it is recorded in the history and the
// replay log and its animation is queued. A *core.BlockedTwistError
// reports the pieces that prevented the move; the blocked move still
// consumes a history slot so input streams stay aligned with the log.
func (s *Session) ApplyTwist(lt model.LayeredTwist) error {
	return s.ApplyTwists([]model.LayeredTwist{lt})
}

// ApplyTwists executes a twist sequence as a single undoable unit.
func (s *Session) ApplyTwists(lts []model.LayeredTwist) error {
	if len(lts) == 0 {
		return nil
	}
	twists := make([]model.LayeredTwist, len(lts))
	copy(twists, lts)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyEventLocked(ReplayEvent{Kind: EventTwists, Twists: twists})
}

// Undo takes back the most recent twist action. Solve markers above it
// are undone in passing; the scramble is a barrier undo never crosses.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyEventLocked(ReplayEvent{Kind: EventUndo})
}

// Redo reapplies the most recently undone action.
func (s *Session) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyEventLocked(ReplayEvent{Kind: EventRedo})
}

// HasUndo reports whether Undo would change the puzzle.
func (s *Session) HasUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUndoLocked()
}

// HasRedo reports whether Redo would change the puzzle.
func (s *Session) HasRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redoStack) > 0
}

// ApplyScramble resets the session and applies a scramble generated from
// params. The sequence actually applied, minus any twists skipped as
// blocked, becomes the session's scramble record.
func (s *Session) ApplyScramble(params core.ScrambleParams) ScrambleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	res := core.Scramble(s.def, s.cache, params, core.WithLogger(s.log))
	rec := &ScrambleRecord{
		Params:   res.Params,
		Twists:   res.Twists,
		Notation: model.FormatTwists(s.def, res.Twists),
	}
	s.scramble = rec
	s.undoStack = append(s.undoStack, Action{Kind: ActionScramble})
	s.replay = append(s.replay, ReplayEvent{Kind: EventScramble, Time: s.clock.Now()})
	s.state = res.State
	s.skipTwistAnimationsLocked()
	s.solvedHandled = false

	if s.metrics != nil {
		s.metrics.RecordScramble()
	}
	s.log.Info(context.Background(), "puzzle scrambled",
		logging.String("puzzle", s.def.Name),
		logging.String("scramble", params.Type.String()),
		logging.Int("twists", len(rec.Twists)))
	return *rec
}

// Scramble returns the scramble record of the current solve, if any.
func (s *Session) Scramble() (ScrambleRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scramble == nil {
		return ScrambleRecord{}, false
	}
	return *s.scramble, true
}

// Reset returns the session to a fresh solved state. History, the replay
// log, and the solve lifecycle are cleared; the transform cache is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.log.Info(context.Background(), "session reset", logging.String("puzzle", s.def.Name))
}

func (s *Session) resetLocked() {
	s.state = core.NewSolvedState(s.def, s.cache, core.WithLogger(s.log))
	s.scramble = nil
	s.undoStack = nil
	s.redoStack = nil
	s.replay = nil
	s.started = false
	s.solved = false
	s.solvedHandled = false
	s.loadTime = s.clock.Now()
	s.hasFrame = false
	s.twistAnim.reset()
	s.blockingAnim.clear()
	s.partial = nil
	s.frame = s.state.PieceTransforms()
}

// applyEventLocked records one replay event and plays it. The first
// twists event after a scramble is preceded by an automatic start-solve
// marker.
func (s *Session) applyEventLocked(ev ReplayEvent) error {
	if ev.Kind == EventTwists && s.scramble != nil && !s.started {
		if err := s.applyEventLocked(ReplayEvent{Kind: EventStartSolve}); err != nil {
			return err
		}
	}
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	s.replay = append(s.replay, ev)

	switch ev.Kind {
	case EventUndo:
		return s.undoLocked()
	case EventRedo:
		return s.redoLocked()
	case EventScramble:
		return s.doActionLocked(Action{Kind: ActionScramble})
	case EventTwists:
		return s.doActionLocked(Action{Kind: ActionTwists, Twists: ev.Twists})
	case EventStartSolve:
		return s.doActionLocked(Action{
			Kind:     ActionStartSolve,
			Time:     ev.Time,
			Duration: ev.Time.Sub(s.loadTime),
		})
	case EventEndSolve:
		return s.doActionLocked(Action{
			Kind:     ActionEndSolve,
			Time:     ev.Time,
			Duration: ev.Time.Sub(s.loadTime),
		})
	default:
		// Marker events like drag_twist carry no state change.
		return nil
	}
}

// doActionLocked performs an undoable action and pushes it onto the undo
// stack. Normal actions clear the redo stack; markers and barriers leave
// it intact.
func (s *Session) doActionLocked(a Action) error {
	if a.behavior() == undoStop {
		s.redoStack = s.redoStack[:0]
	}
	s.undoStack = append(s.undoStack, a)
	_, err := s.doActionInternalLocked(a)
	return err
}

// doActionInternalLocked applies an action to the puzzle and reports
// whether it had any effect, which decides whether history navigation
// keeps it.
func (s *Session) doActionInternalLocked(a Action) (bool, error) {
	switch a.Kind {
	case ActionScramble:
		if s.scramble == nil {
			return false, nil
		}
		for _, lt := range s.scramble.Twists {
			next, err := s.state.DoTwist(lt)
			if err != nil {
				s.log.Error(context.Background(), "twist blocked while replaying scramble",
					logging.String("twist", lt.Notation(s.def)),
					logging.Any("error", err))
				continue
			}
			s.state = next
		}
		s.skipTwistAnimationsLocked()
		return true, nil

	case ActionTwists:
		anyEffect := false
		var firstErr error
		for _, lt := range a.Twists {
			ok, err := s.doTwistLocked(lt)
			anyEffect = anyEffect || ok
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if anyEffect && !s.solved && s.scramble != nil && s.state.IsSolved() {
			s.log.Info(context.Background(), "puzzle solved",
				logging.String("puzzle", s.def.Name),
				logging.Duration("solve_time", s.clock.Now().Sub(s.loadTime)))
			if s.metrics != nil {
				s.metrics.RecordSolve()
			}
			if err := s.applyEventLocked(ReplayEvent{Kind: EventEndSolve}); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return anyEffect, firstErr

	case ActionStartSolve:
		s.started = true
		return true, nil

	case ActionEndSolve:
		s.solved = true
		return true, nil

	default:
		return false, nil
	}
}

// undoActionInternalLocked reverses an action and reports whether it had
// any effect. Twists are undone by applying each registered reverse in
// reverse order.
func (s *Session) undoActionInternalLocked(a Action) (bool, error) {
	switch a.Kind {
	case ActionTwists:
		reversed := make([]model.LayeredTwist, 0, len(a.Twists))
		for i := len(a.Twists) - 1; i >= 0; i-- {
			reversed = append(reversed, a.Twists[i].Reversed(s.def))
		}
		return s.doActionInternalLocked(Action{Kind: ActionTwists, Twists: reversed})
	case ActionEndSolve:
		s.solved = false
		return true, nil
	default:
		// The scramble is a barrier and never reaches here; a crossed
		// start-solve marker stays in effect.
		return false, nil
	}
}

func (s *Session) undoLocked() error {
	if !s.hasUndoLocked() {
		return ErrNothingToUndo
	}
	for len(s.undoStack) > 0 {
		a := s.undoStack[len(s.undoStack)-1]
		s.undoStack = s.undoStack[:len(s.undoStack)-1]
		switch a.behavior() {
		case undoStop:
			if ok, _ := s.undoActionInternalLocked(a); ok {
				s.redoStack = append(s.redoStack, a)
			}
			return nil
		case undoSkip:
			if ok, _ := s.undoActionInternalLocked(a); ok {
				s.redoStack = append(s.redoStack, a)
			}
		case undoBarrier:
			s.undoStack = append(s.undoStack, a)
			return nil
		}
	}
	return nil
}

func (s *Session) redoLocked() error {
	if len(s.redoStack) == 0 {
		return ErrNothingToRedo
	}
	for len(s.redoStack) > 0 {
		a := s.redoStack[len(s.redoStack)-1]
		s.redoStack = s.redoStack[:len(s.redoStack)-1]
		if ok, _ := s.doActionInternalLocked(a); ok {
			s.undoStack = append(s.undoStack, a)
			break
		}
	}
	return nil
}

func (s *Session) hasUndoLocked() bool {
	for i := len(s.undoStack) - 1; i >= 0; i-- {
		switch s.undoStack[i].behavior() {
		case undoStop:
			return true
		case undoSkip:
			continue
		case undoBarrier:
			return false
		}
	}
	return false
}

// doTwistLocked executes one twist against the latest state and queues
// its animation. An active partial drag on the same grip becomes the
// animation's starting transform; on a different grip it is snapped back
// first. Reports whether the state changed.
func (s *Session) doTwistLocked(lt model.LayeredTwist) (bool, error) {
	if lt.Twist < 0 || int(lt.Twist) >= len(s.def.Twists) {
		return false, core.ErrUnknownTwist
	}
	info := &s.def.Twists[lt.Twist]
	gripStart := time.Now()
	grip := s.state.GrippedPieces(info.Axis, lt.Layers)
	if s.metrics != nil {
		s.metrics.ObserveGripDuration(time.Since(gripStart))
	}

	initial := pga.Identity(s.def.Ndim)
	if p := s.partial; p != nil {
		s.partial = nil
		if p.Grip.Equal(grip) {
			initial = p.Transform
		} else {
			// Snapping the old drag back does not touch the state, so the
			// grip computed above stays valid.
			s.snapBackLocked(*p)
		}
	}

	next, err := s.state.DoTwist(lt)
	if err == nil {
		prev := s.state
		s.state = next
		s.twistAnim.push(twistAnimation{
			state:   prev,
			grip:    grip,
			initial: initial,
			final:   info.Transform,
		})
		s.blockingAnim.clear()
		if s.metrics != nil {
			s.metrics.RecordTwist(s.def.Name, outcomeApplied)
		}
		return true, nil
	}

	var blocked *core.BlockedTwistError
	if errors.As(err, &blocked) {
		if !initial.IsIdentity() {
			s.twistAnim.push(twistAnimation{
				state:   s.state,
				grip:    grip,
				initial: initial,
				final:   pga.Identity(s.def.Ndim),
			})
		}
		s.blockingAnim.set(blocked.Pieces)
		if s.metrics != nil {
			s.metrics.RecordTwist(s.def.Name, outcomeBlocked)
		}
		s.log.Debug(context.Background(), "twist blocked",
			logging.String("twist", lt.Notation(s.def)),
			logging.Int("blocking_pieces", len(blocked.Pieces)))
	}
	return false, err
}

// BeginPartialTwist grips the pieces selected by axis and layers and
// starts following a drag at the identity transform.
func (s *Session) BeginPartialTwist(axis model.Axis, layers model.LayerMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if axis < 0 || int(axis) >= len(s.def.Axes) {
		return core.ErrUnknownAxis
	}
	s.partial = &PartialTwist{
		Axis:      axis,
		Layers:    layers,
		Grip:      s.state.GrippedPieces(axis, layers),
		Transform: pga.Identity(s.def.Ndim),
	}
	s.updateFrameLocked()
	return nil
}

// UpdatePartialTwist moves the drag to a new transform.
func (s *Session) UpdatePartialTwist(m pga.Motor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial == nil {
		return ErrNoPartialTwist
	}
	s.partial.Transform = m
	s.updateFrameLocked()
	return nil
}

// CancelPartialTwist abandons the drag, animating the gripped pieces
// back to rest. Without an active drag it does nothing.
func (s *Session) CancelPartialTwist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPartialLocked()
}

func (s *Session) cancelPartialLocked() {
	if p := s.partial; p != nil {
		s.partial = nil
		s.snapBackLocked(*p)
	}
}

// snapBackLocked animates a popped drag's pieces from the drag transform
// back to the identity.
func (s *Session) snapBackLocked(p PartialTwist) {
	s.twistAnim.push(twistAnimation{
		state:   s.state,
		grip:    p.Grip,
		initial: p.Transform,
		final:   pga.Identity(s.def.Ndim),
	})
}

// ConfirmPartialTwist commits the drag to whichever twist on its axis is
// closest to the dragged transform, or snaps back if the identity is
// closer. Without an active drag it reports ErrNoPartialTwist.
func (s *Session) ConfirmPartialTwist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partial
	if p == nil {
		return ErrNoPartialTwist
	}

	best := model.Twist(-1)
	bestDot := math.Inf(-1)
	for i := range s.def.Twists {
		if s.def.Twists[i].Axis != p.Axis {
			continue
		}
		if d := math.Abs(pga.Dot(p.Transform, s.def.Twists[i].Transform)); d > bestDot {
			best, bestDot = model.Twist(i), d
		}
	}
	if best < 0 || bestDot <= math.Abs(p.Transform.ScalarPart()) {
		// The identity is at least as close as any twist.
		s.cancelPartialLocked()
		return nil
	}

	lt := model.LayeredTwist{Twist: best, Layers: p.Layers}
	if err := s.applyEventLocked(ReplayEvent{Kind: EventDragTwist}); err != nil {
		return err
	}
	return s.applyEventLocked(ReplayEvent{Kind: EventTwists, Twists: []model.LayeredTwist{lt}})
}

// PartialTwist returns the drag in progress, if any.
func (s *Session) PartialTwist() (PartialTwist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial == nil {
		return PartialTwist{}, false
	}
	return *s.partial, true
}

// Step advances animation to the current clock time and reports whether
// the view changed. Callers redraw (or push a frame) exactly when it
// returns true.
func (s *Session) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var delta time.Duration
	if s.hasFrame {
		delta = now.Sub(s.lastFrame)
	} else {
		fps := float64(assumedFPS)
		delta = time.Duration(float64(time.Second) / fps)
	}

	needsRedraw := false
	if s.twistAnim.proceed(delta, s.cfg) {
		s.updateFrameLocked()
		needsRedraw = true
	}
	if s.blockingAnim.proceed(delta, s.cfg) {
		needsRedraw = true
	}

	if needsRedraw {
		s.lastFrame = now
		s.hasFrame = true
	} else {
		s.hasFrame = false
	}
	return needsRedraw
}

// Frame returns the per-piece display transforms for the current frame:
// mid-animation attitudes while a twist or drag is in flight, the rest
// attitudes otherwise. Callers must treat the slice as read-only.
func (s *Session) Frame() []pga.Motor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// updateFrameLocked recomputes the display transforms: the animation in
// flight wins, then an active drag, then the state at rest.
func (s *Session) updateFrameLocked() {
	if anim, t, ok := s.twistAnim.current(); ok {
		m := pga.Slerp(anim.initial, anim.final, ease(t))
		s.frame = anim.state.PartialPieceTransforms(anim.grip, m)
		return
	}
	if s.partial != nil {
		s.frame = s.state.PartialPieceTransforms(s.partial.Grip, s.partial.Transform)
		return
	}
	s.frame = s.state.PieceTransforms()
}

// skipTwistAnimationsLocked drops queued animations and shows the latest
// state immediately.
func (s *Session) skipTwistAnimationsLocked() {
	s.twistAnim.reset()
	s.frame = s.state.PieceTransforms()
}

// AnimationPending reports whether a twist animation is queued or
// playing.
func (s *Session) AnimationPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, ok := s.twistAnim.current()
	return ok
}

// BlockingPieces returns the pieces highlighted from the most recent
// blocked twist and the current flash strength in [0,1]. Strength zero
// means no highlight is showing.
func (s *Session) BlockingPieces() ([]model.Piece, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pieces := make([]model.Piece, len(s.blockingAnim.pieces))
	copy(pieces, s.blockingAnim.pieces)
	return pieces, s.blockingAnim.strength
}

// Started reports whether the solve has started, i.e. a twist has been
// applied since the scramble.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Solved reports whether this session's solve has completed: the puzzle
// was scrambled and later returned to solved.
func (s *Session) Solved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solved
}

// HandleNewlySolved reports a completed solve exactly once, for one-shot
// effects like notifications. Further calls return false until the next
// solve.
func (s *Session) HandleNewlySolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.solved && !s.solvedHandled {
		s.solvedHandled = true
		return true
	}
	return false
}

// History returns a copy of the undo stack, oldest first. Twist slices
// are shared; callers must treat them as read-only.
func (s *Session) History() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.undoStack))
	copy(out, s.undoStack)
	return out
}

// ReplayLog returns a copy of the chronological event log.
func (s *Session) ReplayLog() []ReplayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReplayEvent, len(s.replay))
	copy(out, s.replay)
	return out
}

// TwistCount returns the number of twists in the current history,
// excluding the scramble.
func (s *Session) TwistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.undoStack {
		if a.Kind == ActionTwists {
			n += len(a.Twists)
		}
	}
	return n
}
