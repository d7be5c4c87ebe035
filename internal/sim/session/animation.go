// internal/sim/session/animation.go
package session

import (
	"math"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

const (
	// assumedFPS sizes the frame delta used when no previous frame time is
	// known, i.e. the first frame after the puzzle comes to rest.
	assumedFPS = 120.0

	// instantTwistThreshold is the per-frame progress above which a twist
	// stops animating and completes instantly. Below it a twist always
	// gets at least a few frames on screen.
	instantTwistThreshold = 1.0 / 3.0

	// dynamicSpeedFactor is the exponent applied per queued twist beyond
	// the first when dynamic speed is on. Bigger means the animation
	// catches up with input bursts more aggressively.
	dynamicSpeedFactor = 0.5

	// blockingFlashFloor is the flash strength below which the blocked
	// highlight is treated as fully faded.
	blockingFlashFloor = 0.001
)

// Config holds the animation tunables of a session.
type Config struct {
	// TwistDuration is the nominal screen time of a single twist.
	TwistDuration time.Duration
	// DynamicTwistSpeed speeds twists up exponentially while the queue is
	// backed up, so burst input never leaves the view lagging the state.
	DynamicTwistSpeed bool
	// BlockingFlashDuration is roughly how long the blocked-pieces
	// highlight takes to fade out.
	BlockingFlashDuration time.Duration
}

// DefaultConfig returns the stock animation settings.
func DefaultConfig() Config {
	return Config{
		TwistDuration:         200 * time.Millisecond,
		DynamicTwistSpeed:     true,
		BlockingFlashDuration: 500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TwistDuration <= 0 {
		c.TwistDuration = def.TwistDuration
	}
	if c.BlockingFlashDuration <= 0 {
		c.BlockingFlashDuration = def.BlockingFlashDuration
	}
	return c
}

// ease is the cosine ease-in-out curve applied to twist progress before
// interpolating transforms.
func ease(t float64) float64 {
	return (1 - math.Cos(t*math.Pi)) / 2
}

// twistAnimation is one queued twist: the state before the twist, the
// pieces that move, and the transform endpoints to interpolate between.
// The initial transform is the identity except when the twist grew out of
// a partial drag already in progress.
type twistAnimation struct {
	state   *core.PuzzleState
	grip    model.PieceMask
	initial pga.Motor
	final   pga.Motor
}

// twistAnimationState is the FIFO of twists still being displayed.
// progress runs through [0,1) within the head animation.
type twistAnimationState struct {
	queue    []twistAnimation
	progress float64
}

func (a *twistAnimationState) push(anim twistAnimation) {
	a.queue = append(a.queue, anim)
}

func (a *twistAnimationState) reset() {
	a.queue = nil
	a.progress = 0
}

// current returns the animation to draw this frame and the raw progress
// through it.
func (a *twistAnimationState) current() (twistAnimation, float64, bool) {
	if len(a.queue) == 0 {
		return twistAnimation{}, 0, false
	}
	return a.queue[0], a.progress, true
}

// proceed advances the head animation by the frame delta and reports
// whether the frame changed, including the frame that retires the last
// queued twist. The queue length feeds the dynamic speedup so a backlog
// drains faster than it was produced.
func (a *twistAnimationState) proceed(delta time.Duration, cfg Config) bool {
	if len(a.queue) == 0 {
		return false
	}
	step := float64(delta) / float64(cfg.TwistDuration)
	if cfg.DynamicTwistSpeed {
		step *= math.Exp(float64(len(a.queue)-1) * dynamicSpeedFactor)
	}
	// Guard against zero durations and degenerate deltas as well as
	// steps too large to be worth animating.
	if !(step > 0 && step < instantTwistThreshold) {
		step = 1
	}
	a.progress += step
	if a.progress >= 1 {
		a.progress = 0
		a.queue = a.queue[1:]
	}
	return true
}

// blockingAnimationState tracks the highlight flashed on the pieces that
// blocked the most recent twist. The flash starts at full strength and
// decays exponentially.
type blockingAnimationState struct {
	pieces   []model.Piece
	strength float64
}

func (b *blockingAnimationState) set(pieces []model.Piece) {
	b.pieces = pieces
	b.strength = 1
}

func (b *blockingAnimationState) clear() {
	b.pieces = nil
	b.strength = 0
}

// proceed decays the flash and reports whether the view changed. The
// frame on which the flash bottoms out still reports a change so the
// highlight gets cleared from screen.
func (b *blockingAnimationState) proceed(delta time.Duration, cfg Config) bool {
	if b.strength <= 0 {
		return false
	}
	b.strength *= math.Pow(blockingFlashFloor, float64(delta)/float64(cfg.BlockingFlashDuration))
	if b.strength < blockingFlashFloor {
		b.strength = 0
	}
	return true
}
