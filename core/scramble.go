package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// ScrambleType selects how many random twists a scramble applies.
type ScrambleType struct {
	// Full applies the definition's FullScrambleLength twists.
	Full bool
	// Count is the twist count for a partial scramble; ignored when
	// Full is set.
	Count int
}

// FullScramble scrambles with the definition's full scramble length.
func FullScramble() ScrambleType { return ScrambleType{Full: true} }

// PartialScramble scrambles with exactly n random twists.
func PartialScramble(n int) ScrambleType { return ScrambleType{Count: n} }

func (t ScrambleType) length(def *model.PuzzleDefinition) int {
	if t.Full {
		return def.FullScrambleLength
	}
	if t.Count < 0 {
		return 0
	}
	return t.Count
}

// String renders the scramble type for logs and replay records.
func (t ScrambleType) String() string {
	if t.Full {
		return "full"
	}
	return fmt.Sprintf("partial(%d)", t.Count)
}

// ScrambleParams deterministically identify a scramble: the same params
// on the same puzzle always generate the same twist sequence, which is
// what makes scrambles reproducible across sessions and replays.
type ScrambleParams struct {
	Type ScrambleType
	// Time is when the scramble was requested.
	Time time.Time
	// Seed is free-form entropy mixed into the RNG seed alongside Time.
	Seed string
}

// NewScrambleParams returns params for a scramble requested now, with a
// fresh random seed.
func NewScrambleParams(ty ScrambleType) ScrambleParams {
	now := time.Now().UTC()
	return ScrambleParams{
		Type: ty,
		Time: now,
		Seed: fmt.Sprintf("%s_%d", now.Format(time.RFC3339Nano), rand.Uint64()),
	}
}

// rngSeed derives the 32-byte RNG seed: a SHA-256 over the timestamp
// string, the seed length, and the seed bytes.
func (p ScrambleParams) rngSeed() [32]byte {
	h := sha256.New()
	h.Write([]byte(p.Time.UTC().Format(time.RFC3339Nano)))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p.Seed)))
	h.Write(lenBuf[:])
	h.Write([]byte(p.Seed))
	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed
}

// ScrambleResult is the outcome of scrambling: the twists that were
// actually applied and the state they produce.
type ScrambleResult struct {
	Params ScrambleParams
	Twists []model.LayeredTwist
	State  *PuzzleState
}

// Scramble generates and applies a random twist sequence to a fresh
// solved state of the puzzle. Twists are drawn uniformly from the
// scramble-eligible set, each with a uniform nonempty random layer mask
// on its axis. A generated twist that turns out to be blocked is skipped
// rather than redrawn, so the applied sequence may be shorter than the
// requested length.
func Scramble(def *model.PuzzleDefinition, cache *TransformCache, params ScrambleParams, opts ...StateOption) ScrambleResult {
	seed := params.rngSeed()
	rng := rand.New(rand.NewChaCha8(seed))

	var eligible []model.Twist
	for i := range def.Twists {
		if def.Twists[i].IncludeInScrambles {
			eligible = append(eligible, model.Twist(i))
		}
	}

	state := NewSolvedState(def, cache, opts...)
	result := ScrambleResult{Params: params}
	length := params.Type.length(def)
	if len(eligible) == 0 {
		result.State = state
		return result
	}

	for i := 0; i < length; i++ {
		twist := eligible[rng.IntN(len(eligible))]
		axis := def.Twists[twist].Axis
		layerCount := len(def.Axes[axis].Layers)
		if layerCount < 1 {
			layerCount = 1
		}
		mask := model.LayerMask(1 + rng.Uint64N((1<<uint(layerCount))-1))
		lt := model.LayeredTwist{Twist: twist, Layers: mask}

		next, err := state.DoTwist(lt)
		if err != nil {
			// Blocked twists happen on bandaged layer systems; the
			// scramble just moves on to the next draw.
			continue
		}
		state = next
		result.Twists = append(result.Twists, lt)
	}
	result.State = state
	return result
}
