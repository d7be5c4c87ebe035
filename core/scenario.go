// core/scenario.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// Scenario is a headless simulation run loaded from JSON: which puzzle
// to build, an optional deterministic scramble, and a scripted twist
// sequence in twist notation. Twist names are resolved lazily so the
// scenario can be loaded before the puzzle definition is.
type Scenario struct {
	Puzzle   string
	Scramble *ScenarioScramble
	Twists   []string
}

// ScenarioScramble describes a scenario's scramble. A zero Time or
// empty Seed is filled with fresh entropy at run time; populating both
// makes the run reproducible.
type ScenarioScramble struct {
	Type ScrambleType
	Time time.Time
	Seed string
}

// internal JSON shapes; kept unexported so the file format can evolve.
type scenarioJSON struct {
	Puzzle   string              `json:"puzzle"`
	Scramble *scenarioScrambleJS `json:"scramble"`
	Twists   []string            `json:"twists"`
}

type scenarioScrambleJS struct {
	// Type is either the string "full" or a twist count.
	Type json.RawMessage `json:"type"`
	Time string          `json:"time"` // RFC 3339; optional
	Seed string          `json:"seed"` // optional
}

// LoadScenario reads a JSON scenario from r. Only structural problems
// fail here; twist names are validated against the puzzle definition by
// ResolveTwists.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	if payload.Puzzle == "" {
		return nil, fmt.Errorf("LoadScenario: missing puzzle name")
	}

	sc := &Scenario{
		Puzzle: payload.Puzzle,
		Twists: payload.Twists,
	}
	if payload.Scramble != nil {
		ty, err := parseScrambleType(payload.Scramble.Type)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		s := &ScenarioScramble{Type: ty, Seed: payload.Scramble.Seed}
		if payload.Scramble.Time != "" {
			ts, err := time.Parse(time.RFC3339, payload.Scramble.Time)
			if err != nil {
				return nil, fmt.Errorf("LoadScenario: scramble time: %w", err)
			}
			s.Time = ts
		}
		sc.Scramble = s
	}
	return sc, nil
}

func parseScrambleType(raw json.RawMessage) (ScrambleType, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return FullScramble(), nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == "full" || name == "" {
			return FullScramble(), nil
		}
		return ScrambleType{}, fmt.Errorf("unknown scramble type %q", name)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return ScrambleType{}, fmt.Errorf("negative scramble twist count %d", n)
		}
		return PartialScramble(n), nil
	}
	return ScrambleType{}, fmt.Errorf("scramble type must be \"full\" or a twist count, got %s", raw)
}

// ScrambleParams converts the scenario's scramble section into concrete
// params, generating time and seed entropy for any field left empty.
// It reports false when the scenario has no scramble at all.
func (sc *Scenario) ScrambleParams() (ScrambleParams, bool) {
	if sc.Scramble == nil {
		return ScrambleParams{}, false
	}
	params := NewScrambleParams(sc.Scramble.Type)
	if !sc.Scramble.Time.IsZero() {
		params.Time = sc.Scramble.Time
	}
	if sc.Scramble.Seed != "" {
		params.Seed = sc.Scramble.Seed
	}
	return params, true
}

// ResolveTwists parses the scenario's scripted twists against a puzzle
// definition.
func (sc *Scenario) ResolveTwists(def *model.PuzzleDefinition) ([]model.LayeredTwist, error) {
	out := make([]model.LayeredTwist, 0, len(sc.Twists))
	for i, notation := range sc.Twists {
		lt, err := model.ParseLayeredTwist(def, notation)
		if err != nil {
			return nil, fmt.Errorf("ResolveTwists: twist %d: %w", i, err)
		}
		out = append(out, lt)
	}
	return out, nil
}
