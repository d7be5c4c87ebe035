// internal/api/types.go
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/core"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/replay"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

// PuzzleSummary describes one catalog entry.
type PuzzleSummary struct {
	Name   string `json:"name"`
	Ndim   int    `json:"ndim"`
	Axes   int    `json:"axes"`
	Twists int    `json:"twists"`
	Pieces int    `json:"pieces"`
	Colors int    `json:"colors"`
}

func puzzleSummary(def *model.PuzzleDefinition) PuzzleSummary {
	return PuzzleSummary{
		Name:   def.Name,
		Ndim:   def.Ndim,
		Axes:   len(def.Axes),
		Twists: len(def.Twists),
		Pieces: len(def.Pieces),
		Colors: len(def.Colors),
	}
}

type listPuzzlesResponse struct {
	Puzzles []PuzzleSummary `json:"puzzles"`
}

// SessionInfo is the wire form of a live session's lifecycle state.
type SessionInfo struct {
	ID         string    `json:"id"`
	Puzzle     string    `json:"puzzle"`
	CreatedAt  time.Time `json:"created_at"`
	TwistCount int       `json:"twist_count"`
	Started    bool      `json:"started"`
	Solved     bool      `json:"solved"`
	HasUndo    bool      `json:"has_undo"`
	HasRedo    bool      `json:"has_redo"`
	Scramble   string    `json:"scramble,omitempty"`
}

type listSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// CreateSessionRequest names the catalog puzzle to instantiate.
type CreateSessionRequest struct {
	Puzzle string `json:"puzzle"`
}

func (req CreateSessionRequest) Validate() error {
	if strings.TrimSpace(req.Puzzle) == "" {
		return fmt.Errorf("%w: puzzle is required", ErrInvalidRequest)
	}
	return nil
}

// TwistRequest carries one or more twists in notation form, for example
// "R U2 {1-2}F'".
type TwistRequest struct {
	Twists string `json:"twists"`
}

func (req TwistRequest) Validate() error {
	if strings.TrimSpace(req.Twists) == "" {
		return fmt.Errorf("%w: twists is required", ErrInvalidRequest)
	}
	return nil
}

// ScrambleRequest selects a scramble type. Type defaults to "full";
// "partial" requires a positive count. Time and seed may be pinned for
// reproducible scrambles; both default to values derived from the
// current time.
type ScrambleRequest struct {
	Type  string     `json:"type,omitempty"`
	Count int        `json:"count,omitempty"`
	Time  *time.Time `json:"time,omitempty"`
	Seed  string     `json:"seed,omitempty"`
}

func (req ScrambleRequest) Validate() error {
	switch strings.ToLower(req.Type) {
	case "", "full":
		return nil
	case "partial":
		if req.Count < 1 {
			return fmt.Errorf("%w: partial scramble needs count >= 1", ErrInvalidRequest)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scramble type %q", ErrInvalidRequest, req.Type)
	}
}

func scrambleParamsFromRequest(req ScrambleRequest) (core.ScrambleParams, error) {
	if err := req.Validate(); err != nil {
		return core.ScrambleParams{}, err
	}
	ty := core.FullScramble()
	if strings.EqualFold(req.Type, "partial") {
		ty = core.PartialScramble(req.Count)
	}
	params := core.NewScrambleParams(ty)
	if req.Time != nil && !req.Time.IsZero() {
		params.Time = req.Time.UTC()
	}
	if req.Seed != "" {
		params.Seed = req.Seed
	}
	return params, nil
}

// ScrambleParamsDTO is the wire form of core.ScrambleParams.
type ScrambleParamsDTO struct {
	Type  string    `json:"type"`
	Count int       `json:"count,omitempty"`
	Time  time.Time `json:"time"`
	Seed  string    `json:"seed"`
}

func scrambleParamsDTO(p core.ScrambleParams) ScrambleParamsDTO {
	dto := ScrambleParamsDTO{Time: p.Time, Seed: p.Seed}
	if p.Type.Full {
		dto.Type = "full"
	} else {
		dto.Type = "partial"
		dto.Count = p.Type.Count
	}
	return dto
}

func (dto ScrambleParamsDTO) toParams() (core.ScrambleParams, error) {
	var ty core.ScrambleType
	switch strings.ToLower(dto.Type) {
	case "", "full":
		ty = core.FullScramble()
	case "partial":
		if dto.Count < 0 {
			return core.ScrambleParams{}, fmt.Errorf("%w: negative scramble count", ErrInvalidRequest)
		}
		ty = core.PartialScramble(dto.Count)
	default:
		return core.ScrambleParams{}, fmt.Errorf("%w: unknown scramble type %q", ErrInvalidRequest, dto.Type)
	}
	return core.ScrambleParams{Type: ty, Time: dto.Time, Seed: dto.Seed}, nil
}

// ScrambleResponse reports the applied scramble alongside the resulting
// session state. Params carries everything needed to reproduce it.
type ScrambleResponse struct {
	Session  SessionInfo       `json:"session"`
	Params   ScrambleParamsDTO `json:"params"`
	Notation string            `json:"notation"`
	Twists   int               `json:"twists"`
}

// StateResponse is a full snapshot of piece placement. Handles index the
// session's transform cache; Transforms resolves each handle to a
// row-major (ndim+1)x(ndim+1) matrix.
type StateResponse struct {
	Puzzle     string        `json:"puzzle"`
	Handles    []int         `json:"handles"`
	Transforms [][][]float64 `json:"transforms"`
	Solved     bool          `json:"solved"`
}

// wireMatrix embeds a motor's linear action in a row-major homogeneous
// (ndim+1)x(ndim+1) matrix, the form rendering clients consume directly.
func wireMatrix(m pga.Motor) [][]float64 {
	cols := m.Matrix()
	n := len(cols)
	out := make([][]float64, n+1)
	for r := range out {
		out[r] = make([]float64, n+1)
	}
	for c, col := range cols {
		for r, v := range col {
			out[r][c] = v
		}
	}
	out[n][n] = 1
	return out
}

// GripResponse reports, for a candidate twist grip, which side of the
// layer cut every piece falls on. Gripped lists the pieces the twist
// would carry; Blocking lists split pieces that would veto it.
type GripResponse struct {
	Axis     string   `json:"axis"`
	Layers   uint32   `json:"layers"`
	Sides    []string `json:"sides"`
	Gripped  []int    `json:"gripped"`
	Blocking []int    `json:"blocking"`
}

// LayerMaskResponse answers a minimal-layer-mask query. OK is false when
// no mask moves the piece on that axis (a drag there would reorient the
// whole puzzle instead).
type LayerMaskResponse struct {
	OK       bool   `json:"ok"`
	Mask     uint32 `json:"mask,omitempty"`
	Notation string `json:"notation,omitempty"`
}

// RecordedEventDTO is the wire form of one replay-log entry. Twists is
// notation, empty for markers and undo/redo.
type RecordedEventDTO struct {
	Kind   string    `json:"kind"`
	Twists string    `json:"twists,omitempty"`
	Time   time.Time `json:"time"`
}

// RecordingDTO is the wire form of replay.Recording.
type RecordingDTO struct {
	Puzzle   string             `json:"puzzle"`
	Scramble *ScrambleParamsDTO `json:"scramble,omitempty"`
	Events   []RecordedEventDTO `json:"events"`
}

func recordingDTO(def *model.PuzzleDefinition, rec replay.Recording) RecordingDTO {
	dto := RecordingDTO{Puzzle: rec.Puzzle}
	if rec.Scramble != nil {
		params := scrambleParamsDTO(*rec.Scramble)
		dto.Scramble = &params
	}
	dto.Events = make([]RecordedEventDTO, 0, len(rec.Events))
	for _, ev := range rec.Events {
		dto.Events = append(dto.Events, RecordedEventDTO{
			Kind:   string(ev.Kind),
			Twists: model.FormatTwists(def, ev.Twists),
			Time:   ev.Time,
		})
	}
	return dto
}

func (dto RecordingDTO) toRecording(def *model.PuzzleDefinition) (replay.Recording, error) {
	rec := replay.Recording{Puzzle: dto.Puzzle}
	if dto.Scramble != nil {
		params, err := dto.Scramble.toParams()
		if err != nil {
			return replay.Recording{}, err
		}
		rec.Scramble = &params
	}
	rec.Events = make([]session.ReplayEvent, 0, len(dto.Events))
	for i, ev := range dto.Events {
		twists, err := model.ParseTwists(def, ev.Twists)
		if err != nil {
			return replay.Recording{}, fmt.Errorf("%w: event %d: %v", ErrInvalidRequest, i, err)
		}
		rec.Events = append(rec.Events, session.ReplayEvent{
			Kind:   session.EventKind(ev.Kind),
			Twists: twists,
			Time:   ev.Time,
		})
	}
	return rec, nil
}

// ReplayResponse reports a completed replay.
type ReplayResponse struct {
	Session SessionInfo `json:"session"`
	Events  int         `json:"events"`
}
