package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

var (
	ErrUnknownTwist = errors.New("unknown twist")
	ErrUnknownAxis  = errors.New("unknown axis")
	ErrUnknownPiece = errors.New("unknown piece")
)

// BlockedTwistError reports a twist that could not be applied because
// pieces straddle the grip boundary. A blocked twist is an expected
// outcome of play on bandaged or shape-shifted puzzles, not an engine
// failure; callers surface the blocking pieces to the user.
type BlockedTwistError struct {
	Move   model.LayeredTwist
	Pieces []model.Piece
}

func (e *BlockedTwistError) Error() string {
	return fmt.Sprintf("twist blocked by %d piece(s): %s", len(e.Pieces), piecesPreview(e.Pieces))
}

func piecesPreview(pieces []model.Piece) string {
	const max = 8
	var sb strings.Builder
	for i, p := range pieces {
		if i == max {
			fmt.Fprintf(&sb, ", …")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", p)
	}
	return sb.String()
}

// PuzzleState is an immutable snapshot of a puzzle: one transform handle
// per piece, resolved against a shared TransformCache. Twisting returns
// a new state; the definition and cache are shared by every state of the
// same puzzle instance, so states are cheap to copy and keep.
type PuzzleState struct {
	def     *model.PuzzleDefinition
	cache   *TransformCache
	handles []TransformHandle
	log     logging.Logger
}

// StateOption customises state construction.
type StateOption func(*PuzzleState)

// WithLogger attaches a structured logger used by the conservative
// fallback paths of grip classification. The default drops all logs.
func WithLogger(l logging.Logger) StateOption {
	return func(s *PuzzleState) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSolvedState returns the solved state of a puzzle: every piece at
// the identity attitude. The cache must have been built for the same
// definition.
func NewSolvedState(def *model.PuzzleDefinition, cache *TransformCache, opts ...StateOption) *PuzzleState {
	if cache.def != def {
		panic("core: transform cache belongs to a different puzzle definition")
	}
	s := &PuzzleState{
		def:     def,
		cache:   cache,
		handles: make([]TransformHandle, len(def.Pieces)),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition returns the puzzle definition this state belongs to.
func (s *PuzzleState) Definition() *model.PuzzleDefinition { return s.def }

// Cache returns the transform cache shared by all states of this puzzle
// instance.
func (s *PuzzleState) Cache() *TransformCache { return s.cache }

// TransformHandles returns a copy of the per-piece transform handles.
func (s *PuzzleState) TransformHandles() []TransformHandle {
	out := make([]TransformHandle, len(s.handles))
	copy(out, s.handles)
	return out
}

// PieceTransforms resolves every piece's attitude to a motor.
func (s *PuzzleState) PieceTransforms() []pga.Motor {
	out := make([]pga.Motor, len(s.handles))
	for i, h := range s.handles {
		out[i] = s.cache.Motor(h)
	}
	return out
}

// PartialPieceTransforms resolves piece attitudes with an extra motor
// applied on top for the gripped pieces. This is the mid-animation view
// of a twist in progress.
func (s *PuzzleState) PartialPieceTransforms(grip model.PieceMask, m pga.Motor) []pga.Motor {
	out := s.PieceTransforms()
	for i := range out {
		if grip.Contains(model.Piece(i)) {
			out[i] = m.Compose(out[i])
		}
	}
	return out
}

// ComputeGrip classifies every piece against the layers selected on an
// axis. The result always has one entry per piece. Errors degrade
// conservatively: an unknown axis marks every piece Split, and a piece
// that cannot be measured (no vertices) is marked Split, so no twist can
// act on questionable data. Both paths log.
func (s *PuzzleState) ComputeGrip(axis model.Axis, layers model.LayerMask) []WhichSide {
	grip := make([]WhichSide, len(s.def.Pieces))
	if axis < 0 || int(axis) >= len(s.def.Axes) {
		s.log.Error(context.Background(), "grip requested for unknown axis",
			logging.String("puzzle", s.def.Name),
			logging.Int("axis", int(axis)))
		for i := range grip {
			grip[i] = Split
		}
		return grip
	}
	segments := s.def.Axes[axis].SelectedSegments(layers)
	for i := range grip {
		grip[i] = s.classifyPiece(model.Piece(i), axis, segments)
	}
	return grip
}

func (s *PuzzleState) classifyPiece(piece model.Piece, axis model.Axis, segments []model.LayerSegment) WhichSide {
	bottom, top, err := s.pieceMinMaxOnAxis(piece, axis)
	if err != nil {
		s.log.Error(context.Background(), "piece cannot be classified, treating as split",
			logging.String("puzzle", s.def.Name),
			logging.Int("piece", int(piece)),
			logging.String("error", err.Error()))
		return Split
	}
	for _, seg := range segments {
		switch {
		case pga.ApproxLtEq(seg.Bottom, bottom) && pga.ApproxLtEq(top, seg.Top):
			// Entirely within this segment.
			return Inside
		case pga.ApproxLtEq(seg.Top, bottom) || pga.ApproxLtEq(top, seg.Bottom):
			// Entirely past one end of this segment; try the next.
			continue
		default:
			return Split
		}
	}
	return Outside
}

// GrippedPieces returns the pieces a twist on the given axis and layers
// would move: exactly those classified Inside.
func (s *PuzzleState) GrippedPieces(axis model.Axis, layers model.LayerMask) model.PieceMask {
	mask := model.NewPieceMask(len(s.def.Pieces))
	for i, side := range s.ComputeGrip(axis, layers) {
		if side == Inside {
			mask.Add(model.Piece(i))
		}
	}
	return mask
}

// DoTwist applies a layered twist and returns the resulting state. The
// receiver is never modified. A *BlockedTwistError carries the pieces
// straddling the grip boundary when the twist cannot be applied.
func (s *PuzzleState) DoTwist(lt model.LayeredTwist) (*PuzzleState, error) {
	if lt.Twist < 0 || int(lt.Twist) >= len(s.def.Twists) {
		return nil, fmt.Errorf("%w: twist %d of %q", ErrUnknownTwist, lt.Twist, s.def.Name)
	}
	info := &s.def.Twists[lt.Twist]
	grip := s.ComputeGrip(info.Axis, lt.Layers)

	var blocking []model.Piece
	for i, side := range grip {
		if side == Split {
			blocking = append(blocking, model.Piece(i))
		}
	}
	if len(blocking) > 0 {
		return nil, &BlockedTwistError{Move: lt, Pieces: blocking}
	}

	handles := make([]TransformHandle, len(s.handles))
	copy(handles, s.handles)
	for i, side := range grip {
		if side != Inside {
			continue
		}
		current := s.cache.Motor(s.handles[i])
		handles[i] = s.cache.Intern(info.Transform.Compose(current))
	}
	return &PuzzleState{def: s.def, cache: s.cache, handles: handles, log: s.log}, nil
}

// MinLayerMask returns the smallest contiguous layer mask on the axis
// that fully contains the piece in its current attitude. It reports
// false when no contiguous run of layers covers the piece.
func (s *PuzzleState) MinLayerMask(axis model.Axis, piece model.Piece) (model.LayerMask, bool) {
	if axis < 0 || int(axis) >= len(s.def.Axes) || piece < 0 || int(piece) >= len(s.def.Pieces) {
		return 0, false
	}
	bottom, top, err := s.pieceMinMaxOnAxis(piece, axis)
	if err != nil {
		return 0, false
	}
	return s.def.Axes[axis].ContiguousRange(bottom, top)
}

// MinDragLayerMask returns the smallest layer mask a drag on the given
// piece should turn: the tightest pair of cut depths that contains the
// piece without slicing through any other piece. It reports false when
// the only such region is the whole puzzle, in which case the drag
// should rotate everything instead of twisting.
func (s *PuzzleState) MinDragLayerMask(axis model.Axis, piece model.Piece) (model.LayerMask, bool) {
	if axis < 0 || int(axis) >= len(s.def.Axes) || piece < 0 || int(piece) >= len(s.def.Pieces) {
		return 0, false
	}
	ax := &s.def.Axes[axis]

	// Candidate cut depths, descending, bracketed by infinities so a
	// bound always exists.
	floats := make([]float64, 0, 2*len(ax.Layers)+2)
	floats = append(floats, math.Inf(1))
	for _, l := range ax.Layers {
		floats = append(floats, l.Top, l.Bottom)
	}
	floats = append(floats, math.Inf(-1))
	for i := 0; i < len(floats)-1; i++ {
		if pga.ApproxEq(floats[i], floats[i+1]) {
			floats = append(floats[:i], floats[i+1:]...)
		}
	}

	// A cut strictly inside any piece's extent would slice that piece,
	// so discard it. Track the overall puzzle extent as we go.
	minAll, maxAll := math.Inf(1), math.Inf(-1)
	for p := range s.def.Pieces {
		bottom, top, err := s.pieceMinMaxOnAxis(model.Piece(p), axis)
		if err != nil {
			return 0, false
		}
		minAll = math.Min(minAll, bottom)
		maxAll = math.Max(maxAll, top)
		n := 0
		for _, f := range floats {
			if pga.ApproxLtEq(f, bottom) || pga.ApproxLtEq(top, f) {
				floats[n] = f
				n++
			}
		}
		floats = floats[:n]
	}

	bottom, top, err := s.pieceMinMaxOnAxis(piece, axis)
	if err != nil {
		return 0, false
	}
	lo, ok := firstLtEq(floats, bottom)
	if !ok {
		return 0, false
	}
	hi, ok := lastGtEq(floats, top)
	if !ok {
		return 0, false
	}

	// The region between the chosen cuts swallows the whole puzzle:
	// that is a reorientation, not a twist.
	if pga.ApproxLtEq(lo, minAll) && pga.ApproxLtEq(maxAll, hi) {
		return 0, false
	}
	return ax.ContiguousRange(lo, hi)
}

// firstLtEq returns the first value in the descending list that is
// approximately at or below limit.
func firstLtEq(floats []float64, limit float64) (float64, bool) {
	for _, f := range floats {
		if pga.ApproxLtEq(f, limit) {
			return f, true
		}
	}
	return 0, false
}

// lastGtEq returns the last value in the descending list that is
// approximately at or above limit.
func lastGtEq(floats []float64, limit float64) (float64, bool) {
	for i := len(floats) - 1; i >= 0; i-- {
		if pga.ApproxLtEq(limit, floats[i]) {
			return floats[i], true
		}
	}
	return 0, false
}

// IsSolved reports whether the puzzle is solved: every sticker of each
// color faces the same direction.
func (s *PuzzleState) IsSolved() bool {
	normals := make([]pga.Vector, len(s.def.Colors))
	for i := range s.def.Stickers {
		st := &s.def.Stickers[i]
		if st.Color < 0 || int(st.Color) >= len(normals) {
			s.log.Error(context.Background(), "unknown color during solved-state detection",
				logging.String("puzzle", s.def.Name),
				logging.Int("sticker", i))
			return false
		}
		n := s.cache.Motor(s.handles[st.Piece]).TransformVector(st.Normal)
		if normals[st.Color] == nil {
			normals[st.Color] = n
			continue
		}
		if !normals[st.Color].ApproxEq(n) {
			return false
		}
	}
	return true
}

// pieceMinMaxOnAxis measures the extent of a piece along an axis in the
// piece's current attitude. Rather than transforming every vertex, the
// axis vector is pulled back through the piece's reverse motor once and
// dotted with the solved-state vertices.
func (s *PuzzleState) pieceMinMaxOnAxis(piece model.Piece, axis model.Axis) (bottom, top float64, err error) {
	verts := s.def.Pieces[piece].Vertices
	if len(verts) == 0 {
		return 0, 0, fmt.Errorf("piece %d has no vertices", piece)
	}
	av := s.cache.ReverseTransformedAxisVector(s.handles[piece], axis)
	bottom, top = math.Inf(1), math.Inf(-1)
	for _, v := range verts {
		d := v.Dot(av)
		bottom = math.Min(bottom, d)
		top = math.Max(top, d)
	}
	return bottom, top, nil
}
