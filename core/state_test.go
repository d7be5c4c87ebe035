package core

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

// capturingLogger records error messages so tests can assert on the
// conservative fallback paths.
type capturingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *capturingLogger) Debug(context.Context, string, ...logging.Field) {}
func (l *capturingLogger) Info(context.Context, string, ...logging.Field)  {}
func (l *capturingLogger) Warn(context.Context, string, ...logging.Field)  {}

func (l *capturingLogger) Error(_ context.Context, msg string, _ ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *capturingLogger) With(...logging.Field) logging.Logger { return l }

func (l *capturingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// boxVertices returns the eight corners of an axis-aligned box spanning
// [xLo, xHi] along x and [-1, 1] along y and z.
func boxVertices(xLo, xHi float64) []pga.Vector {
	var out []pga.Vector
	for _, x := range []float64{xLo, xHi} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				out = append(out, pga.Vector{x, y, z})
			}
		}
	}
	return out
}

// bandagedBar is a two-piece fixture with a single two-layer axis where
// one piece permanently straddles the cut. Twisting a single layer is
// always blocked; twisting both layers at once works. Standard hypercubes
// never block, so blocked-twist behavior needs this shape.
func bandagedBar(t *testing.T) *model.PuzzleDefinition {
	t.Helper()
	cw, err := pga.RotationInPlane(pga.Unit(3, 1), pga.Unit(3, 2), math.Pi/2)
	if err != nil {
		t.Fatalf("RotationInPlane: %v", err)
	}
	ccw, err := pga.RotationInPlane(pga.Unit(3, 1), pga.Unit(3, 2), -math.Pi/2)
	if err != nil {
		t.Fatalf("RotationInPlane: %v", err)
	}
	def := &model.PuzzleDefinition{
		Name: "bandaged bar",
		Ndim: 3,
		Axes: []model.AxisInfo{{
			Name:   "X",
			Vector: pga.Unit(3, 0),
			Layers: []model.LayerInfo{
				{Top: math.Inf(1), Bottom: 0},
				{Top: 0, Bottom: math.Inf(-1)},
			},
			Opposite: model.NoAxis,
		}},
		Twists: []model.TwistInfo{
			{Name: "X", Axis: 0, Transform: cw, Reverse: 1, QTM: 1, IncludeInScrambles: true},
			{Name: "X'", Axis: 0, Transform: ccw, Reverse: 0, QTM: 1, IncludeInScrambles: true},
		},
		Pieces: []model.PieceInfo{
			{Vertices: boxVertices(0.25, 1), Type: "slab"},
			{Vertices: boxVertices(-0.5, 0.5), Type: "bar"},
		},
		FullScrambleLength: 10,
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("bandaged bar definition invalid: %v", err)
	}
	return def
}

// pieceWithExtent finds a piece whose solved-state extent along the axis
// is approximately [lo, hi].
func pieceWithExtent(t *testing.T, def *model.PuzzleDefinition, axis model.Axis, lo, hi float64) model.Piece {
	t.Helper()
	for i := range def.Pieces {
		bottom, top := math.Inf(1), math.Inf(-1)
		for _, v := range def.Pieces[i].Vertices {
			d := v.Dot(def.Axes[axis].Vector)
			bottom = math.Min(bottom, d)
			top = math.Max(top, d)
		}
		if pga.ApproxEq(bottom, lo) && pga.ApproxEq(top, hi) {
			return model.Piece(i)
		}
	}
	t.Fatalf("no piece with extent [%v, %v] on axis %d", lo, hi, axis)
	return 0
}

func mustTwist(t *testing.T, def *model.PuzzleDefinition, name string) model.Twist {
	t.Helper()
	tw, ok := def.TwistByName(name)
	if !ok {
		t.Fatalf("twist %q not found in %q", name, def.Name)
	}
	return tw
}

func mustAxis(t *testing.T, def *model.PuzzleDefinition, name string) model.Axis {
	t.Helper()
	ax, ok := def.AxisByName(name)
	if !ok {
		t.Fatalf("axis %q not found in %q", name, def.Name)
	}
	return ax
}

func TestSolvedState(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))

	for i, h := range state.TransformHandles() {
		if h != IdentityHandle {
			t.Fatalf("piece %d starts at handle %d, want identity", i, h)
		}
	}
	if !state.IsSolved() {
		t.Errorf("fresh state is not solved")
	}
	for i, m := range state.PieceTransforms() {
		if !m.IsIdentity() {
			t.Errorf("piece %d transform %v is not the identity", i, m)
		}
	}
}

func TestComputeGripOuterLayer(t *testing.T) {
	// Gripping {1}R on a 3x3x3 selects the 9 pieces of the R slab; the
	// other 17 stay put. Nothing straddles a cut on a standard cube.
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	grip := state.ComputeGrip(mustAxis(t, def, "R"), model.DefaultLayerMask)

	counts := map[WhichSide]int{}
	for _, side := range grip {
		counts[side]++
	}
	if counts[Inside] != 9 || counts[Outside] != 17 || counts[Split] != 0 || counts[Flush] != 0 {
		t.Errorf("grip counts = %v, want 9 inside, 17 outside", counts)
	}
	if got := state.GrippedPieces(mustAxis(t, def, "R"), model.DefaultLayerMask).Count(); got != 9 {
		t.Errorf("GrippedPieces count = %d, want 9", got)
	}
}

func TestComputeGripMergedLayers(t *testing.T) {
	// Selecting all three layers merges them into one segment covering
	// the whole cube, so every piece is inside.
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	grip := state.ComputeGrip(mustAxis(t, def, "R"), model.AllLayersMask(3))

	for i, side := range grip {
		if side != Inside {
			t.Fatalf("piece %d classified %v with all layers selected, want Inside", i, side)
		}
	}
}

func TestComputeGripUnknownAxisFailsClosed(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	log := &capturingLogger{}
	state := NewSolvedState(def, NewTransformCache(def), WithLogger(log))

	grip := state.ComputeGrip(model.Axis(99), model.DefaultLayerMask)
	for i, side := range grip {
		if side != Split {
			t.Fatalf("piece %d classified %v for an unknown axis, want Split", i, side)
		}
	}
	if log.errorCount() != 1 {
		t.Errorf("unknown axis logged %d errors, want 1", log.errorCount())
	}
}

func TestVertexlessPieceFailsClosed(t *testing.T) {
	// A piece with no vertices cannot be measured. It classifies as
	// Split, which blocks every twist that would have to decide about it.
	def := bandagedBar(t)
	def.Pieces = append(def.Pieces, model.PieceInfo{Type: "ghost"})
	log := &capturingLogger{}
	state := NewSolvedState(def, NewTransformCache(def), WithLogger(log))

	// Both layers selected: the real pieces are cleanly inside, only the
	// ghost blocks.
	_, err := state.DoTwist(model.LayeredTwist{
		Twist:  mustTwist(t, def, "X"),
		Layers: model.AllLayersMask(2),
	})
	var blocked *BlockedTwistError
	if !errors.As(err, &blocked) {
		t.Fatalf("DoTwist error = %v, want *BlockedTwistError", err)
	}
	if len(blocked.Pieces) != 1 || blocked.Pieces[0] != 2 {
		t.Errorf("blocking pieces = %v, want [2]", blocked.Pieces)
	}
	if log.errorCount() == 0 {
		t.Errorf("vertexless piece did not log")
	}
}

func TestDoTwistMovesOnlyGrippedPieces(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := model.LayeredTwist{Twist: mustTwist(t, def, "R"), Layers: model.DefaultLayerMask}

	next, err := state.DoTwist(r)
	if err != nil {
		t.Fatalf("DoTwist(R): %v", err)
	}

	grip := state.GrippedPieces(mustAxis(t, def, "R"), model.DefaultLayerMask)
	moved := 0
	var movedHandle TransformHandle
	for i, h := range next.TransformHandles() {
		if grip.Contains(model.Piece(i)) {
			if h == IdentityHandle {
				t.Errorf("gripped piece %d kept the identity handle", i)
			}
			moved++
			movedHandle = h
		} else if h != IdentityHandle {
			t.Errorf("ungripped piece %d moved to handle %d", i, h)
		}
	}
	if moved != 9 {
		t.Errorf("%d pieces moved, want 9", moved)
	}
	// All gripped pieces started solved and received the same twist, so
	// they share one interned handle.
	for i, h := range next.TransformHandles() {
		if grip.Contains(model.Piece(i)) && h != movedHandle {
			t.Errorf("piece %d has handle %d, others have %d", i, h, movedHandle)
		}
	}

	// The receiver state is untouched.
	for i, h := range state.TransformHandles() {
		if h != IdentityHandle {
			t.Fatalf("original state mutated: piece %d at handle %d", i, h)
		}
	}
}

func TestDoTwistReverseRestoresIdentity(t *testing.T) {
	// R then R' composes each moved piece's attitude back to the
	// identity, which re-interns to handle 0. Handle comparison is exact.
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := model.LayeredTwist{Twist: mustTwist(t, def, "R"), Layers: model.DefaultLayerMask}

	twisted, err := state.DoTwist(r)
	if err != nil {
		t.Fatalf("DoTwist(R): %v", err)
	}
	back, err := twisted.DoTwist(r.Reversed(def))
	if err != nil {
		t.Fatalf("DoTwist(R'): %v", err)
	}
	for i, h := range back.TransformHandles() {
		if h != IdentityHandle {
			t.Errorf("piece %d at handle %d after R R', want identity", i, h)
		}
	}
}

func TestDoTwistFourthPowerRestoresIdentity(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := model.LayeredTwist{Twist: mustTwist(t, def, "R"), Layers: model.DefaultLayerMask}

	s := state
	var err error
	for i := 0; i < 4; i++ {
		s, err = s.DoTwist(r)
		if err != nil {
			t.Fatalf("DoTwist(R) #%d: %v", i+1, err)
		}
	}
	for i, h := range s.TransformHandles() {
		if h != IdentityHandle {
			t.Errorf("piece %d at handle %d after R^4, want identity", i, h)
		}
	}
	if !s.IsSolved() {
		t.Errorf("state after R^4 is not solved")
	}
}

func TestDoTwistUnknownTwist(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))

	_, err := state.DoTwist(model.LayeredTwist{Twist: 99, Layers: model.DefaultLayerMask})
	if !errors.Is(err, ErrUnknownTwist) {
		t.Errorf("DoTwist(twist 99) error = %v, want ErrUnknownTwist", err)
	}
}

func TestDoTwistEmptyMaskIsNoop(t *testing.T) {
	// An empty layer mask selects no segments, so every piece is outside
	// the grip and the twist moves nothing.
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))

	next, err := state.DoTwist(model.LayeredTwist{Twist: mustTwist(t, def, "R"), Layers: 0})
	if err != nil {
		t.Fatalf("DoTwist with empty mask: %v", err)
	}
	for i, h := range next.TransformHandles() {
		if h != IdentityHandle {
			t.Errorf("piece %d moved under an empty mask (handle %d)", i, h)
		}
	}
}

func TestBlockedTwist(t *testing.T) {
	def := bandagedBar(t)
	state := NewSolvedState(def, NewTransformCache(def))
	x := model.LayeredTwist{Twist: mustTwist(t, def, "X"), Layers: model.DefaultLayerMask}

	next, err := state.DoTwist(x)
	if next != nil {
		t.Fatalf("blocked twist returned a state")
	}
	var blocked *BlockedTwistError
	if !errors.As(err, &blocked) {
		t.Fatalf("DoTwist error = %v, want *BlockedTwistError", err)
	}
	if len(blocked.Pieces) != 1 || blocked.Pieces[0] != 1 {
		t.Errorf("blocking pieces = %v, want [1]", blocked.Pieces)
	}
	if blocked.Move != x {
		t.Errorf("blocked move = %+v, want %+v", blocked.Move, x)
	}

	// Turning both layers together has nothing to slice through.
	whole := model.LayeredTwist{Twist: x.Twist, Layers: model.AllLayersMask(2)}
	next, err = state.DoTwist(whole)
	if err != nil {
		t.Fatalf("DoTwist with both layers: %v", err)
	}
	for i, h := range next.TransformHandles() {
		if h == IdentityHandle {
			t.Errorf("piece %d did not move under the whole-axis twist", i)
		}
	}
}

func TestWholePuzzleRotationStaysSolved(t *testing.T) {
	// Twisting every layer rotates the puzzle in place. Each color's
	// stickers still share a direction, so the state remains solved.
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))

	next, err := state.DoTwist(model.LayeredTwist{
		Twist:  mustTwist(t, def, "R"),
		Layers: model.AllLayersMask(3),
	})
	if err != nil {
		t.Fatalf("whole-puzzle twist: %v", err)
	}
	if !next.IsSolved() {
		t.Errorf("whole-puzzle rotation broke solved-state detection")
	}
}

func TestIsSolvedAfterTwist(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := model.LayeredTwist{Twist: mustTwist(t, def, "R"), Layers: model.DefaultLayerMask}

	twisted, err := state.DoTwist(r)
	if err != nil {
		t.Fatalf("DoTwist(R): %v", err)
	}
	if twisted.IsSolved() {
		t.Errorf("state after R reported solved")
	}
	back, err := twisted.DoTwist(r.Reversed(def))
	if err != nil {
		t.Fatalf("DoTwist(R'): %v", err)
	}
	if !back.IsSolved() {
		t.Errorf("state after R R' reported unsolved")
	}
}

func TestMinLayerMask(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := mustAxis(t, def, "R")

	outer := pieceWithExtent(t, def, r, 1.0/3.0, 1)
	if mask, ok := state.MinLayerMask(r, outer); !ok || mask != model.DefaultLayerMask {
		t.Errorf("outer piece MinLayerMask = %v, %v; want {1}, true", mask, ok)
	}
	middle := pieceWithExtent(t, def, r, -1.0/3.0, 1.0/3.0)
	if mask, ok := state.MinLayerMask(r, middle); !ok || mask != model.LayerMask(0b010) {
		t.Errorf("middle piece MinLayerMask = %v, %v; want {2}, true", mask, ok)
	}

	// The bandaged bar spans both layers of its axis.
	bdef := bandagedBar(t)
	bstate := NewSolvedState(bdef, NewTransformCache(bdef))
	if mask, ok := bstate.MinLayerMask(0, 1); !ok || mask != model.LayerMask(0b11) {
		t.Errorf("bar MinLayerMask = %v, %v; want {1-2}, true", mask, ok)
	}

	if _, ok := state.MinLayerMask(model.Axis(99), outer); ok {
		t.Errorf("MinLayerMask accepted an unknown axis")
	}
}

func TestMinDragLayerMask(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := mustAxis(t, def, "R")

	// Dragging an outer-slab piece turns its own layer.
	outer := pieceWithExtent(t, def, r, 1.0/3.0, 1)
	if mask, ok := state.MinDragLayerMask(r, outer); !ok || mask != model.DefaultLayerMask {
		t.Errorf("outer piece MinDragLayerMask = %v, %v; want {1}, true", mask, ok)
	}
	middle := pieceWithExtent(t, def, r, -1.0/3.0, 1.0/3.0)
	if mask, ok := state.MinDragLayerMask(r, middle); !ok || mask != model.LayerMask(0b010) {
		t.Errorf("middle piece MinDragLayerMask = %v, %v; want {2}, true", mask, ok)
	}
}

func TestMinDragLayerMaskWholePuzzle(t *testing.T) {
	// The bar straddles the only cut, so the cut is unusable for drags.
	// The tightest region around either piece swallows the whole puzzle,
	// which means: rotate, don't twist.
	def := bandagedBar(t)
	state := NewSolvedState(def, NewTransformCache(def))

	if mask, ok := state.MinDragLayerMask(0, 0); ok {
		t.Errorf("drag on the slab returned mask %v, want whole-puzzle rotation", mask)
	}
	if mask, ok := state.MinDragLayerMask(0, 1); ok {
		t.Errorf("drag on the bar returned mask %v, want whole-puzzle rotation", mask)
	}
}

func TestPartialPieceTransforms(t *testing.T) {
	def := mustHypercube(t, 3, 3)
	state := NewSolvedState(def, NewTransformCache(def))
	r := mustAxis(t, def, "R")
	grip := state.GrippedPieces(r, model.DefaultLayerMask)

	// Halfway through an R twist.
	half, err := pga.RotationInPlane(pga.Unit(3, 1), pga.Unit(3, 2), math.Pi/4)
	if err != nil {
		t.Fatalf("RotationInPlane: %v", err)
	}
	transforms := state.PartialPieceTransforms(grip, half)
	for i, m := range transforms {
		if grip.Contains(model.Piece(i)) {
			if !m.ApproxEq(half) {
				t.Errorf("gripped piece %d transform %v, want the partial motor", i, m)
			}
		} else if !m.IsIdentity() {
			t.Errorf("ungripped piece %d transform %v, want identity", i, m)
		}
	}
}
