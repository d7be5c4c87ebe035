// Package model holds the immutable description of a twisty puzzle: its
// axes and layer systems, its twists, its pieces and stickers. Definitions
// are built once (by a factory or a loader), validated, and then shared
// read-only between every state and session that plays the puzzle.
package model

import (
	"errors"
	"fmt"

	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("model: invalid puzzle definition")

// LayerInfo is one layer of an axis: the slab of space between two cut
// depths along the axis vector. Bottom may be -Inf on the innermost layer
// and Top may be +Inf on the outermost, so pieces protruding past the
// puzzle surface still fall inside a layer.
type LayerInfo struct {
	Top    float64
	Bottom float64
}

// LayerSegment is a contiguous run of selected layers, produced by
// AxisInfo.SelectedSegments. Like LayerInfo it is a closed coordinate
// interval [Bottom, Top] along the axis vector.
type LayerSegment struct {
	Top    float64
	Bottom float64
}

// AxisInfo describes one twist axis: a unit vector and the layer system
// along it. Layers are ordered outermost first, with coordinates
// decreasing: layer i+1's Top never exceeds layer i's Bottom.
type AxisInfo struct {
	Name     string
	Vector   pga.Vector
	Layers   []LayerInfo
	Opposite Axis // NoAxis when the puzzle has no opposite axis
}

// LayerCount returns the number of layers along the axis.
func (a *AxisInfo) LayerCount() int { return len(a.Layers) }

// SelectedSegments collapses the layers selected by mask into maximal
// contiguous segments. Adjacent selected layers merge when the inner
// layer's top coincides with the running segment's bottom; a selected
// layer across a gap starts a new segment.
func (a *AxisInfo) SelectedSegments(mask LayerMask) []LayerSegment {
	var segs []LayerSegment
	for i, layer := range a.Layers {
		if !mask.Contains(i) {
			continue
		}
		if n := len(segs); n > 0 && pga.ApproxEq(layer.Top, segs[n-1].Bottom) {
			segs[n-1].Bottom = layer.Bottom
			continue
		}
		segs = append(segs, LayerSegment{Top: layer.Top, Bottom: layer.Bottom})
	}
	return segs
}

// ContiguousRange returns the smallest contiguous run of layers covering
// the coordinate interval [lo, hi] along the axis, as a mask. It reports
// false when no layer reaches lo or hi, or when the covering run crosses
// a gap in the layer system.
func (a *AxisInfo) ContiguousRange(lo, hi float64) (LayerMask, bool) {
	// The innermost layer whose top still covers hi, and the outermost
	// layer whose bottom still covers lo. Tops and bottoms both decrease
	// with the layer index, so these are a reverse and a forward scan.
	top := -1
	for i := len(a.Layers) - 1; i >= 0; i-- {
		if pga.ApproxGtEq(a.Layers[i].Top, hi) {
			top = i
			break
		}
	}
	bottom := -1
	for i, layer := range a.Layers {
		if pga.ApproxLtEq(layer.Bottom, lo) {
			bottom = i
			break
		}
	}
	if top < 0 || bottom < 0 || top > bottom {
		return 0, false
	}
	// Every consecutive pair in the run must share a cut; otherwise the
	// interval spans a gap and no contiguous mask covers it.
	for i := top; i < bottom; i++ {
		if !pga.ApproxEq(a.Layers[i].Bottom, a.Layers[i+1].Top) {
			return 0, false
		}
	}
	return LayerMaskFromRange(top, bottom), true
}

// TwistInfo describes one twist: a named rigid transform about an axis.
type TwistInfo struct {
	Name      string
	Axis      Axis
	Transform pga.Motor
	// Reverse is the twist undoing this one. Twists are always
	// registered in mutually-reverse pairs.
	Reverse Twist
	// QTM is the number of quarter-turn-metric moves this twist counts
	// for.
	QTM int
	// IncludeInScrambles marks twists eligible for random scrambles.
	IncludeInScrambles bool
}

// PieceInfo describes one piece. Vertices are the piece's corner points
// in the solved orientation; grip classification measures them against
// layer bounds. A piece with no vertices cannot be classified and is
// treated conservatively by the engine.
type PieceInfo struct {
	Vertices []pga.Vector
	Stickers []Sticker
	Type     string
}

// StickerInfo describes one sticker: a colored facet of a piece. Normal
// is the sticker plane's outward normal in the solved orientation.
type StickerInfo struct {
	Piece  Piece
	Color  Color
	Normal pga.Vector
}

// ColorInfo names a sticker color.
type ColorInfo struct {
	Name string
}

// PuzzleDefinition is the complete immutable description of a puzzle.
// All index-typed fields (Axis, Twist, Piece, Color, Sticker) refer into
// the slices of the same definition.
type PuzzleDefinition struct {
	Name   string
	Ndim   int
	Axes   []AxisInfo
	Twists []TwistInfo
	Pieces []PieceInfo

	// Stickers is the flat sticker list; PieceInfo.Stickers indexes
	// into it.
	Stickers []StickerInfo
	Colors   []ColorInfo

	// FullScrambleLength is the number of random twists a full scramble
	// applies.
	FullScrambleLength int
}

// AxisByName returns the axis with the given name.
func (d *PuzzleDefinition) AxisByName(name string) (Axis, bool) {
	for i := range d.Axes {
		if d.Axes[i].Name == name {
			return Axis(i), true
		}
	}
	return NoAxis, false
}

// TwistByName returns the twist with the given name.
func (d *PuzzleDefinition) TwistByName(name string) (Twist, bool) {
	for i := range d.Twists {
		if d.Twists[i].Name == name {
			return Twist(i), true
		}
	}
	return 0, false
}

// Validate checks the internal consistency of the definition: index
// cross-references, layer ordering, and reverse-twist pairing. A piece
// with no vertices is legal; the engine degrades conservatively for it.
func (d *PuzzleDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	}
	if d.Ndim < 2 || d.Ndim > 8 {
		return fmt.Errorf("%w: %q: ndim %d out of range [2, 8]", ErrInvalidDefinition, d.Name, d.Ndim)
	}
	if len(d.Axes) == 0 {
		return fmt.Errorf("%w: %q: no axes", ErrInvalidDefinition, d.Name)
	}
	for i := range d.Axes {
		if err := d.validateAxis(Axis(i)); err != nil {
			return err
		}
	}
	if len(d.Twists) == 0 {
		return fmt.Errorf("%w: %q: no twists", ErrInvalidDefinition, d.Name)
	}
	for i := range d.Twists {
		if err := d.validateTwist(Twist(i)); err != nil {
			return err
		}
	}
	for i, s := range d.Stickers {
		if s.Piece < 0 || int(s.Piece) >= len(d.Pieces) {
			return fmt.Errorf("%w: %q: sticker %d references piece %d of %d", ErrInvalidDefinition, d.Name, i, s.Piece, len(d.Pieces))
		}
		if s.Color < 0 || int(s.Color) >= len(d.Colors) {
			return fmt.Errorf("%w: %q: sticker %d references color %d of %d", ErrInvalidDefinition, d.Name, i, s.Color, len(d.Colors))
		}
		if s.Normal.IsZero() {
			return fmt.Errorf("%w: %q: sticker %d has a zero normal", ErrInvalidDefinition, d.Name, i)
		}
	}
	for i, p := range d.Pieces {
		for _, s := range p.Stickers {
			if s < 0 || int(s) >= len(d.Stickers) {
				return fmt.Errorf("%w: %q: piece %d references sticker %d of %d", ErrInvalidDefinition, d.Name, i, s, len(d.Stickers))
			}
			if d.Stickers[s].Piece != Piece(i) {
				return fmt.Errorf("%w: %q: sticker %d belongs to piece %d but is listed on piece %d", ErrInvalidDefinition, d.Name, s, d.Stickers[s].Piece, i)
			}
		}
	}
	if d.FullScrambleLength < 1 {
		return fmt.Errorf("%w: %q: full scramble length %d", ErrInvalidDefinition, d.Name, d.FullScrambleLength)
	}
	return nil
}

func (d *PuzzleDefinition) validateAxis(ax Axis) error {
	a := &d.Axes[ax]
	if a.Name == "" {
		return fmt.Errorf("%w: %q: axis %d has no name", ErrInvalidDefinition, d.Name, ax)
	}
	if a.Vector.IsZero() {
		return fmt.Errorf("%w: %q: axis %q has a zero vector", ErrInvalidDefinition, d.Name, a.Name)
	}
	if len(a.Layers) == 0 {
		return fmt.Errorf("%w: %q: axis %q has no layers", ErrInvalidDefinition, d.Name, a.Name)
	}
	if len(a.Layers) > MaxLayers {
		return fmt.Errorf("%w: %q: axis %q has %d layers, max %d", ErrInvalidDefinition, d.Name, a.Name, len(a.Layers), MaxLayers)
	}
	for i, l := range a.Layers {
		if pga.ApproxGt(l.Bottom, l.Top) {
			return fmt.Errorf("%w: %q: axis %q layer %d has bottom %v above top %v", ErrInvalidDefinition, d.Name, a.Name, i, l.Bottom, l.Top)
		}
		if i > 0 && pga.ApproxGt(l.Top, a.Layers[i-1].Bottom) {
			return fmt.Errorf("%w: %q: axis %q layers %d and %d overlap", ErrInvalidDefinition, d.Name, a.Name, i-1, i)
		}
	}
	if a.Opposite != NoAxis && (a.Opposite < 0 || int(a.Opposite) >= len(d.Axes) || a.Opposite == ax) {
		return fmt.Errorf("%w: %q: axis %q has invalid opposite %d", ErrInvalidDefinition, d.Name, a.Name, a.Opposite)
	}
	return nil
}

func (d *PuzzleDefinition) validateTwist(tw Twist) error {
	t := &d.Twists[tw]
	if t.Name == "" {
		return fmt.Errorf("%w: %q: twist %d has no name", ErrInvalidDefinition, d.Name, tw)
	}
	if t.Axis < 0 || int(t.Axis) >= len(d.Axes) {
		return fmt.Errorf("%w: %q: twist %q references axis %d of %d", ErrInvalidDefinition, d.Name, t.Name, t.Axis, len(d.Axes))
	}
	if t.Reverse < 0 || int(t.Reverse) >= len(d.Twists) {
		return fmt.Errorf("%w: %q: twist %q references reverse twist %d of %d", ErrInvalidDefinition, d.Name, t.Name, t.Reverse, len(d.Twists))
	}
	if d.Twists[t.Reverse].Reverse != tw {
		return fmt.Errorf("%w: %q: twist %q and its reverse %q are not mutual", ErrInvalidDefinition, d.Name, t.Name, d.Twists[t.Reverse].Name)
	}
	if t.QTM < 1 {
		return fmt.Errorf("%w: %q: twist %q has QTM %d", ErrInvalidDefinition, d.Name, t.Name, t.QTM)
	}
	return nil
}

// LayeredTwist is the unit of move execution: a twist together with the
// layer mask it acts on.
type LayeredTwist struct {
	Twist  Twist
	Layers LayerMask
}

// Reversed returns the move undoing this one: the registered reverse
// twist on the same layers.
func (lt LayeredTwist) Reversed(d *PuzzleDefinition) LayeredTwist {
	return LayeredTwist{Twist: d.Twists[lt.Twist].Reverse, Layers: lt.Layers}
}

// Notation renders the move in twist notation, e.g. "R" or "{1-2}R".
func (lt LayeredTwist) Notation(d *PuzzleDefinition) string {
	if lt.Twist < 0 || int(lt.Twist) >= len(d.Twists) {
		return fmt.Sprintf("%s<twist %d>", lt.Layers, lt.Twist)
	}
	return lt.Layers.String() + d.Twists[lt.Twist].Name
}
