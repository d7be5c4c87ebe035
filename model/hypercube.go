package model

import (
	"fmt"
	"math"

	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

// DefaultFullScrambleLength is the number of random twists a full
// scramble applies when the definition does not override it.
const DefaultFullScrambleLength = 1000

// Conventional names for the positive/negative facet pair of the first
// four dimensions. Higher dimensions fall back to generated names.
var facetNamePairs = [][2]string{
	{"R", "L"},
	{"U", "D"},
	{"F", "B"},
	{"O", "I"},
}

const dimLetters = "xyzwvut"

// NewHypercube builds the facet-turning hypercube puzzle with the given
// dimension and number of layers per axis: 3,3 is the classic Rubik's
// cube, 3,4 its four-dimensional analogue. The cube spans [-1, 1] along
// every coordinate and is cut into equal slabs.
//
// The factory exists to give the engine, tests and demo binaries
// something real to chew on; defining new puzzle families is out of
// scope here.
func NewHypercube(ndim, layers int) (*PuzzleDefinition, error) {
	if ndim < 2 || ndim > 6 {
		return nil, fmt.Errorf("%w: hypercube ndim %d out of range [2, 6]", ErrInvalidDefinition, ndim)
	}
	if layers < 1 || layers > MaxLayers {
		return nil, fmt.Errorf("%w: hypercube layer count %d out of range [1, %d]", ErrInvalidDefinition, layers, MaxLayers)
	}

	d := &PuzzleDefinition{
		Name:               fmt.Sprintf("%d^%d", layers, ndim),
		Ndim:               ndim,
		FullScrambleLength: DefaultFullScrambleLength,
	}

	// Cut depths along every axis, surface to surface. cut(0) = 1 is the
	// positive surface; the outermost and innermost layers extend to
	// infinity so protruding pieces still belong to a layer.
	cut := func(k int) float64 { return 1 - 2*float64(k)/float64(layers) }
	layerInfos := make([]LayerInfo, layers)
	for j := 0; j < layers; j++ {
		l := LayerInfo{Top: cut(j), Bottom: cut(j + 1)}
		if j == 0 {
			l.Top = math.Inf(1)
		}
		if j == layers-1 {
			l.Bottom = math.Inf(-1)
		}
		layerInfos[j] = l
	}

	// Axes and colors come in opposite pairs: axis 2i points along +e_i,
	// axis 2i+1 along -e_i. Both share the same layer bounds because the
	// bounds are symmetric about the origin.
	for i := 0; i < ndim; i++ {
		pos, neg := facetNames(i)
		d.Axes = append(d.Axes,
			AxisInfo{Name: pos, Vector: pga.Unit(ndim, i), Layers: layerInfos, Opposite: Axis(2*i + 1)},
			AxisInfo{Name: neg, Vector: pga.Unit(ndim, i).Neg(), Layers: layerInfos, Opposite: Axis(2 * i)},
		)
		d.Colors = append(d.Colors, ColorInfo{Name: pos}, ColorInfo{Name: neg})
	}

	if err := buildHypercubeTwists(d); err != nil {
		return nil, err
	}
	buildHypercubePieces(d, layers)

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func facetNames(dim int) (pos, neg string) {
	if dim < len(facetNamePairs) {
		return facetNamePairs[dim][0], facetNamePairs[dim][1]
	}
	return fmt.Sprintf("X%d+", dim+1), fmt.Sprintf("X%d-", dim+1)
}

// buildHypercubeTwists registers, for every axis, a quarter turn in each
// coordinate plane orthogonal to the axis, paired with its reverse. In
// three dimensions each axis has exactly one such plane and the twists
// get the classic names R and R'; in higher dimensions the rotation
// plane is part of the name, e.g. "R(yz)".
//
// Two dimensions have no plane avoiding the axis, so the square puzzle
// twists by flipping a slab instead: a self-inverse mirror through the
// axis line.
func buildHypercubeTwists(d *PuzzleDefinition) error {
	ndim := d.Ndim
	if ndim == 2 {
		for ax := range d.Axes {
			mirror, err := pga.Reflection(pga.Unit(2, 1-ax/2))
			if err != nil {
				return fmt.Errorf("%w: hypercube twist mirror: %v", ErrInvalidDefinition, err)
			}
			n := Twist(len(d.Twists))
			d.Twists = append(d.Twists, TwistInfo{
				Name:               d.Axes[ax].Name,
				Axis:               Axis(ax),
				Transform:          mirror,
				Reverse:            n,
				QTM:                1,
				IncludeInScrambles: true,
			})
		}
		return nil
	}
	for ax := range d.Axes {
		axisDim := ax / 2
		for j := 0; j < ndim; j++ {
			if j == axisDim {
				continue
			}
			for k := j + 1; k < ndim; k++ {
				if k == axisDim {
					continue
				}
				fwd, err := pga.RotationInPlane(pga.Unit(ndim, j), pga.Unit(ndim, k), math.Pi/2)
				if err != nil {
					return fmt.Errorf("%w: hypercube twist rotation: %v", ErrInvalidDefinition, err)
				}
				rev, err := pga.RotationInPlane(pga.Unit(ndim, j), pga.Unit(ndim, k), -math.Pi/2)
				if err != nil {
					return fmt.Errorf("%w: hypercube twist rotation: %v", ErrInvalidDefinition, err)
				}
				base := d.Axes[ax].Name
				if ndim > 3 {
					base = fmt.Sprintf("%s(%c%c)", base, dimLetters[j], dimLetters[k])
				}
				n := Twist(len(d.Twists))
				d.Twists = append(d.Twists,
					TwistInfo{
						Name:               base,
						Axis:               Axis(ax),
						Transform:          fwd,
						Reverse:            n + 1,
						QTM:                1,
						IncludeInScrambles: true,
					},
					TwistInfo{
						Name:               base + "'",
						Axis:               Axis(ax),
						Transform:          rev,
						Reverse:            n,
						QTM:                1,
						IncludeInScrambles: true,
					},
				)
			}
		}
	}
	return nil
}

// buildHypercubePieces enumerates the grid cells of the cut cube,
// skipping fully interior cells, and attaches a sticker for every facet
// a cell touches.
func buildHypercubePieces(d *PuzzleDefinition, layers int) {
	ndim := d.Ndim
	idx := make([]int, ndim)
	for {
		if cellHasStickers(idx, layers) {
			appendHypercubePiece(d, idx, layers)
		}
		// Advance the mixed-radix cell counter.
		i := 0
		for ; i < ndim; i++ {
			idx[i]++
			if idx[i] < layers {
				break
			}
			idx[i] = 0
		}
		if i == ndim {
			return
		}
	}
}

func cellHasStickers(idx []int, layers int) bool {
	for _, i := range idx {
		if i == 0 || i == layers-1 {
			return true
		}
	}
	return false
}

func appendHypercubePiece(d *PuzzleDefinition, idx []int, layers int) {
	ndim := d.Ndim
	piece := Piece(len(d.Pieces))
	info := PieceInfo{}

	// Corner vertices of the cell.
	width := 2 / float64(layers)
	for corner := 0; corner < 1<<ndim; corner++ {
		v := make(pga.Vector, ndim)
		for k := 0; k < ndim; k++ {
			v[k] = -1 + float64(idx[k])*width
			if corner&(1<<k) != 0 {
				v[k] += width
			}
		}
		info.Vertices = append(info.Vertices, v)
	}

	// One sticker per facet the cell touches. Facet 2k is +e_k, facet
	// 2k+1 is -e_k, matching the axis and color ordering.
	for k := 0; k < ndim; k++ {
		if idx[k] == layers-1 {
			info.Stickers = append(info.Stickers, Sticker(len(d.Stickers)))
			d.Stickers = append(d.Stickers, StickerInfo{Piece: piece, Color: Color(2 * k), Normal: pga.Unit(ndim, k)})
		}
		if idx[k] == 0 {
			info.Stickers = append(info.Stickers, Sticker(len(d.Stickers)))
			d.Stickers = append(d.Stickers, StickerInfo{Piece: piece, Color: Color(2*k + 1), Normal: pga.Unit(ndim, k).Neg()})
		}
	}

	info.Type = pieceTypeName(len(info.Stickers), ndim)
	d.Pieces = append(d.Pieces, info)
}

func pieceTypeName(stickers, ndim int) string {
	switch {
	case stickers == 0:
		return "core"
	case stickers == 1:
		return "center"
	case stickers == ndim:
		return "corner"
	case stickers == 2:
		return "edge"
	case stickers == 3:
		return "ridge"
	default:
		return fmt.Sprintf("%d-facet", stickers)
	}
}
