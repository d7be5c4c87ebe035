package model

import "math/bits"

// Axis identifies a twist axis within a puzzle definition.
type Axis int

// Twist identifies a twist within a puzzle definition.
type Twist int

// Piece identifies a piece within a puzzle definition.
type Piece int

// Color identifies a sticker color within a puzzle definition.
type Color int

// Sticker identifies a sticker within a puzzle definition.
type Sticker int

// NoAxis marks an absent axis reference, e.g. an axis with no opposite.
const NoAxis Axis = -1

// PieceMask is a set of pieces, stored as a bitset over the piece indices
// of one puzzle definition.
type PieceMask struct {
	words []uint64
	size  int
}

// NewPieceMask returns an empty mask ranging over size pieces.
func NewPieceMask(size int) PieceMask {
	return PieceMask{words: make([]uint64, (size+63)/64), size: size}
}

// Size returns the number of pieces the mask ranges over.
func (m PieceMask) Size() int { return m.size }

// Add inserts a piece into the mask. Out-of-range pieces are ignored.
func (m *PieceMask) Add(p Piece) {
	if p < 0 || int(p) >= m.size {
		return
	}
	m.words[p/64] |= 1 << (uint(p) % 64)
}

// Contains reports whether the mask includes p.
func (m PieceMask) Contains(p Piece) bool {
	if p < 0 || int(p) >= m.size {
		return false
	}
	return m.words[p/64]&(1<<(uint(p)%64)) != 0
}

// Equal reports whether two masks range over the same size and contain
// the same pieces.
func (m PieceMask) Equal(other PieceMask) bool {
	if m.size != other.size {
		return false
	}
	for i, w := range m.words {
		if w != other.words[i] {
			return false
		}
	}
	return true
}

// Count returns the number of pieces in the mask.
func (m PieceMask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Pieces returns the members of the mask in ascending order.
func (m PieceMask) Pieces() []Piece {
	out := make([]Piece, 0, m.Count())
	for i := 0; i < m.size; i++ {
		if m.words[i/64]&(1<<(uint(i)%64)) != 0 {
			out = append(out, Piece(i))
		}
	}
	return out
}
