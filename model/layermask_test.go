package model

import "testing"

func TestLayerMaskFromRange(t *testing.T) {
	cases := []struct {
		lo, hi int
		want   LayerMask
	}{
		{0, 0, 0b1},
		{0, 2, 0b111},
		{1, 2, 0b110},
		{2, 1, 0},     // inverted range selects nothing
		{-3, 0, 0b1},  // clamped at the outermost layer
		{0, 40, ^LayerMask(0)},
	}
	for _, c := range cases {
		if got := LayerMaskFromRange(c.lo, c.hi); got != c.want {
			t.Errorf("LayerMaskFromRange(%d, %d) = %b, want %b", c.lo, c.hi, got, c.want)
		}
	}
}

func TestLayerMaskQueries(t *testing.T) {
	m := LayerMask(0b1011)
	if !m.Contains(0) || !m.Contains(1) || m.Contains(2) || !m.Contains(3) {
		t.Errorf("Contains gave wrong members for %b", m)
	}
	if m.Contains(-1) || m.Contains(32) {
		t.Errorf("Contains accepted out-of-range layer")
	}
	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if AllLayersMask(3) != 0b111 {
		t.Errorf("AllLayersMask(3) = %b", AllLayersMask(3))
	}
}

func TestLayerMaskString(t *testing.T) {
	cases := []struct {
		mask LayerMask
		want string
	}{
		{DefaultLayerMask, ""}, // the default prefix is left off twist notation
		{0, "{}"},
		{0b10, "{2}"},
		{0b111, "{1-3}"},
		{0b10111, "{1-3,5}"},
	}
	for _, c := range cases {
		if got := c.mask.String(); got != c.want {
			t.Errorf("LayerMask(%b).String() = %q, want %q", c.mask, got, c.want)
		}
	}
}

func TestPieceMask(t *testing.T) {
	m := NewPieceMask(100)
	m.Add(0)
	m.Add(64)
	m.Add(99)
	m.Add(200) // out of range, ignored
	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if !m.Contains(64) || m.Contains(63) {
		t.Errorf("Contains gave wrong membership around the word boundary")
	}
	want := []Piece{0, 64, 99}
	got := m.Pieces()
	if len(got) != len(want) {
		t.Fatalf("Pieces() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pieces() = %v, want %v", got, want)
		}
	}
}

func TestPieceMaskEqual(t *testing.T) {
	a := NewPieceMask(70)
	b := NewPieceMask(70)
	a.Add(3)
	a.Add(65)
	b.Add(3)
	if a.Equal(b) {
		t.Errorf("masks with different members compare equal")
	}
	b.Add(65)
	if !a.Equal(b) {
		t.Errorf("identical masks compare unequal")
	}
	if a.Equal(NewPieceMask(71)) {
		t.Errorf("masks over different sizes compare equal")
	}
}
