package pga

import (
	"fmt"
	"math"
	"strings"
)

// Vector is an N-dimensional Euclidean vector. The engine is
// dimension-generic; the number of dimensions is fixed per puzzle, not per
// build, so vectors carry their length at runtime.
type Vector []float64

// NewVector returns a zero vector with ndim components.
func NewVector(ndim int) Vector {
	return make(Vector, ndim)
}

// Unit returns the i-th standard basis vector in ndim dimensions.
func Unit(ndim, i int) Vector {
	v := make(Vector, ndim)
	v[i] = 1
	return v
}

// Ndim returns the number of components.
func (v Vector) Ndim() int { return len(v) }

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Dot returns the dot product of v and other. Vectors of different
// lengths are dotted over their common prefix; missing components are
// treated as zero.
func (v Vector) Dot(other Vector) float64 {
	n := len(v)
	if len(other) < n {
		n = len(other)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += v[i] * other[i]
	}
	return sum
}

// Add returns v + other.
func (v Vector) Add(other Vector) Vector {
	out := v.Clone()
	for i := range out {
		if i < len(other) {
			out[i] += other[i]
		}
	}
	return out
}

// Sub returns v - other.
func (v Vector) Sub(other Vector) Vector {
	out := v.Clone()
	for i := range out {
		if i < len(other) {
			out[i] -= other[i]
		}
	}
	return out
}

// Scale returns v scaled by s.
func (v Vector) Scale(s float64) Vector {
	out := v.Clone()
	for i := range out {
		out[i] *= s
	}
	return out
}

// Neg returns -v.
func (v Vector) Neg() Vector { return v.Scale(-1) }

// Norm returns the Euclidean norm of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length. The second return value is
// false when v is (approximately) the zero vector, in which case the
// vector is returned unchanged.
func (v Vector) Normalize() (Vector, bool) {
	n := v.Norm()
	if n <= Epsilon {
		return v.Clone(), false
	}
	return v.Scale(1 / n), true
}

// ApproxEq reports whether every component of v and other agrees within
// Epsilon. Vectors of different lengths compare equal when the extra
// components are approximately zero.
func (v Vector) ApproxEq(other Vector) bool {
	n := len(v)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		var a, b float64
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if !ApproxEq(a, b) {
			return false
		}
	}
	return true
}

// IsZero reports whether every component is approximately zero.
func (v Vector) IsZero() bool {
	for _, c := range v {
		if !ApproxEq(c, 0) {
			return false
		}
	}
	return true
}

// String renders the vector as "(x, y, z)" with trimmed precision.
func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", c), "0"), ".")
		if parts[i] == "" || parts[i] == "-" {
			parts[i] = "0"
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
