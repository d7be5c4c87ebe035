package pga

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// ErrDegenerateRotation is returned when a rotation is requested between
// vectors that do not span a plane (zero, parallel or opposite vectors).
var ErrDegenerateRotation = errors.New("pga: degenerate rotation")

// Motor is a normalized versor of Cl(ndim): the composition of zero or
// more reflections through hyperplanes containing the origin. Even motors
// are rotations, odd motors are reflections composed with rotations.
//
// The zero value is not a valid motor; use Identity and the other
// constructors.
type Motor struct {
	ndim  int
	odd   bool
	coefs []float64
}

// Identity returns the identity motor in ndim dimensions.
func Identity(ndim int) Motor {
	m := Motor{ndim: ndim, coefs: make([]float64, 1<<ndim)}
	m.coefs[0] = 1
	return m
}

// Reflection returns the motor reflecting through the hyperplane with the
// given normal vector. The normal need not be unit length but must be
// nonzero.
func Reflection(normal Vector) (Motor, error) {
	n, ok := normal.Normalize()
	if !ok {
		return Motor{}, fmt.Errorf("%w: zero reflection normal", ErrDegenerateRotation)
	}
	m := Motor{ndim: len(n), odd: true, coefs: make([]float64, 1<<len(n))}
	for i, c := range n {
		m.coefs[1<<i] = c
	}
	return m, nil
}

// RotationBetween returns the rotation carrying the direction of from onto
// the direction of to along the shorter arc. Opposite vectors have no
// unique such rotation and yield ErrDegenerateRotation.
func RotationBetween(from, to Vector) (Motor, error) {
	f, okF := from.Normalize()
	t, okT := to.Normalize()
	if !okF || !okT {
		return Motor{}, fmt.Errorf("%w: zero vector", ErrDegenerateRotation)
	}
	ndim := len(f)
	if len(t) > ndim {
		ndim = len(t)
	}
	// R = 1 + t·f, normalized, maps f to t under the sandwich product.
	// When f ≈ -t the sum cancels to zero and no shorter arc exists.
	coefs := gp(embedVector(t, ndim), embedVector(f, ndim))
	coefs[0] += 1
	m := Motor{ndim: ndim, coefs: coefs}
	norm := m.coefNorm()
	if norm <= Epsilon {
		return Motor{}, fmt.Errorf("%w: opposite vectors %v and %v", ErrDegenerateRotation, from, to)
	}
	return m.scaled(1 / norm), nil
}

// RotationInPlane returns the rotation by angle radians in the plane
// spanned by a and b, oriented so that a small positive angle moves a
// toward b. The vectors must span a plane.
func RotationInPlane(a, b Vector, angle float64) (Motor, error) {
	u, ok := a.Normalize()
	if !ok {
		return Motor{}, fmt.Errorf("%w: zero plane vector", ErrDegenerateRotation)
	}
	// Gram-Schmidt: remove the component of b along a so the wedge below
	// is a unit bivector.
	w, ok := b.Sub(u.Scale(u.Dot(b))).Normalize()
	if !ok {
		return Motor{}, fmt.Errorf("%w: vectors %v and %v do not span a plane", ErrDegenerateRotation, a, b)
	}
	ndim := len(u)
	if len(w) > ndim {
		ndim = len(w)
	}
	// R = cos(θ/2) - sin(θ/2)·(a∧b). With a ⟂ b the geometric product
	// a·b is exactly the wedge.
	coefs := gp(embedVector(u, ndim), embedVector(w, ndim))
	half := angle / 2
	s := math.Sin(half)
	for i := range coefs {
		coefs[i] *= -s
	}
	coefs[0] = math.Cos(half)
	return Motor{ndim: ndim, coefs: coefs}, nil
}

// Ndim returns the dimension the motor acts in.
func (m Motor) Ndim() int { return m.ndim }

// IsReflection reports whether the motor is an odd versor, i.e. reverses
// orientation.
func (m Motor) IsReflection() bool { return m.odd }

// Coefficients returns a copy of the blade coefficients, indexed by basis
// blade bitmask.
func (m Motor) Coefficients() []float64 {
	out := make([]float64, len(m.coefs))
	copy(out, m.coefs)
	return out
}

// Compose returns the motor that applies other first and then m.
func (m Motor) Compose(other Motor) Motor {
	a, b := m, other
	if a.ndim < b.ndim {
		a = a.resized(b.ndim)
	} else if b.ndim < a.ndim {
		b = b.resized(a.ndim)
	}
	return Motor{
		ndim:  a.ndim,
		odd:   a.odd != b.odd,
		coefs: gp(a.coefs, b.coefs),
	}
}

// Reverse returns the inverse motor. For unit versors the algebraic
// reverse is the inverse transform.
func (m Motor) Reverse() Motor {
	out := Motor{ndim: m.ndim, odd: m.odd, coefs: make([]float64, len(m.coefs))}
	for i, c := range m.coefs {
		out.coefs[i] = c * reverseSign(uint(i))
	}
	return out
}

// TransformVector applies the motor to a vector.
func (m Motor) TransformVector(v Vector) Vector {
	x := embedVector(v, m.ndim)
	sandwiched := gp(gp(m.coefs, x), m.Reverse().coefs)
	out := make(Vector, m.ndim)
	sign := 1.0
	if m.odd {
		// Odd versors sandwich to the reflection's negation: the mirror
		// image of x through the hyperplane is -V x V~.
		sign = -1
	}
	for i := 0; i < m.ndim; i++ {
		out[i] = sign * sandwiched[1<<i]
	}
	return out
}

// TransformPoint applies the motor to a point. Every motor here fixes the
// origin, so points and vectors transform identically; the method exists
// so call sites can state their intent.
func (m Motor) TransformPoint(p Vector) Vector {
	return m.TransformVector(p)
}

// Matrix returns the ndim×ndim column-major matrix of the transform:
// column i is the image of the i-th basis vector.
func (m Motor) Matrix() [][]float64 {
	cols := make([][]float64, m.ndim)
	for i := 0; i < m.ndim; i++ {
		cols[i] = m.TransformVector(Unit(m.ndim, i))
	}
	return cols
}

// ApproxEq reports whether two motors have the same parity and
// coefficients within Epsilon. Note that a motor and its negation are the
// same isometry but do not compare equal here; Canonicalize both sides to
// compare isometries.
func (m Motor) ApproxEq(other Motor) bool {
	if m.odd != other.odd {
		return false
	}
	n := len(m.coefs)
	if len(other.coefs) > n {
		n = len(other.coefs)
	}
	for i := 0; i < n; i++ {
		var a, b float64
		if i < len(m.coefs) {
			a = m.coefs[i]
		}
		if i < len(other.coefs) {
			b = other.coefs[i]
		}
		if !ApproxEq(a, b) {
			return false
		}
	}
	return true
}

// Dot returns the blade-wise scalar product of two motors. For unit
// motors its magnitude measures how closely they agree as isometries,
// with |Dot| = 1 at equality up to sign. Motors of different dimensions
// are compared in the larger algebra.
func Dot(a, b Motor) float64 {
	if a.ndim < b.ndim {
		a = a.resized(b.ndim)
	} else if b.ndim < a.ndim {
		b = b.resized(a.ndim)
	}
	sum := 0.0
	for i, c := range a.coefs {
		sum += c * b.coefs[i]
	}
	return sum
}

// ScalarPart returns the grade-0 coefficient. For a unit rotation this is
// cos(θ/2), so its magnitude measures closeness to the identity.
func (m Motor) ScalarPart() float64 {
	if len(m.coefs) == 0 {
		return 0
	}
	return m.coefs[0]
}

// Canonicalize returns the motor scaled to unit norm with its first
// nonzero coefficient positive. A motor and its negation describe the same
// isometry; canonicalizing both yields identical coefficients, which is
// what the transform cache keys on.
func (m Motor) Canonicalize() Motor {
	norm := m.coefNorm()
	if norm <= Epsilon {
		return m
	}
	scale := 1 / norm
	for _, c := range m.coefs {
		if math.Abs(c)*scale > Epsilon {
			if c < 0 {
				scale = -scale
			}
			break
		}
	}
	return m.scaled(scale)
}

// IsIdentity reports whether the motor is (approximately) the identity
// transform.
func (m Motor) IsIdentity() bool {
	if m.odd {
		return false
	}
	c := m.Canonicalize()
	if !ApproxEq(c.coefs[0], 1) {
		return false
	}
	for _, v := range c.coefs[1:] {
		if !ApproxEq(v, 0) {
			return false
		}
	}
	return true
}

// Slerp spherically interpolates between two motors. The endpoints are
// exact: t=0 returns a and t=1 returns b unmodified, so interning an
// endpoint frame always reuses the endpoint's cache entry. Motors of
// different parity have no continuous path between them; the nearer
// endpoint is returned instead.
func Slerp(a, b Motor, t float64) Motor {
	if t == 0 {
		return a
	}
	if t == 1 {
		return b
	}
	if a.odd != b.odd || a.ndim != b.ndim {
		if t < 0.5 {
			return a
		}
		return b
	}
	dot := 0.0
	for i, c := range a.coefs {
		dot += c * b.coefs[i]
	}
	// Interpolate along the shorter arc: b and -b are the same isometry.
	sign := 1.0
	if dot < 0 {
		dot, sign = -dot, -1
	}
	var wa, wb float64
	if dot > 1-Epsilon {
		// Nearly parallel; sin(angle) underflows, fall back to a linear
		// blend which is indistinguishable at this separation.
		wa, wb = 1-t, sign*t
	} else {
		angle := math.Acos(dot)
		s := math.Sin(angle)
		wa = math.Sin((1-t)*angle) / s
		wb = sign * math.Sin(t*angle) / s
	}
	out := Motor{ndim: a.ndim, odd: a.odd, coefs: make([]float64, len(a.coefs))}
	for i := range out.coefs {
		out.coefs[i] = wa*a.coefs[i] + wb*b.coefs[i]
	}
	norm := out.coefNorm()
	if norm <= Epsilon {
		if t < 0.5 {
			return a
		}
		return b
	}
	return out.scaled(1 / norm)
}

// String renders the motor's nonzero blades, e.g. "0.7071 + 0.7071·e12".
func (m Motor) String() string {
	var terms []string
	for i, c := range m.coefs {
		if math.Abs(c) <= Epsilon {
			continue
		}
		if i == 0 {
			terms = append(terms, fmt.Sprintf("%.4f", c))
			continue
		}
		terms = append(terms, fmt.Sprintf("%.4f·%s", c, bladeName(uint(i))))
	}
	if len(terms) == 0 {
		return "0"
	}
	s := strings.Join(terms, " + ")
	if m.odd {
		s += " (reflection)"
	}
	return strings.ReplaceAll(s, "+ -", "- ")
}

func (m Motor) coefNorm() float64 {
	sum := 0.0
	for _, c := range m.coefs {
		sum += c * c
	}
	return math.Sqrt(sum)
}

func (m Motor) scaled(s float64) Motor {
	out := Motor{ndim: m.ndim, odd: m.odd, coefs: make([]float64, len(m.coefs))}
	for i, c := range m.coefs {
		out.coefs[i] = c * s
	}
	return out
}

// resized re-embeds the motor in a higher dimension. Blade bitmasks are
// dimension-independent, so the coefficients carry over unchanged.
func (m Motor) resized(ndim int) Motor {
	out := Motor{ndim: ndim, odd: m.odd, coefs: make([]float64, 1<<ndim)}
	copy(out.coefs, m.coefs)
	return out
}

// embedVector places a vector's components on the grade-1 blades of a
// multivector of dimension ndim.
func embedVector(v Vector, ndim int) []float64 {
	out := make([]float64, 1<<ndim)
	for i := 0; i < ndim && i < len(v); i++ {
		out[1<<i] = v[i]
	}
	return out
}

// gp is the geometric product of two dense multivectors in the Euclidean
// metric. The product of basis blades a and b is the blade a XOR b with a
// sign given by the number of transpositions needed to sort the factors.
func gp(a, b []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	for i, ca := range a {
		if ca == 0 {
			continue
		}
		for j, cb := range b {
			if cb == 0 {
				continue
			}
			out[i^j] += bladeProductSign(uint(i), uint(j)) * ca * cb
		}
	}
	return out
}

// bladeProductSign counts the transpositions that move the factors of
// blade a past those of blade b into canonical order. Each basis vector of
// a must hop over every lower-indexed basis vector of b.
func bladeProductSign(a, b uint) float64 {
	a >>= 1
	swaps := 0
	for a != 0 {
		swaps += bits.OnesCount(a & b)
		a >>= 1
	}
	if swaps&1 == 0 {
		return 1
	}
	return -1
}

// reverseSign is the sign a blade picks up under reversal: negative for
// grades 2 and 3 mod 4.
func reverseSign(blade uint) float64 {
	switch bits.OnesCount(blade) % 4 {
	case 2, 3:
		return -1
	default:
		return 1
	}
}

func bladeName(blade uint) string {
	var sb strings.Builder
	sb.WriteByte('e')
	for i := 0; blade != 0; i++ {
		if blade&1 != 0 {
			fmt.Fprintf(&sb, "%d", i+1)
		}
		blade >>= 1
	}
	return sb.String()
}
