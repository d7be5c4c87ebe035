package pga

import "math"

// Epsilon is the absolute tolerance used for all approximate float
// comparisons in the engine. Layer bounds, motor coefficients and grip
// classifications all compare against the same tolerance so that a value
// considered "on" a cut by one code path is never considered "off" it by
// another.
const Epsilon = 1e-6

// ApproxEq reports whether x and y differ by at most Epsilon.
// Equal infinities compare equal.
func ApproxEq(x, y float64) bool {
	if x == y {
		return true
	}
	return math.Abs(x-y) <= Epsilon
}

// ApproxLt reports whether x is less than y by more than Epsilon.
func ApproxLt(x, y float64) bool {
	return x < y-Epsilon
}

// ApproxGt reports whether x is greater than y by more than Epsilon.
func ApproxGt(x, y float64) bool {
	return x > y+Epsilon
}

// ApproxLtEq reports whether x is less than or approximately equal to y.
func ApproxLtEq(x, y float64) bool {
	return x <= y+Epsilon || ApproxEq(x, y)
}

// ApproxGtEq reports whether x is greater than or approximately equal to y.
func ApproxGtEq(x, y float64) bool {
	return x >= y-Epsilon || ApproxEq(x, y)
}
