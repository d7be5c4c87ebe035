// Package pga implements the origin-fixing fragment of geometric algebra
// that the puzzle engine works in: N-dimensional Euclidean vectors and the
// versors ("motors") that rotate and reflect them.
//
// A motor is stored as a dense multivector over the 2^n basis blades of
// Cl(n), indexed by bitmask (bit i set means basis vector e_{i+1} is a
// factor of the blade), together with a parity flag distinguishing
// rotations from odd reflections. Every motor produced by this package is
// normalized; transform application assumes unit norm. Translations are
// deliberately out of scope: every isometry here fixes the origin, which is
// all a twisty puzzle needs.
package pga
