package core

// WhichSide classifies a piece relative to a grip: the set of layer
// segments selected for a twist.
type WhichSide int

const (
	// Flush means the piece lies exactly on the grip boundary. Grip
	// classification never produces it; the value exists so per-side
	// data layouts stay compatible with tooling that expects all four
	// cases.
	Flush WhichSide = iota
	// Inside pieces move with the twist.
	Inside
	// Outside pieces stay put.
	Outside
	// Split pieces straddle a grip boundary; any twist that would cut
	// them is blocked.
	Split
)

// String returns the classification name.
func (w WhichSide) String() string {
	switch w {
	case Flush:
		return "flush"
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	case Split:
		return "split"
	default:
		return "unknown"
	}
}
