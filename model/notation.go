package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadNotation is wrapped by twist-notation parse failures.
var ErrBadNotation = errors.New("model: bad twist notation")

// ParseLayerMask parses the braced-list body of twist notation, e.g.
// "1-3,5" (1-indexed, outermost first), into a mask.
func ParseLayerMask(s string) (LayerMask, error) {
	var mask LayerMask
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0, fmt.Errorf("%w: empty layer range in %q", ErrBadNotation, s)
		}
		lo, hi, found := strings.Cut(part, "-")
		if !found {
			hi = lo
		}
		loN, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, fmt.Errorf("%w: layer %q in %q", ErrBadNotation, lo, s)
		}
		hiN, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, fmt.Errorf("%w: layer %q in %q", ErrBadNotation, hi, s)
		}
		if loN < 1 || hiN > MaxLayers || loN > hiN {
			return 0, fmt.Errorf("%w: layer range %q out of bounds", ErrBadNotation, part)
		}
		mask |= LayerMaskFromRange(loN-1, hiN-1)
	}
	if mask == 0 {
		return 0, fmt.Errorf("%w: empty mask %q", ErrBadNotation, s)
	}
	return mask, nil
}

// FormatTwists renders a twist sequence as space-separated notation,
// the inverse of parsing each word with ParseLayeredTwist.
func FormatTwists(d *PuzzleDefinition, twists []LayeredTwist) string {
	words := make([]string, len(twists))
	for i, lt := range twists {
		words[i] = lt.Notation(d)
	}
	return strings.Join(words, " ")
}

// ParseTwists parses space-separated twist notation, e.g. "R {1-2}U F'".
func ParseTwists(d *PuzzleDefinition, s string) ([]LayeredTwist, error) {
	var out []LayeredTwist
	for _, word := range strings.Fields(s) {
		lt, err := ParseLayeredTwist(d, word)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, nil
}

// ParseLayeredTwist parses twist notation against a definition: an
// optional "{layers}" prefix followed by a twist name, e.g. "R" or
// "{1-2}R'". A missing prefix means the outermost layer.
func ParseLayeredTwist(d *PuzzleDefinition, s string) (LayeredTwist, error) {
	s = strings.TrimSpace(s)
	layers := DefaultLayerMask
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return LayeredTwist{}, fmt.Errorf("%w: unterminated layer prefix in %q", ErrBadNotation, s)
		}
		var err error
		layers, err = ParseLayerMask(s[1:end])
		if err != nil {
			return LayeredTwist{}, err
		}
		s = s[end+1:]
	}
	if s == "" {
		return LayeredTwist{}, fmt.Errorf("%w: missing twist name", ErrBadNotation)
	}
	twist, ok := d.TwistByName(s)
	if !ok {
		return LayeredTwist{}, fmt.Errorf("%w: puzzle %q has no twist %q", ErrBadNotation, d.Name, s)
	}
	return LayeredTwist{Twist: twist, Layers: layers}, nil
}
