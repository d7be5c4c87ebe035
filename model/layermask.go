package model

import (
	"fmt"
	"math/bits"
	"strings"
)

// LayerMask selects a subset of the layers of one axis. Bit 0 is the
// outermost layer; bit i is the i-th layer counting inward. A mask is
// meaningful only together with the axis it was built for.
type LayerMask uint32

// MaxLayers is the largest number of layers a single axis may have,
// bounded by the mask width.
const MaxLayers = 32

// DefaultLayerMask selects only the outermost layer, which is what a
// twist with no explicit layer prefix acts on.
const DefaultLayerMask LayerMask = 1

// LayerMaskFromRange returns the mask selecting layers lo through hi
// inclusive (0-based, outermost first). An inverted range yields the
// empty mask.
func LayerMaskFromRange(lo, hi int) LayerMask {
	if lo < 0 {
		lo = 0
	}
	if hi >= MaxLayers {
		hi = MaxLayers - 1
	}
	if lo > hi {
		return 0
	}
	n := uint(hi - lo + 1)
	if n >= 32 {
		return ^LayerMask(0) << uint(lo)
	}
	return ((1 << n) - 1) << uint(lo)
}

// AllLayersMask returns the mask selecting every layer of an axis with
// the given layer count.
func AllLayersMask(count int) LayerMask {
	return LayerMaskFromRange(0, count-1)
}

// Contains reports whether the mask selects layer i.
func (m LayerMask) Contains(i int) bool {
	return i >= 0 && i < MaxLayers && m&(1<<uint(i)) != 0
}

// Count returns the number of selected layers.
func (m LayerMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// IsEmpty reports whether no layer is selected.
func (m LayerMask) IsEmpty() bool { return m == 0 }

// String renders the mask in the conventional twist-notation form:
// the default mask renders as the empty string, other masks as a braced
// 1-indexed list with ranges, e.g. "{1-3,5}".
func (m LayerMask) String() string {
	if m == DefaultLayerMask {
		return ""
	}
	if m == 0 {
		return "{}"
	}
	var parts []string
	for i := 0; i < MaxLayers; i++ {
		if !m.Contains(i) {
			continue
		}
		j := i
		for j+1 < MaxLayers && m.Contains(j+1) {
			j++
		}
		if j == i {
			parts = append(parts, fmt.Sprintf("%d", i+1))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", i+1, j+1))
		}
		i = j
	}
	return "{" + strings.Join(parts, ",") + "}"
}
