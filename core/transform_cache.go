package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/polytopelabs/hyperpuzzle-simulator/model"
	"github.com/polytopelabs/hyperpuzzle-simulator/pga"
)

// TransformHandle is a dense index into a TransformCache. Handle 0 is
// always the identity transform. Handles are only meaningful together
// with the cache that issued them.
type TransformHandle int

// IdentityHandle is the handle of the identity transform in every cache.
const IdentityHandle TransformHandle = 0

// CacheMetricsRecorder receives transform-cache statistics. All methods
// may be called concurrently.
type CacheMetricsRecorder interface {
	RecordIntern(hit bool)
	SetEntries(n int)
}

// TransformCache interns the piece attitudes reachable by twisting a
// puzzle. States store handles instead of motors, which keeps state
// copies cheap and makes equality checks on piece attitudes exact.
//
// The cache only ever grows: handles stay valid for the life of the
// cache, and every state of the same puzzle instance shares one cache.
// The number of reachable attitudes of a twisty puzzle is finite, so
// growth flattens out quickly in practice.
type TransformCache struct {
	mu      sync.Mutex
	def     *model.PuzzleDefinition
	entries []cacheEntry
	byKey   map[string]TransformHandle
	floats  floatIDTable
	metrics CacheMetricsRecorder
}

// cacheEntry stores an interned motor along with everything the grip
// classifier repeatedly needs: the reverse motor, and the axis vectors
// pulled back through it, filled in lazily per axis.
type cacheEntry struct {
	motor       pga.Motor
	reverse     pga.Motor
	axisVectors []pga.Vector
}

// CacheOption customises TransformCache construction.
type CacheOption func(*TransformCache)

// WithCacheMetrics attaches an optional recorder for intern hit/miss
// counts and the entry gauge.
func WithCacheMetrics(m CacheMetricsRecorder) CacheOption {
	return func(c *TransformCache) {
		c.metrics = m
	}
}

// NewTransformCache returns a cache for the given puzzle, pre-seeded
// with the identity transform at handle 0.
func NewTransformCache(def *model.PuzzleDefinition, opts ...CacheOption) *TransformCache {
	c := &TransformCache{
		def:   def,
		byKey: make(map[string]TransformHandle),
	}
	for _, opt := range opts {
		opt(c)
	}
	ident := pga.Identity(def.Ndim)
	c.entries = append(c.entries, newCacheEntry(ident, len(def.Axes)))
	c.byKey[c.keyLocked(ident)] = IdentityHandle
	if c.metrics != nil {
		c.metrics.SetEntries(1)
	}
	return c
}

func newCacheEntry(m pga.Motor, axes int) cacheEntry {
	return cacheEntry{
		motor:       m,
		reverse:     m.Reverse(),
		axisVectors: make([]pga.Vector, axes),
	}
}

// Intern returns the handle of a motor, adding it to the cache if no
// approximately-equal motor is present yet. The motor is canonicalized
// first, so a motor and its negation share a handle.
func (c *TransformCache) Intern(m pga.Motor) TransformHandle {
	canon := m.Canonicalize()
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.keyLocked(canon)
	if h, ok := c.byKey[key]; ok {
		if c.metrics != nil {
			c.metrics.RecordIntern(true)
		}
		return h
	}
	h := TransformHandle(len(c.entries))
	c.entries = append(c.entries, newCacheEntry(canon, len(c.def.Axes)))
	c.byKey[key] = h
	if c.metrics != nil {
		c.metrics.RecordIntern(false)
		c.metrics.SetEntries(len(c.entries))
	}
	return h
}

// Motor returns the interned motor for a handle. Passing a handle that
// this cache never issued is a programmer error and panics.
func (c *TransformCache) Motor(h TransformHandle) pga.Motor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryLocked(h).motor
}

// ReverseMotor returns the inverse of the interned motor for a handle.
func (c *TransformCache) ReverseMotor(h TransformHandle) pga.Motor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryLocked(h).reverse
}

// ReverseTransformedAxisVector returns the given axis's vector pulled
// back through the reverse of the handle's motor. Dotting solved-state
// vertices with this vector measures the transformed piece against the
// axis without transforming every vertex. Results are memoized per
// (handle, axis).
func (c *TransformCache) ReverseTransformedAxisVector(h TransformHandle, axis model.Axis) pga.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(h)
	if axis < 0 || int(axis) >= len(e.axisVectors) {
		panic(fmt.Sprintf("core: axis %d out of range for cache with %d axes", axis, len(e.axisVectors)))
	}
	if v := e.axisVectors[axis]; v != nil {
		return v
	}
	v := e.reverse.TransformVector(c.def.Axes[axis].Vector)
	e.axisVectors[axis] = v
	return v
}

// Len returns the number of interned transforms.
func (c *TransformCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TransformCache) entryLocked(h TransformHandle) *cacheEntry {
	if h < 0 || int(h) >= len(c.entries) {
		panic(fmt.Sprintf("core: transform handle %d out of range [0, %d)", h, len(c.entries)))
	}
	return &c.entries[h]
}

// keyLocked builds the lookup key of a canonicalized motor: its parity
// plus, for each blade with a non-negligible coefficient, the blade index
// and the tolerant ID of the coefficient value. Approximately equal
// motors produce identical keys, which is what makes interning dedup
// across float noise.
func (c *TransformCache) keyLocked(m pga.Motor) string {
	var sb strings.Builder
	if m.IsReflection() {
		sb.WriteByte('m')
	} else {
		sb.WriteByte('r')
	}
	for blade, coef := range m.Coefficients() {
		if coef > -pga.Epsilon && coef < pga.Epsilon {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(blade))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(c.floats.idFor(coef)), 10))
	}
	return sb.String()
}

// floatIDTable assigns small IDs to floats, giving the same ID to values
// within Epsilon of an already-seen value. The table keeps its keys
// sorted; lookup is a binary search for the closest stored value.
type floatIDTable struct {
	keys []float64
	ids  []uint32
	next uint32
}

func (t *floatIDTable) idFor(f float64) uint32 {
	i := sort.SearchFloat64s(t.keys, f-pga.Epsilon)
	if i < len(t.keys) && t.keys[i] <= f+pga.Epsilon {
		return t.ids[i]
	}
	t.keys = append(t.keys, 0)
	copy(t.keys[i+1:], t.keys[i:])
	t.keys[i] = f
	t.ids = append(t.ids, 0)
	copy(t.ids[i+1:], t.ids[i:])
	t.ids[i] = t.next
	t.next++
	return t.ids[i]
}
