package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Twist outcome labels recorded by the engine collector.
const (
	TwistApplied = "applied"
	TwistBlocked = "blocked"
)

// EngineCollector exposes puzzle-engine Prometheus metrics. Its
// RecordIntern and SetEntries methods satisfy the transform cache's
// metrics recorder interface, so a collector can be passed straight into
// cache construction.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	TwistsTotal     *prometheus.CounterVec
	GripDuration    prometheus.Histogram
	CacheEntries    prometheus.Gauge
	CacheInterns    *prometheus.CounterVec
	ScramblesTotal  prometheus.Counter
	SolvesTotal     prometheus.Counter
}

// NewEngineCollector registers engine metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	twists := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twists_total",
		Help: "Total number of twist attempts, labeled by puzzle and outcome (applied or blocked).",
	}, []string{"puzzle", "outcome"})
	twists, err := registerCounterVec(reg, twists, "twists_total")
	if err != nil {
		return nil, err
	}

	gripHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grip_computation_duration_seconds",
		Help:    "Duration of grip classifications performed when applying twists.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	gripHistogram, err = registerHistogram(reg, gripHistogram, "grip_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transform_cache_entries",
		Help: "Number of piece attitudes interned in the transform cache.",
	})
	entries, err = registerGauge(reg, entries, "transform_cache_entries")
	if err != nil {
		return nil, err
	}

	interns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transform_cache_interns_total",
		Help: "Transform cache intern operations, labeled by result (hit or miss).",
	}, []string{"result"})
	interns, err = registerCounterVec(reg, interns, "transform_cache_interns_total")
	if err != nil {
		return nil, err
	}

	scrambles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrambles_total",
		Help: "Cumulative number of scrambles applied to sessions.",
	})
	scrambles, err = registerCounter(reg, scrambles, "scrambles_total")
	if err != nil {
		return nil, err
	}

	solves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solves_total",
		Help: "Cumulative number of sessions reaching the solved state after a scramble.",
	})
	solves, err = registerCounter(reg, solves, "solves_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:       gatherer,
		TwistsTotal:    twists,
		GripDuration:   gripHistogram,
		CacheEntries:   entries,
		CacheInterns:   interns,
		ScramblesTotal: scrambles,
		SolvesTotal:    solves,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordTwist counts a twist attempt on a puzzle with the given outcome.
func (c *EngineCollector) RecordTwist(puzzle, outcome string) {
	if c == nil || c.TwistsTotal == nil {
		return
	}
	c.TwistsTotal.WithLabelValues(puzzle, outcome).Inc()
}

// ObserveGripDuration records a grip classification measurement.
func (c *EngineCollector) ObserveGripDuration(d time.Duration) {
	if c == nil || c.GripDuration == nil {
		return
	}
	c.GripDuration.Observe(d.Seconds())
}

// RecordIntern counts a transform cache intern as a hit or miss.
func (c *EngineCollector) RecordIntern(hit bool) {
	if c == nil || c.CacheInterns == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheInterns.WithLabelValues(result).Inc()
}

// SetEntries updates the transform cache size gauge.
func (c *EngineCollector) SetEntries(n int) {
	if c == nil || c.CacheEntries == nil {
		return
	}
	c.CacheEntries.Set(float64(n))
}

// RecordScramble increments the scramble counter.
func (c *EngineCollector) RecordScramble() {
	if c == nil || c.ScramblesTotal == nil {
		return
	}
	c.ScramblesTotal.Inc()
}

// RecordSolve increments the solve counter.
func (c *EngineCollector) RecordSolve() {
	if c == nil || c.SolvesTotal == nil {
		return
	}
	c.SolvesTotal.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
