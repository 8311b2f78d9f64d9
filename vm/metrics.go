package vm

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Histogram keeps the most recent latency samples in a ring and reports
// percentiles over them
type Histogram struct {
	samples []float64 // Latencies in microseconds
	next    int       // Ring position of the next write
	full    bool      // Ring has wrapped at least once
	mu      sync.Mutex
}

// NewHistogram creates a new histogram with a max sample size
func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Histogram{
		samples: make([]float64, maxSize),
	}
}

// Record adds a latency sample (in microseconds), overwriting the oldest
// one once the ring is full
func (h *Histogram) Record(latencyUs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = latencyUs
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.full = true
	}
}

// Count returns the number of retained samples
func (h *Histogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count()
}

func (h *Histogram) count() int {
	if h.full {
		return len(h.samples)
	}
	return h.next
}

// Reset clears all samples
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.full = false
}

// HistogramSnapshot holds percentile statistics at a point in time
type HistogramSnapshot struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64 // Median
	P95   float64
	P99   float64
	P999  float64
}

// Snapshot captures current histogram statistics from one sorted copy
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	sorted := make([]float64, h.count())
	copy(sorted, h.samples[:len(sorted)])
	h.mu.Unlock()

	if len(sorted) == 0 {
		return HistogramSnapshot{}
	}
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return HistogramSnapshot{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		P999:  percentile(sorted, 99.9),
	}
}

// percentile interpolates the p-th percentile (0-100) of sorted samples
func percentile(sorted []float64, p float64) float64 {
	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Metrics tracks frame manager activity
type Metrics struct {
	// Allocation Metrics
	allocations atomic.Uint64
	poolHits    atomic.Uint64
	releases    atomic.Uint64
	bindMisses  atomic.Uint64

	// Eviction Metrics
	evictions   atomic.Uint64
	swapWrites  atomic.Uint64
	cleanSkips  atomic.Uint64
	clockPasses atomic.Uint64

	// Latency Histograms (microseconds)
	evictionLatency  *Histogram // select + write-out + reclaim
	swapWriteLatency *Histogram // swap device write-out only

	startTime time.Time
	mu        sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:        time.Now(),
		evictionLatency:  NewHistogram(10000),
		swapWriteLatency: NewHistogram(10000),
	}
}

// Allocation Metrics

func (m *Metrics) RecordAllocation() {
	m.allocations.Add(1)
}

func (m *Metrics) RecordPoolHit() {
	m.poolHits.Add(1)
}

func (m *Metrics) RecordRelease() {
	m.releases.Add(1)
}

func (m *Metrics) RecordBindMiss() {
	m.bindMisses.Add(1)
}

// Eviction Metrics

// RecordEviction counts a completed eviction and its end-to-end latency
func (m *Metrics) RecordEviction(duration time.Duration) {
	m.evictions.Add(1)
	m.evictionLatency.Record(float64(duration.Microseconds()))
}

// RecordSwapWrite counts a page written to swap and the write latency
func (m *Metrics) RecordSwapWrite(duration time.Duration) {
	m.swapWrites.Add(1)
	m.swapWriteLatency.Record(float64(duration.Microseconds()))
}

func (m *Metrics) RecordCleanSkip() {
	m.cleanSkips.Add(1)
}

func (m *Metrics) RecordClockPasses(passes int) {
	if passes > 0 {
		m.clockPasses.Add(uint64(passes))
	}
}

// Getters

func (m *Metrics) GetAllocations() uint64 {
	return m.allocations.Load()
}

func (m *Metrics) GetPoolHits() uint64 {
	return m.poolHits.Load()
}

func (m *Metrics) GetReleases() uint64 {
	return m.releases.Load()
}

func (m *Metrics) GetBindMisses() uint64 {
	return m.bindMisses.Load()
}

func (m *Metrics) GetEvictions() uint64 {
	return m.evictions.Load()
}

func (m *Metrics) GetSwapWrites() uint64 {
	return m.swapWrites.Load()
}

func (m *Metrics) GetCleanSkips() uint64 {
	return m.cleanSkips.Load()
}

func (m *Metrics) GetClockPasses() uint64 {
	return m.clockPasses.Load()
}

// GetPoolHitRate returns the share of allocations served without eviction
func (m *Metrics) GetPoolHitRate() float64 {
	total := m.allocations.Load()
	if total == 0 {
		return 0.0
	}
	return float64(m.poolHits.Load()) / float64(total)
}

func (m *Metrics) GetUptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// GetEvictionLatency returns snapshot of eviction latency distribution
func (m *Metrics) GetEvictionLatency() HistogramSnapshot {
	return m.evictionLatency.Snapshot()
}

// GetSwapWriteLatency returns snapshot of swap write latency distribution
func (m *Metrics) GetSwapWriteLatency() HistogramSnapshot {
	return m.swapWriteLatency.Snapshot()
}

// LogMetrics logs all metrics using structured logging
func (m *Metrics) LogMetrics(logger *slog.Logger) {
	eviction := m.GetEvictionLatency()
	swapWrite := m.GetSwapWriteLatency()

	logger.Info("Frame Manager Metrics",
		slog.Group("allocation",
			slog.Uint64("allocations", m.GetAllocations()),
			slog.Uint64("pool_hits", m.GetPoolHits()),
			slog.Float64("pool_hit_rate", m.GetPoolHitRate()),
			slog.Uint64("releases", m.GetReleases()),
			slog.Uint64("bind_misses", m.GetBindMisses()),
		),
		slog.Group("eviction",
			slog.Uint64("evictions", m.GetEvictions()),
			slog.Uint64("swap_writes", m.GetSwapWrites()),
			slog.Uint64("clean_skips", m.GetCleanSkips()),
			slog.Uint64("clock_passes", m.GetClockPasses()),
		),
		slog.Group("latency_us",
			slog.Group("eviction",
				slog.Int("count", eviction.Count),
				slog.Float64("mean", eviction.Mean),
				slog.Float64("p50", eviction.P50),
				slog.Float64("p95", eviction.P95),
				slog.Float64("p99", eviction.P99),
			),
			slog.Group("swap_write",
				slog.Int("count", swapWrite.Count),
				slog.Float64("mean", swapWrite.Mean),
				slog.Float64("p95", swapWrite.P95),
				slog.Float64("p99", swapWrite.P99),
			),
		),
		slog.Duration("uptime", m.GetUptime()),
	)
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.allocations.Store(0)
	m.poolHits.Store(0)
	m.releases.Store(0)
	m.bindMisses.Store(0)
	m.evictions.Store(0)
	m.swapWrites.Store(0)
	m.cleanSkips.Store(0)
	m.clockPasses.Store(0)

	m.evictionLatency.Reset()
	m.swapWriteLatency.Reset()

	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}
