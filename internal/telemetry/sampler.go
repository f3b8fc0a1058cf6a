package telemetry

import (
	"context"
	"time"
)

// MemorySnapshot is the subset of memory.Regulator.Snapshot() the sampler
// needs; declared locally so this package does not import internal/memory
// just to read four fields.
type MemorySnapshot struct {
	Tier        int
	HeapBytes   uint64
	PeakHeap    uint64
	CleanupRuns uint64
}

// PoolSnapshot is the subset of pool state the sampler reads each tick.
type PoolSnapshot struct {
	Total    int
	Disabled int
	Index    int
}

// Sampler periodically copies point-in-time state from the memory
// regulator and credential rotator into gauges, since those components
// update in place rather than pushing to Prometheus themselves.
type Sampler struct {
	metrics  *Metrics
	memoryFn func() MemorySnapshot
	poolFn   func() PoolSnapshot
	interval time.Duration
}

// NewSampler builds a Sampler. memoryFn and poolFn are called once per
// tick from the sampler's own goroutine.
func NewSampler(metrics *Metrics, interval time.Duration, memoryFn func() MemorySnapshot, poolFn func() PoolSnapshot) *Sampler {
	return &Sampler{metrics: metrics, memoryFn: memoryFn, poolFn: poolFn, interval: interval}
}

// Run samples on interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	mem := s.memoryFn()
	s.metrics.MemoryTier.Set(float64(mem.Tier))
	s.metrics.MemoryHeapBytes.Set(float64(mem.HeapBytes))
	s.metrics.MemoryPeakHeapBytes.Set(float64(mem.PeakHeap))
	s.metrics.MemoryCleanupRuns.Set(float64(mem.CleanupRuns))

	pool := s.poolFn()
	s.metrics.CredentialPoolSize.Set(float64(pool.Total))
	s.metrics.CredentialsDisabled.Set(float64(pool.Disabled))
	s.metrics.RotatorIndex.Set(float64(pool.Index))
}
