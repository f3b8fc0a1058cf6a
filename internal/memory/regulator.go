// Package memory implements the heap-pressure regulator: a background
// tick that classifies the process into LOW/MEDIUM/HIGH/CRITICAL tiers
// and broadcasts cleanup signals to subscribers (quota cache, signature
// cache, object pools) as pressure rises.
package memory

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Tier is one of the four pressure classifications.
type Tier string

const (
	Low      Tier = "LOW"
	Medium   Tier = "MEDIUM"
	High     Tier = "HIGH"
	Critical Tier = "CRITICAL"
)

const (
	tickInterval = 30 * time.Second
	gcCooldown   = 10 * time.Second
)

// Subscriber receives a tier change so it can shed memory proportionally.
type Subscriber interface {
	OnPressure(tier string)
}

// Regulator owns the tick loop and subscriber fan-out.
type Regulator struct {
	highBytes uint64
	log       *slog.Logger

	mu          sync.Mutex
	subscribers []Subscriber
	lastGC      time.Time

	currentTier atomic.Value // Tier
	peakHeap    atomic.Uint64
	cleanups    atomic.Uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Regulator. highMB sets the HIGH threshold; LOW/MEDIUM are
// derived as fractions of it (0.3 and 0.6), CRITICAL is anything above it.
func New(highMB int, log *slog.Logger) *Regulator {
	r := &Regulator{
		highBytes: uint64(highMB) * 1024 * 1024,
		log:       log,
		stop:      make(chan struct{}),
	}
	r.currentTier.Store(Low)
	return r
}

// Subscribe registers a component to be notified of tier transitions.
func (r *Regulator) Subscribe(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, s)
}

// Start begins the 30-second tick loop.
func (r *Regulator) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// Stop halts the tick loop.
func (r *Regulator) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Regulator) tick() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapUsed := stats.HeapAlloc

	if heapUsed > r.peakHeap.Load() {
		r.peakHeap.Store(heapUsed)
	}

	tier := classify(heapUsed, r.highBytes)
	prev, _ := r.currentTier.Load().(Tier)

	if tier != prev {
		r.currentTier.Store(tier)
		if r.log != nil {
			r.log.Info("memory pressure tier changed", "from", prev, "to", tier, "heap_bytes", heapUsed)
		}
		r.broadcast(tier)
	}

	r.maybeGC(tier)
}

func classify(heapUsed, highBytes uint64) Tier {
	if highBytes == 0 {
		return Low
	}
	switch {
	case heapUsed >= highBytes:
		return Critical
	case float64(heapUsed) >= 0.6*float64(highBytes):
		return High
	case float64(heapUsed) >= 0.3*float64(highBytes):
		return Medium
	default:
		return Low
	}
}

func (r *Regulator) broadcast(tier Tier) {
	r.mu.Lock()
	subs := append([]Subscriber(nil), r.subscribers...)
	r.mu.Unlock()

	for _, s := range subs {
		s.OnPressure(string(tier))
	}
	r.cleanups.Add(1)
}

// maybeGC forces a GC hint on HIGH (cooldown-gated) and always on CRITICAL.
func (r *Regulator) maybeGC(tier Tier) {
	if tier == Critical {
		debug.FreeOSMemory()
		r.mu.Lock()
		r.lastGC = time.Now()
		r.mu.Unlock()
		return
	}
	if tier != High {
		return
	}

	r.mu.Lock()
	due := time.Since(r.lastGC) >= gcCooldown
	if due {
		r.lastGC = time.Now()
	}
	r.mu.Unlock()

	if due {
		runtime.GC()
	}
}

// Snapshot is the read model exposed at the inspection endpoint.
type Snapshot struct {
	Tier        string `json:"tier"`
	HeapBytes   uint64 `json:"heapBytes"`
	PeakHeap    uint64 `json:"peakHeapBytes"`
	CleanupRuns uint64 `json:"cleanupRuns"`
	HighBytes   uint64 `json:"highBytes"`
}

// Snapshot returns the current pressure state.
func (r *Regulator) Snapshot() Snapshot {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	tier, _ := r.currentTier.Load().(Tier)
	return Snapshot{
		Tier:        string(tier),
		HeapBytes:   stats.HeapAlloc,
		PeakHeap:    r.peakHeap.Load(),
		CleanupRuns: r.cleanups.Load(),
		HighBytes:   r.highBytes,
	}
}

// PoolSizeFor returns the recommended pool capacity for the given base
// capacity at the current tier: full at LOW/MEDIUM, halved at HIGH,
// minimal at CRITICAL.
func (r *Regulator) PoolSizeFor(base int) int {
	tier, _ := r.currentTier.Load().(Tier)
	switch tier {
	case Critical:
		return 1
	case High:
		if base/2 > 0 {
			return base / 2
		}
		return 1
	default:
		return base
	}
}
