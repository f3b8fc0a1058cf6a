// Package objectpool provides reusable buffers for the translator and
// streaming layers, sized by the memory regulator's current pressure
// tier instead of a single fixed capacity.
package objectpool

import (
	"bytes"
	"strings"
	"sync"
)

// Sizer reports the recommended capacity for a given base size at the
// current memory pressure tier. Implemented by *memory.Regulator.
type Sizer interface {
	PoolSizeFor(base int) int
}

var bufferPool = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 1024)) },
}

// GetBuffer retrieves a reset *bytes.Buffer, used for assembling SSE
// chunk payloads before they are written to the client.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer resets and returns buf to the pool.
func PutBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufferPool.Put(buf)
}

var builderPool = sync.Pool{
	New: func() any {
		b := &strings.Builder{}
		b.Grow(512)
		return b
	},
}

// GetBuilder retrieves a reset *strings.Builder, used to accumulate
// streamed reasoning/content deltas before emitting a translated chunk.
func GetBuilder() *strings.Builder {
	return builderPool.Get().(*strings.Builder)
}

// PutBuilder resets and returns b to the pool.
func PutBuilder(b *strings.Builder) {
	b.Reset()
	builderPool.Put(b)
}

// ToolCallAccumulator buffers a single in-flight tool/function call's
// name and argument fragments across streamed deltas.
type ToolCallAccumulator struct {
	ID        string
	Name      string
	Arguments strings.Builder
}

func (t *ToolCallAccumulator) reset() {
	t.ID = ""
	t.Name = ""
	t.Arguments.Reset()
}

var toolCallPool = sync.Pool{
	New: func() any { return &ToolCallAccumulator{} },
}

// GetToolCallAccumulator retrieves a cleared accumulator.
func GetToolCallAccumulator() *ToolCallAccumulator {
	return toolCallPool.Get().(*ToolCallAccumulator)
}

// PutToolCallAccumulator clears and returns acc to the pool.
func PutToolCallAccumulator(acc *ToolCallAccumulator) {
	acc.reset()
	toolCallPool.Put(acc)
}

// LineBufferPool hands out capacity-hinted byte slices for SSE line
// scanning; capacity is tier-adjusted via sizer so CRITICAL pressure
// falls back to minimal allocations instead of the normal 4KB hint.
type LineBufferPool struct {
	sizer   Sizer
	baseCap int
	pool    sync.Pool
}

// NewLineBufferPool builds a pool whose buffers default to baseCap bytes,
// shrinking under pressure as reported by sizer.
func NewLineBufferPool(sizer Sizer, baseCap int) *LineBufferPool {
	p := &LineBufferPool{sizer: sizer, baseCap: baseCap}
	p.pool.New = func() any {
		return make([]byte, 0, baseCap)
	}
	return p
}

// Get returns a line buffer sized for the current pressure tier.
func (p *LineBufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	want := p.baseCap
	if p.sizer != nil {
		want = p.sizer.PoolSizeFor(p.baseCap)
	}
	if cap(buf) < want {
		return make([]byte, 0, want)
	}
	return buf[:0]
}

// Put returns buf to the pool.
func (p *LineBufferPool) Put(buf []byte) {
	p.pool.Put(buf[:0])
}
