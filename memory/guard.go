package memory

import (
	worklet "github.com/wippyai/wasm-worklet"
)

// Range is a half-open byte range [Offset, Offset+Length).
type Range struct {
	Offset uint32
	Length uint32
}

func (r Range) contains(offset, length uint32) bool {
	return uint64(offset) >= uint64(r.Offset) &&
		uint64(offset)+uint64(length) <= uint64(r.Offset)+uint64(r.Length)
}

// Guard wraps a Memory and records every write that falls outside the
// allowed ranges. Writes are still forwarded so the wrapped memory behaves
// normally. Views returned by Read bypass the guard.
type Guard struct {
	worklet.Memory
	allowed    []Range
	violations []Range
	written    uint64
	highest    uint32
}

// NewGuard wraps mem with an empty allow list.
func NewGuard(mem worklet.Memory) *Guard {
	return &Guard{Memory: mem}
}

// Allow adds an allowed write range.
func (g *Guard) Allow(offset, length uint32) {
	g.allowed = append(g.allowed, Range{Offset: offset, Length: length})
}

// Clear removes all allowed ranges and recorded writes.
func (g *Guard) Clear() {
	g.allowed = g.allowed[:0]
	g.violations = g.violations[:0]
	g.written = 0
	g.highest = 0
}

// Violations returns writes that hit no allowed range.
func (g *Guard) Violations() []Range {
	return g.violations
}

// Written returns the total number of bytes written through the guard.
func (g *Guard) Written() uint64 {
	return g.written
}

// Highest returns one past the highest byte written.
func (g *Guard) Highest() uint32 {
	return g.highest
}

func (g *Guard) record(offset, length uint32) {
	g.written += uint64(length)
	if end := offset + length; end > g.highest {
		g.highest = end
	}
	for _, r := range g.allowed {
		if r.contains(offset, length) {
			return
		}
	}
	g.violations = append(g.violations, Range{Offset: offset, Length: length})
}

func (g *Guard) Write(offset uint32, data []byte) error {
	g.record(offset, uint32(len(data)))
	return g.Memory.Write(offset, data)
}

func (g *Guard) WriteU32(offset uint32, value uint32) error {
	g.record(offset, 4)
	return g.Memory.WriteU32(offset, value)
}

func (g *Guard) WriteF32(offset uint32, value float32) error {
	g.record(offset, 4)
	return g.Memory.WriteF32(offset, value)
}

func (g *Guard) WriteFloats(offset uint32, src []float32) error {
	g.record(offset, uint32(len(src))*4)
	return g.Memory.WriteFloats(offset, src)
}
