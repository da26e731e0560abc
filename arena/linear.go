package arena

import (
	"sync/atomic"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

// Align is the allocation granularity. Every returned offset and every
// rounded size is a multiple of it.
const Align = 4

var arenaIDs atomic.Uint64

func nextID() uint64 {
	return arenaIDs.Add(1)
}

// alignUp rounds n up to Align. The bool is false on uint32 overflow.
func alignUp(n uint32) (uint32, bool) {
	r := (uint64(n) + Align - 1) &^ (Align - 1)
	if r > 0xFFFFFFFF {
		return 0, false
	}
	return uint32(r), true
}

// Linear is a bump allocator over a fixed host-reserved region
// [base, base+capacity) of engine memory. Mark and Reset are O(1) and the
// region never grows after construction.
type Linear struct {
	id       uint64
	base     uint32
	capacity uint32
	top      uint32
	high     uint32
}

var _ worklet.Arena = (*Linear)(nil)

// NewLinear creates an arena over [base, base+capacity) of mem. The region
// must lie inside mem and base must be 4-byte aligned.
func NewLinear(mem worklet.Memory, base, capacity uint32) (*Linear, error) {
	if base%Align != 0 {
		return nil, errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("arena base 0x%x is not %d-byte aligned", base, Align).
			Build()
	}
	if mem != nil && uint64(base)+uint64(capacity) > uint64(mem.Size()) {
		return nil, errors.OutOfBounds(errors.PhaseArena, base, capacity)
	}
	return &Linear{
		id:       nextID(),
		base:     base,
		capacity: capacity &^ (Align - 1),
	}, nil
}

// Mark returns a checkpoint of the current top.
func (a *Linear) Mark() worklet.Mark {
	return worklet.Mark{Top: a.top, Owner: a.id}
}

// Alloc returns the offset of size bytes, rounded up to Align.
func (a *Linear) Alloc(size uint32) (uint32, error) {
	n, ok := alignUp(size)
	if !ok || n > a.capacity-a.top {
		return 0, errors.ArenaExhausted(size, a.capacity-a.top)
	}
	ptr := a.base + a.top
	a.top += n
	if a.top > a.high {
		a.high = a.top
	}
	return ptr, nil
}

// Reset releases everything allocated since m.
func (a *Linear) Reset(m worklet.Mark) error {
	if m.Owner != a.id {
		return errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("mark belongs to another arena").
			Build()
	}
	if m.Top > a.top {
		return errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("mark top %d is above current top %d", m.Top, a.top).
			Build()
	}
	a.top = m.Top
	return nil
}

// Base returns the first offset of the region.
func (a *Linear) Base() uint32 { return a.base }

// Capacity returns the usable size of the region in bytes.
func (a *Linear) Capacity() uint32 { return a.capacity }

// Used returns the bytes currently allocated.
func (a *Linear) Used() uint32 { return a.top }

// HighWater returns the largest Used value seen.
func (a *Linear) HighWater() uint32 { return a.high }
