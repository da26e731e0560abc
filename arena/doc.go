// Package arena provides scratch allocators for the flat region.
//
// All arenas follow the same discipline: take a Mark at the start of a
// callback, Alloc the exact number of bytes the callback needs, and Reset
// to the mark before returning. Reset is O(1) and releases every allocation
// made after the mark.
//
// # Linear
//
// A bump allocator over a region the host reserved once at setup. It never
// grows; a request that does not fit fails with an arena_exhausted error
// and leaves the arena unchanged.
//
//	a, err := arena.NewLinear(mem, base, capacity)
//	m := a.Mark()
//	ptr, err := a.Alloc(n)
//	// ... use [ptr, ptr+n) ...
//	a.Reset(m)
//
// # Stack
//
// Allocates from the engine's own shadow stack through its exported
// stackSave, stackAlloc and stackRestore helpers.
//
// # Recorder
//
// Wraps any arena and records request sizes and live bytes. Tests combine
// it with memory.Guard to verify that encoding asks for exactly the bytes
// it writes:
//
//	rec := arena.NewRecorder(a)
//	rec.OnAlloc = guard.Allow
package arena
