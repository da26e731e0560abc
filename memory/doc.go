// Package memory provides Memory implementations for the flat region.
//
// # wazero Wrapper
//
// Wraps a wazero api.Memory:
//
//	mem := memory.Wrap(instance.Memory())
//	// mem implements worklet.Memory
//
// # Buffer
//
// A slice-backed memory for engines implemented in Go and for tests.
// Offsets and bounds behave like wasm linear memory, including Grow in
// 64 KiB pages.
//
// # Guard
//
// Guard wraps any Memory and records writes outside a set of allowed
// ranges, which is how tests check that encoding never touches bytes beyond
// the arena allocation:
//
//	g := memory.NewGuard(mem)
//	g.Allow(ptr, size)
//	// ... encode ...
//	if len(g.Violations()) != 0 { ... }
//
// Float accessors convert through views into linear memory and do not
// allocate.
package memory
