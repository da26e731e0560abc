// Package engine loads signal processing engines compiled to WebAssembly
// and exposes their entry points by stable integer handle.
//
// # Loading
//
//	eng, err := engine.New(ctx, &engine.Config{MemoryLimitPages: 1024})
//	mod, err := eng.Load(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx)
//
// Instantiate links the emscripten env imports the module declares (abort,
// emscripten_resize_heap, emscripten_notify_memory_growth, memcpy) and WASI
// preview1 when imported.
//
// # Function Table
//
// Setup messages refer to functions by handle. Table.Resolve returns an
// explicitly bound function, or calls through the module's
// dynCall_<sig> trampoline with the handle as indirect table index:
//
//	process, err := inst.Table().Resolve(handle, engine.ProcessSignature)
//
// # Signatures
//
// Entry point types are written in WIT and lowered to core wasm types before
// an export or trampoline is accepted:
//
//	process: func(num-inputs: u32, inputs: u32, num-outputs: u32,
//	              outputs: u32, num-params: u32, params: u32,
//	              user-data: u32) -> bool
//	ack:     func(channels: u32, ready: u32, user-data: u32)
//
// # Arenas
//
// Instance.Arena reserves a host-owned region (through the engine's malloc
// when exported) for an arena.Linear. Instance.StackArena allocates from the
// engine's shadow stack like emscripten glue code does.
package engine
