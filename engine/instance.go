package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/arena"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/memory"
)

// Heap allocator export used to reserve arena regions.
const mallocExport = "malloc"

var mallocSignature = MustParseSignature(mallocExport, "size: u32", "u32")

// Instance is an instantiated engine module.
type Instance struct {
	engine   *Engine
	module   api.Module
	mem      *memory.Wrapper
	table    *Table
	stackBuf []uint64
}

func newInstance(e *Engine, mod api.Module) *Instance {
	inst := &Instance{
		engine:   e,
		module:   mod,
		mem:      memory.Wrap(mod.Memory()),
		stackBuf: make([]uint64, 4),
	}
	inst.table = newInstanceTable(inst)
	return inst
}

// Memory returns the instance's linear memory, or nil if it has none.
func (i *Instance) Memory() worklet.Memory {
	if i.mem == nil {
		return nil
	}
	return i.mem
}

// MemorySize returns the current memory size in bytes.
func (i *Instance) MemorySize() uint32 {
	if i.mem == nil {
		return 0
	}
	return i.mem.Size()
}

// Module returns the wazero module.
func (i *Instance) Module() api.Module {
	return i.module
}

// Table returns the instance's function handle table.
func (i *Instance) Table() *Table {
	return i.table
}

// Export returns the exported function name after checking it lowers from
// sig.
func (i *Instance) Export(name string, sig Signature) (worklet.EntryPoint, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseSetup, "export", name)
	}
	if err := sig.Check(fn.Definition()); err != nil {
		return nil, err
	}
	return fn, nil
}

// dynCall resolves an indirect function table index through the
// dynCall_<sig> trampoline export.
func (i *Instance) dynCall(index uint32, sig Signature) (worklet.EntryPoint, error) {
	name, err := sig.DynCall()
	if err != nil {
		return nil, err
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseSetup, "function table trampoline", name)
	}

	params, results, _ := sig.Core()
	def := fn.Definition()
	want := append([]api.ValueType{api.ValueTypeI32}, params...)
	if !sameTypes(want, def.ParamTypes()) || !sameTypes(results, def.ResultTypes()) {
		return nil, errors.SignatureMismatch(name, sig.String(), coreString(def.ParamTypes(), def.ResultTypes()))
	}

	return &dynEntry{
		fn:      fn,
		index:   uint64(index),
		params:  len(params),
		results: len(results),
		buf:     make([]uint64, max(len(params)+1, len(results))),
	}, nil
}

// Reserve sets aside capacity bytes of linear memory for a host arena and
// returns its base. The engine's malloc is used when exported. Otherwise
// memory grows by whole pages and the new pages are returned, which is only
// safe for engines that do not manage a heap of their own.
func (i *Instance) Reserve(ctx context.Context, capacity uint32) (uint32, error) {
	if i.mem == nil {
		return 0, errors.NotInitialized(errors.PhaseArena, "instance memory")
	}
	capacity = (capacity + arena.Align - 1) &^ (arena.Align - 1)

	if fn := i.module.ExportedFunction(mallocExport); fn != nil && mallocSignature.Check(fn.Definition()) == nil {
		i.stackBuf[0] = uint64(capacity)
		if err := fn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
			return 0, errors.AllocationFailed(errors.PhaseArena, capacity, err)
		}
		ptr := uint32(i.stackBuf[0])
		if ptr == 0 {
			return 0, errors.AllocationFailed(errors.PhaseArena, capacity, nil)
		}
		i.engine.log.Debug("arena reserved", zap.String("via", mallocExport),
			zap.Uint32("base", ptr), zap.Uint32("bytes", capacity))
		return ptr, nil
	}

	pages := (uint64(capacity) + memory.PageSize - 1) / memory.PageSize
	prev, ok := i.mem.Grow(uint32(pages))
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseArena, capacity, nil)
	}
	base := prev * memory.PageSize
	i.engine.log.Debug("arena reserved", zap.String("via", "memory.grow"),
		zap.Uint32("base", base), zap.Uint32("bytes", capacity))
	return base, nil
}

// Arena reserves capacity bytes and returns a linear arena over them.
func (i *Instance) Arena(ctx context.Context, capacity uint32) (*arena.Linear, error) {
	base, err := i.Reserve(ctx, capacity)
	if err != nil {
		return nil, err
	}
	return arena.NewLinear(i.mem, base, capacity)
}

// StackArena returns an arena on the engine's shadow stack. limit is the
// lowest address the stack may reach, zero to rely on the engine's own
// overflow checks.
func (i *Instance) StackArena(ctx context.Context, limit uint32) (*arena.Stack, error) {
	var fns arena.StackFuncs
	var err error
	if fns.Save, err = i.Export(arena.SaveExport, MustParseSignature(arena.SaveExport, "", "u32")); err != nil {
		return nil, err
	}
	if fns.Alloc, err = i.Export(arena.AllocExport, MustParseSignature(arena.AllocExport, "size: u32", "u32")); err != nil {
		return nil, err
	}
	if fns.Restore, err = i.Export(arena.RestoreExport, MustParseSignature(arena.RestoreExport, "sp: u32", "")); err != nil {
		return nil, err
	}
	return arena.NewStack(ctx, fns, limit)
}

// HasStack reports whether the engine exports the shadow stack helpers.
func (i *Instance) HasStack() bool {
	return i.module.ExportedFunction(arena.SaveExport) != nil &&
		i.module.ExportedFunction(arena.AllocExport) != nil &&
		i.module.ExportedFunction(arena.RestoreExport) != nil
}

// Close closes the instance.
func (i *Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	i.mem = nil
	return err
}
