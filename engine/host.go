package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/memory"
)

const (
	envModule  = "env"
	wasiModule = "wasi_snapshot_preview1"
)

// envFuncs are the emscripten runtime imports the host provides. Each is
// exported with whatever core signature the importing module declares.
var envFuncs = map[string]func(e *Engine, params, results []api.ValueType) api.GoModuleFunc{
	"abort":                           abortFunc,
	"_abort_js":                       abortFunc,
	"emscripten_notify_memory_growth": notifyGrowthFunc,
	"emscripten_resize_heap":          resizeHeapFunc,
	"_emscripten_memcpy_js":           memcpyFunc,
	"emscripten_memcpy_js":            memcpyFunc,
}

// linkHost instantiates the env and WASI host modules compiled imports.
// The env module is shared by every instance on the runtime, so the first
// module to need it fixes its export set.
func (e *Engine) linkHost(ctx context.Context, compiled wazero.CompiledModule) error {
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		mod, name, _ := mems[0].Import()
		return errors.Registration(mod, name, errors.Unsupported(errors.PhaseHost, "imported memory"))
	}

	wantEnv := make(map[string]api.FunctionDefinition)
	needWASI := false
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		switch mod {
		case envModule:
			wantEnv[name] = def
		case wasiModule:
			needWASI = true
		}
	}

	if needWASI {
		if err := e.InitWASI(ctx); err != nil {
			return err
		}
	}
	if len(wantEnv) == 0 {
		return nil
	}

	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if e.env != nil {
		for name, def := range wantEnv {
			got, ok := e.env[name]
			if !ok {
				return errors.Registration(envModule, name,
					errors.New(errors.PhaseHost, errors.KindNotFound).
						Detail("env already instantiated without %q", name).
						Build())
			}
			if want := coreString(def.ParamTypes(), def.ResultTypes()); got != want {
				return errors.Registration(envModule, name, errors.SignatureMismatch(name, want, got))
			}
		}
		return nil
	}

	names := make([]string, 0, len(wantEnv))
	for name := range wantEnv {
		names = append(names, name)
	}
	sort.Strings(names)

	builder := e.runtime.NewHostModuleBuilder(envModule)
	exported := make(map[string]string, len(names))
	for _, name := range names {
		def := wantEnv[name]
		mk, ok := envFuncs[name]
		if !ok {
			return errors.Registration(envModule, name, errors.Unsupported(errors.PhaseHost, "unknown env import"))
		}
		params, results := def.ParamTypes(), def.ResultTypes()
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(mk(e, params, results), params, results).
			Export(name)
		exported[name] = coreString(params, results)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Registration(envModule, "*", err)
	}
	e.env = exported
	e.log.Debug("env host module instantiated", zap.Strings("functions", names))
	return nil
}

// instantiateWASI instantiates WASI preview1 as a host module.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

func abortFunc(e *Engine, _, _ []api.ValueType) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, _ []uint64) {
		e.log.Warn("engine called abort")
		panic(errors.New(errors.PhaseInvoke, errors.KindInvalidData).
			Detail("engine aborted").
			Build())
	}
}

func notifyGrowthFunc(e *Engine, _, _ []api.ValueType) api.GoModuleFunc {
	return func(_ context.Context, m api.Module, _ []uint64) {
		if mem := m.Memory(); mem != nil {
			e.log.Debug("engine memory grew", zap.Uint32("bytes", mem.Size()))
		}
	}
}

// resizeHeapFunc grows memory to at least the requested byte size and
// returns 1 on success, 0 on failure.
func resizeHeapFunc(_ *Engine, _, results []api.ValueType) api.GoModuleFunc {
	return func(_ context.Context, m api.Module, stack []uint64) {
		ok := uint64(0)
		if mem := m.Memory(); mem != nil {
			want := uint64(uint32(stack[0]))
			have := uint64(mem.Size())
			if want <= have {
				ok = 1
			} else if _, grown := mem.Grow(uint32((want - have + memory.PageSize - 1) / memory.PageSize)); grown {
				ok = 1
			}
		}
		if len(results) > 0 {
			stack[0] = ok
		}
	}
}

// memcpyFunc copies num bytes from src to dest.
func memcpyFunc(_ *Engine, _, _ []api.ValueType) api.GoModuleFunc {
	return func(_ context.Context, m api.Module, stack []uint64) {
		dest, src, num := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
		mem := m.Memory()
		from, ok1 := mem.Read(src, num)
		to, ok2 := mem.Read(dest, num)
		if !ok1 || !ok2 {
			panic(errors.OutOfBounds(errors.PhaseHost, dest, num))
		}
		copy(to, from)
	}
}
