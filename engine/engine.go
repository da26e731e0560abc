package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-worklet/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// Logger overrides the package logger for this engine.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 even when the module
	// does not import it directly.
	EnableWASI bool
}

// Engine compiles and instantiates engine modules on one wazero runtime.
type Engine struct {
	runtime      wazero.Runtime
	log          *zap.Logger
	cfg          Config
	hostMu       sync.Mutex
	env          map[string]string
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     c,
		log:     c.Logger,
	}
	if e.log == nil {
		e.log = Logger()
	}
	if c.EnableWASI {
		if err := e.InitWASI(ctx); err != nil {
			_ = e.runtime.Close(ctx)
			return nil, err
		}
	}
	return e, nil
}

// Close releases the runtime and every module instantiated on it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Load compiles an engine module.
func (e *Engine) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	e.log.Debug("module compiled",
		zap.Int("bytes", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &Module{engine: e, compiled: compiled}, nil
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}
	if e.runtime.Module(wasiModule) == nil {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			return errors.Registration(wasiModule, "*", err)
		}
	}
	e.wasiInitDone.Store(true)
	return nil
}

// Module is a compiled engine module.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Exports returns the exported function definitions by name.
func (m *Module) Exports() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate links host modules the module imports and creates a new
// instance. Reactor initializers (_initialize, __wasm_call_ctors) run before
// it returns.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	if err := m.engine.linkHost(ctx, m.compiled); err != nil {
		return nil, err
	}

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	for _, name := range []string{"_initialize", "__wasm_call_ctors"} {
		if fn := mod.ExportedFunction(name); fn != nil {
			if _, err := fn.Call(ctx); err != nil {
				_ = mod.Close(ctx)
				return nil, errors.Instantiation(err)
			}
			break
		}
	}

	inst := newInstance(m.engine, mod)
	m.engine.log.Debug("module instantiated",
		zap.Bool("memory", inst.mem != nil),
		zap.Uint32("memory_bytes", inst.MemorySize()))
	return inst, nil
}
