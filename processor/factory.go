package processor

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/layout"
)

// Factory creates processing units of one type. It is registered once at
// setup and shared by every unit of that type.
type Factory struct {
	Name    string
	Params  ParamSet
	Context Context
	Config  Config
}

// Validate checks the factory is usable.
func (f *Factory) Validate() error {
	if f.Name == "" {
		return errors.InvalidInput(errors.PhaseSetup, []string{"processor-type"}, "processor type name is empty")
	}
	if f.Context.FramesPerBlock == 0 {
		return errors.InvalidInput(errors.PhaseSetup, []string{"frames-per-block"}, "block size is zero")
	}
	if f.Context.Entry == nil {
		return errors.NotInitialized(errors.PhaseSetup, "entry point")
	}
	if _, err := NewParamSet(f.Params...); err != nil {
		return err
	}
	return nil
}

// ArenaSize returns the scratch bytes a unit with the given channel layout
// needs: Config.ArenaBytes when set, otherwise the region size with every
// parameter carrying a full block.
func (f *Factory) ArenaSize(inputs, outputs []uint32) (uint32, error) {
	if f.Config.ArenaBytes > 0 {
		return f.Config.ArenaBytes, nil
	}
	return layout.MaxSize(f.Context.FramesPerBlock, inputs, outputs, len(f.Params))
}

// New creates a unit that encodes into mem using a.
func (f *Factory) New(mem worklet.Memory, a worklet.Arena) *Processor {
	Logger().Debug("processor created",
		zap.String("type", f.Name),
		zap.Uint32("frames", f.Context.FramesPerBlock),
		zap.Int("params", len(f.Params)))
	return New(f.Name, f.Params, f.Context, mem, a, f.Config)
}

// Registry maps processor type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Factory)}
}

// Register validates f and adds it. Registering a name twice is a
// configuration error.
func (r *Registry) Register(f *Factory) error {
	if err := f.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[f.Name]; exists {
		return errors.Duplicate(errors.PhaseSetup, "processor type", f.Name)
	}
	r.factories[f.Name] = f

	Logger().Info("processor type registered",
		zap.String("type", f.Name),
		zap.Strings("params", f.Params.Names()),
		zap.Uint32("frames", f.Context.FramesPerBlock))
	return nil
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
