package engine

import (
	"context"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero/api"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

// Table resolves stable integer handles to callable entry points. Handles
// are what setup messages carry in place of function references.
//
// Handles bound explicitly take precedence. Otherwise, when the table
// belongs to an instance exporting an emscripten dynCall_<sig> trampoline,
// the handle is used as an index into the engine's indirect function table.
type Table struct {
	mu      sync.RWMutex
	inst    *Instance
	entries map[uint32]tableEntry
}

type tableEntry struct {
	fn  worklet.EntryPoint
	sig string
}

// NewTable creates an empty table with no instance fallback.
func NewTable() *Table {
	return &Table{entries: make(map[uint32]tableEntry)}
}

func newInstanceTable(inst *Instance) *Table {
	t := NewTable()
	t.inst = inst
	return t
}

// Bind associates handle with fn, replacing any previous binding.
func (t *Table) Bind(handle uint32, fn worklet.EntryPoint) {
	t.mu.Lock()
	t.entries[handle] = tableEntry{fn: fn}
	t.mu.Unlock()
}

// BindExport binds handle to the instance export name after checking it
// against sig.
func (t *Table) BindExport(handle uint32, name string, sig Signature) error {
	if t.inst == nil {
		return errors.NotInitialized(errors.PhaseSetup, "table instance")
	}
	fn, err := t.inst.Export(name, sig)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.entries[handle] = tableEntry{fn: fn, sig: sig.String()}
	t.mu.Unlock()
	return nil
}

// Unbind removes an explicit binding.
func (t *Table) Unbind(handle uint32) {
	t.mu.Lock()
	delete(t.entries, handle)
	t.mu.Unlock()
}

// Resolve returns the entry point for handle with signature sig.
func (t *Table) Resolve(handle uint32, sig Signature) (worklet.EntryPoint, error) {
	t.mu.RLock()
	e, ok := t.entries[handle]
	t.mu.RUnlock()
	if ok {
		if e.sig != "" && e.sig != sig.String() {
			return nil, errors.SignatureMismatch(strconv.FormatUint(uint64(handle), 10), sig.String(), e.sig)
		}
		return e.fn, nil
	}
	if t.inst != nil {
		return t.inst.dynCall(handle, sig)
	}
	return nil, errors.NotFound(errors.PhaseSetup, "function handle", strconv.FormatUint(uint64(handle), 10))
}

// dynEntry calls an indirect-table function through a dynCall trampoline,
// prepending the table index to the arguments.
type dynEntry struct {
	fn      api.Function
	index   uint64
	params  int
	results int
	buf     []uint64
}

func (d *dynEntry) CallWithStack(ctx context.Context, stack []uint64) error {
	d.buf[0] = d.index
	copy(d.buf[1:1+d.params], stack[:d.params])
	if err := d.fn.CallWithStack(ctx, d.buf); err != nil {
		return err
	}
	copy(stack[:d.results], d.buf[:d.results])
	return nil
}
