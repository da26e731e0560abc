package processor

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/layout"
)

// SilenceMode selects what happens to host output buffers when a block
// produces no audio.
type SilenceMode uint8

const (
	// SilenceUntouched leaves output buffers exactly as passed in.
	SilenceUntouched SilenceMode = iota
	// SilenceZero clears output buffers.
	SilenceZero
)

// Config holds per-unit options.
type Config struct {
	SilenceMode SilenceMode

	// ArenaBytes overrides the scratch size computed from the channel
	// layout and parameter set. Zero computes it.
	ArenaBytes uint32
}

// Context is established once at setup and never changes afterwards.
type Context struct {
	Entry          worklet.EntryPoint
	UserData       uint32
	FramesPerBlock uint32
}

// Stats are counters for a processing unit. They are updated on the audio
// path with atomics and can be read from any goroutine.
type Stats struct {
	Blocks         uint64
	Produced       uint64
	Silent         uint64
	Errors         uint64
	ArenaExhausted uint64
	// ArenaHighWater is the arena's peak usage as of the last finished
	// block.
	ArenaHighWater uint32
	LastError      error
}

type errBox struct{ err error }

// highWater is implemented by arenas that track peak usage.
type highWater interface {
	HighWater() uint32
}

// contextual is implemented by arenas that call into the engine.
type contextual interface {
	UseContext(ctx context.Context)
}

// Processor is one processing unit. Process must not be called
// concurrently.
type Processor struct {
	name   string
	params ParamSet
	pctx   Context
	cfg    Config
	mem    worklet.Memory
	arena  worklet.Arena
	hw     highWater
	actx   contextual

	stack   []uint64
	staged  [][]float32
	encoded [][]float32

	blocks    atomic.Uint64
	produced  atomic.Uint64
	silent    atomic.Uint64
	failed    atomic.Uint64
	exhausted atomic.Uint64
	peak      atomic.Uint32
	lastErr   atomic.Pointer[errBox]
}

// New creates a processing unit. A zero Context or nil memory or arena
// yields a unit that produces no audio and never calls an engine.
func New(name string, params ParamSet, pctx Context, mem worklet.Memory, a worklet.Arena, cfg Config) *Processor {
	p := &Processor{
		name:    name,
		params:  params,
		pctx:    pctx,
		cfg:     cfg,
		mem:     mem,
		arena:   a,
		stack:   make([]uint64, 7),
		staged:  make([][]float32, len(params)),
		encoded: make([][]float32, len(params)),
	}
	p.hw, _ = a.(highWater)
	p.actx, _ = a.(contextual)
	frames := max(pctx.FramesPerBlock, 1)
	for i, d := range params {
		p.staged[i] = make([]float32, frames)
		p.staged[i][0] = d.Default
	}
	return p
}

// Name returns the processor type name.
func (p *Processor) Name() string { return p.name }

// Params returns the parameter descriptor set.
func (p *Processor) Params() ParamSet { return p.params }

// Context returns the processing context.
func (p *Processor) Context() Context { return p.pctx }

// Ready reports whether the unit has an entry point and scratch memory.
func (p *Processor) Ready() bool {
	return p.pctx.Entry != nil && p.mem != nil && p.arena != nil
}

// Process runs one block: encode inputs, outputs and params into scratch
// memory, call the entry point, and copy produced output back. It returns
// whether the engine produced audio. Failures never escape; they yield no
// audio and are counted in Stats.
//
// params maps parameter names to either one value or FramesPerBlock
// values. Missing parameters use their default and every value is clamped
// to its range.
func (p *Processor) Process(ctx context.Context, inputs, outputs [][][]float32, params map[string][]float32) bool {
	p.blocks.Add(1)
	if !p.Ready() {
		return p.noAudio(outputs)
	}

	if err := p.stage(params); err != nil {
		return p.fail(outputs, err)
	}

	if p.actx != nil {
		p.actx.UseContext(ctx)
	}
	m := p.arena.Mark()
	produced, err := p.run(ctx, inputs, outputs)
	if rerr := p.arena.Reset(m); rerr != nil && err == nil {
		err = rerr
	}
	if p.hw != nil {
		// arena counters are plain fields; publish the peak for Stats
		p.peak.Store(p.hw.HighWater())
	}
	if err != nil {
		return p.fail(outputs, err)
	}
	if !produced {
		return p.noAudio(outputs)
	}
	p.produced.Add(1)
	return true
}

func (p *Processor) run(ctx context.Context, inputs, outputs [][][]float32) (bool, error) {
	frames := p.pctx.FramesPerBlock
	f, err := layout.Encode(p.mem, p.arena, frames, inputs, outputs, p.encoded)
	if err != nil {
		return false, err
	}

	f.Args(p.stack, p.pctx.UserData)
	if err := p.pctx.Entry.CallWithStack(ctx, p.stack); err != nil {
		return false, errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, err, "entry point trapped")
	}
	if uint32(p.stack[0]) == 0 {
		return false, nil
	}

	if err := layout.Decode(p.mem, f, frames, outputs); err != nil {
		return false, err
	}
	return true, nil
}

// stage copies parameter values into preallocated buffers, clamped, in
// descriptor order.
func (p *Processor) stage(params map[string][]float32) error {
	frames := int(p.pctx.FramesPerBlock)
	for i, d := range p.params {
		buf := p.staged[i]
		v := params[d.Name]
		switch {
		case len(v) == 0:
			buf[0] = d.Default
			p.encoded[i] = buf[:1]
		case len(v) == 1 || d.Rate == KRate:
			buf[0] = d.Clamp(v[0])
			p.encoded[i] = buf[:1]
		case len(v) == frames:
			for j, x := range v {
				buf[j] = d.Clamp(x)
			}
			p.encoded[i] = buf[:frames]
		default:
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path("params", d.Name).
				Detail("%d values, want 1 or %d", len(v), frames).
				Build()
		}
	}
	return nil
}

func (p *Processor) noAudio(outputs [][][]float32) bool {
	p.silent.Add(1)
	if p.cfg.SilenceMode == SilenceZero {
		for _, g := range outputs {
			for _, ch := range g {
				clear(ch)
			}
		}
	}
	return false
}

func (p *Processor) fail(outputs [][][]float32, err error) bool {
	p.failed.Add(1)
	if stderrors.Is(err, errors.ErrArenaExhausted) {
		p.exhausted.Add(1)
	}
	p.lastErr.Store(&errBox{err: err})
	return p.noAudio(outputs)
}

// Stats returns a snapshot of the unit's counters.
func (p *Processor) Stats() Stats {
	s := Stats{
		Blocks:         p.blocks.Load(),
		Produced:       p.produced.Load(),
		Silent:         p.silent.Load(),
		Errors:         p.failed.Load(),
		ArenaExhausted: p.exhausted.Load(),
	}
	if b := p.lastErr.Load(); b != nil {
		s.LastError = b.err
	}
	s.ArenaHighWater = p.peak.Load()
	return s
}
