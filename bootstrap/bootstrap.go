package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/engine"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/processor"
)

// State is the lifecycle position of a Bootstrap.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Options configure processors created after setup.
type Options struct {
	SilenceMode processor.SilenceMode

	// ArenaBytes fixes the scratch size of every unit. Zero sizes it from
	// the channel layout and parameter set.
	ArenaBytes uint32

	// UseStack allocates scratch on the engine's shadow stack when the
	// engine exports the stack helpers. StackLimit is passed through.
	UseStack   bool
	StackLimit uint32
}

const errorBuffer = 16

// Bootstrap is the worklet side of the setup handshake. It owns the
// processor registry for one engine instance.
type Bootstrap struct {
	inst     *engine.Instance
	port     *Port
	opts     Options
	registry *processor.Registry
	state    atomic.Int32
	errs     chan error

	mu      sync.Mutex
	hints   map[string]uint32
	failure error
}

// New creates a Bootstrap serving inst over port.
func New(inst *engine.Instance, port *Port, opts Options) *Bootstrap {
	return &Bootstrap{
		inst:     inst,
		port:     port,
		opts:     opts,
		registry: processor.NewRegistry(),
		errs:     make(chan error, errorBuffer),
		hints:    make(map[string]uint32),
	}
}

// State returns the current lifecycle state.
func (b *Bootstrap) State() State {
	return State(b.state.Load())
}

// Registry returns the processor registry.
func (b *Bootstrap) Registry() *processor.Registry {
	return b.registry
}

// Errors delivers setup and callback failures. Errors are dropped when the
// channel is full.
func (b *Bootstrap) Errors() <-chan error {
	return b.errs
}

// Failure returns the error that moved the unit to StateFailed.
func (b *Bootstrap) Failure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

// Serve handles messages until ctx is done or the peer closes the port.
// Failures are reported on Errors and do not stop the loop.
func (b *Bootstrap) Serve(ctx context.Context) error {
	for {
		msg, err := b.port.Receive(ctx)
		if err != nil {
			if stderrors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		_ = b.Handle(ctx, msg)
	}
}

// Handle processes one inbound message.
func (b *Bootstrap) Handle(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case SetupMessage:
		return b.setup(ctx, m)
	case CallbackMessage:
		if err := invoke(ctx, b.inst.Table(), m); err != nil {
			b.report(err)
			return err
		}
		return nil
	default:
		err := errors.Protocol(fmt.Sprintf("unexpected %T on worklet port", msg))
		b.report(err)
		return err
	}
}

func (b *Bootstrap) setup(ctx context.Context, m SetupMessage) error {
	// Ready and Failed are terminal. A stray setup is refused on its own
	// and leaves the registered type usable.
	if st := b.State(); st != StateUninitialized {
		return b.reject(ctx, m, errors.Protocol(
			fmt.Sprintf("setup for %q received while %s", m.ProcessorType, st)))
	}

	entry, err := b.inst.Table().Resolve(m.EntryPoint, engine.ProcessSignature)
	if err != nil {
		return b.setupFailed(ctx, m, errors.Configuration("resolve entry point "+strconv.FormatUint(uint64(m.EntryPoint), 10), err))
	}

	f := &processor.Factory{
		Name:   m.ProcessorType,
		Params: m.Params,
		Context: processor.Context{
			Entry:          entry,
			UserData:       m.UserData,
			FramesPerBlock: m.FramesPerBlock,
		},
		Config: processor.Config{
			SilenceMode: b.opts.SilenceMode,
			ArenaBytes:  b.opts.ArenaBytes,
		},
	}
	if err := b.registry.Register(f); err != nil {
		return b.setupFailed(ctx, m, errors.Configuration("register processor type", err))
	}

	b.mu.Lock()
	b.hints[m.ProcessorType] = max(m.ChannelHint, 1)
	b.mu.Unlock()
	b.state.Store(int32(StateReady))

	Logger().Info("processor ready",
		zap.String("type", m.ProcessorType),
		zap.Uint32("entry", m.EntryPoint),
		zap.Uint32("channels", m.ChannelHint),
		zap.Uint32("frames", m.FramesPerBlock))

	ack := CallbackMessage{
		Callback: m.AckCallback,
		Args:     []uint64{uint64(m.ChannelHint), 1, uint64(m.UserData)},
	}
	if err := b.port.Post(ctx, ack); err != nil {
		err = errors.Wrap(errors.PhaseSetup, errors.KindProtocol, err, "post acknowledgment")
		b.report(err)
		return err
	}
	return nil
}

func (b *Bootstrap) setupFailed(ctx context.Context, m SetupMessage, err error) error {
	b.mu.Lock()
	if b.failure == nil {
		b.failure = err
	}
	b.mu.Unlock()
	b.state.Store(int32(StateFailed))
	return b.reject(ctx, m, err)
}

// reject reports err and answers the offending setup with a FailureMessage.
func (b *Bootstrap) reject(ctx context.Context, m SetupMessage, err error) error {
	b.report(err)
	if perr := b.port.Post(ctx, FailureMessage{ProcessorType: m.ProcessorType, Err: err}); perr != nil {
		Logger().Warn("failure not delivered", zap.String("type", m.ProcessorType), zap.Error(perr))
	}
	return err
}

func (b *Bootstrap) report(err error) {
	Logger().Error("bootstrap", zap.Error(err))
	select {
	case b.errs <- err:
	default:
	}
}

// NewProcessor creates a unit of the registered type with one input and
// one output group of the setup's channel hint. See NewProcessorWithLayout.
func (b *Bootstrap) NewProcessor(ctx context.Context, typeName string) (*processor.Processor, error) {
	return b.NewProcessorWithLayout(ctx, typeName, nil, nil)
}

// NewProcessorWithLayout creates a unit whose scratch is sized for the
// given channel counts per input and output group. Nil counts default to
// one group of the channel hint.
//
// The returned processor is always usable. Before setup completes, after a
// failed setup, or when scratch cannot be reserved, it is an unconfigured
// unit that produces no audio, and the error says why.
func (b *Bootstrap) NewProcessorWithLayout(ctx context.Context, typeName string, inputs, outputs []uint32) (*processor.Processor, error) {
	silent := func(err error) (*processor.Processor, error) {
		return processor.New(typeName, nil, processor.Context{}, nil, nil,
			processor.Config{SilenceMode: b.opts.SilenceMode}), err
	}

	switch b.State() {
	case StateUninitialized:
		return silent(errors.NotInitialized(errors.PhaseSetup, "processor type "+typeName))
	case StateFailed:
		return silent(b.Failure())
	}

	f, ok := b.registry.Lookup(typeName)
	if !ok {
		return silent(errors.NotFound(errors.PhaseSetup, "processor type", typeName))
	}

	b.mu.Lock()
	hint := b.hints[typeName]
	b.mu.Unlock()
	if inputs == nil {
		inputs = []uint32{hint}
	}
	if outputs == nil {
		outputs = []uint32{hint}
	}

	a, err := b.arena(ctx, f, inputs, outputs)
	if err != nil {
		return silent(err)
	}
	return f.New(b.inst.Memory(), a), nil
}

func (b *Bootstrap) arena(ctx context.Context, f *processor.Factory, inputs, outputs []uint32) (worklet.Arena, error) {
	if b.opts.UseStack && b.inst.HasStack() {
		s, err := b.inst.StackArena(ctx, b.opts.StackLimit)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	size, err := f.ArenaSize(inputs, outputs)
	if err != nil {
		return nil, err
	}
	l, err := b.inst.Arena(ctx, size)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// callbackSignature is the core type of a callback taking n u32 arguments.
func callbackSignature(n int) engine.Signature {
	params := make([]wit.Type, n)
	for i := range params {
		params[i] = wit.U32{}
	}
	return engine.Signature{Name: "callback", Params: params}
}

// invoke resolves m.Callback in table and calls it with m.Args.
func invoke(ctx context.Context, table *engine.Table, m CallbackMessage) error {
	for i, arg := range m.Args {
		if arg > math.MaxUint32 {
			return errors.InvalidInput(errors.PhaseSetup, []string{"args", strconv.Itoa(i)},
				"callback argument does not fit u32")
		}
	}
	fn, err := table.Resolve(m.Callback, callbackSignature(len(m.Args)))
	if err != nil {
		return err
	}
	stack := make([]uint64, len(m.Args))
	copy(stack, m.Args)
	if err := fn.CallWithStack(ctx, stack); err != nil {
		return errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, err,
			"callback "+strconv.FormatUint(uint64(m.Callback), 10)+" trapped")
	}
	return nil
}
