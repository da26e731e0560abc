package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/bootstrap"
	"github.com/wippyai/wasm-worklet/engine"
	"github.com/wippyai/wasm-worklet/processor"
	"github.com/wippyai/wasm-worklet/render"
)

// session is a configured engine with one processing unit, ready to render
// the input file any number of times.
type session struct {
	opts     options
	log      *zap.Logger
	eng      *engine.Engine
	inst     *engine.Instance
	boot     *bootstrap.Bootstrap
	proc     *processor.Processor
	outCh    int
	stopBoot context.CancelFunc
	served   chan struct{}
}

func newSession(ctx context.Context, opts options, log *zap.Logger) (*session, error) {
	src, err := render.Open(opts.in)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	inCh := src.Channels()
	src.Close()

	data, err := os.ReadFile(opts.wasm)
	if err != nil {
		return nil, fmt.Errorf("read engine: %w", err)
	}

	eng, err := engine.New(ctx, &engine.Config{
		Logger:           log.Named("engine"),
		MemoryLimitPages: uint32(opts.memLimit),
		EnableWASI:       opts.wasi,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	s := &session{opts: opts, log: log, eng: eng, served: make(chan struct{})}

	mod, err := eng.Load(ctx, data)
	if err != nil {
		eng.Close(ctx)
		return nil, fmt.Errorf("load engine: %w", err)
	}
	if s.inst, err = mod.Instantiate(ctx); err != nil {
		eng.Close(ctx)
		return nil, fmt.Errorf("instantiate engine: %w", err)
	}
	if opts.export != "" {
		if err := s.inst.Table().BindExport(uint32(opts.entry), opts.export, engine.ProcessSignature); err != nil {
			eng.Close(ctx)
			return nil, fmt.Errorf("bind %s: %w", opts.export, err)
		}
	}

	silence := processor.SilenceUntouched
	if opts.zeroSilence {
		silence = processor.SilenceZero
	}
	workletPort, mainPort := bootstrap.NewPortPair(4)
	s.boot = bootstrap.New(s.inst, workletPort, bootstrap.Options{
		SilenceMode: silence,
		ArenaBytes:  uint32(opts.arena),
		UseStack:    opts.useStack,
	})
	bootCtx, stopBoot := context.WithCancel(ctx)
	s.stopBoot = stopBoot
	go func() {
		defer close(s.served)
		s.boot.Serve(bootCtx)
	}()

	table := s.inst.Table()
	if !opts.engineAck {
		table = engine.NewTable()
		table.Bind(uint32(opts.ack), worklet.EntryFunc(func(_ context.Context, stack []uint64) error {
			log.Info("engine acknowledged setup",
				zap.Uint64("channels", stack[0]),
				zap.Uint64("ready", stack[1]),
				zap.Uint64("user-data", stack[2]))
			return nil
		}))
	}
	ctl := bootstrap.NewController(mainPort, table)

	hint := uint32(opts.channels)
	if hint == 0 {
		hint = uint32(inCh)
	}
	s.outCh = int(hint)

	err = ctl.Setup(ctx, bootstrap.SetupMessage{
		ProcessorType:  opts.typeName,
		Params:         processor.ParamSet(opts.defs),
		EntryPoint:     uint32(opts.entry),
		UserData:       uint32(opts.userData),
		ChannelHint:    hint,
		AckCallback:    uint32(opts.ack),
		FramesPerBlock: uint32(opts.block),
	})
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("setup: %w", err)
	}

	if s.proc, err = s.boot.NewProcessorWithLayout(ctx, opts.typeName, []uint32{uint32(inCh)}, []uint32{hint}); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("create processor: %w", err)
	}
	return s, nil
}

// Params returns the processing unit's parameter set.
func (s *session) Params() processor.ParamSet {
	return s.proc.Params()
}

// Render processes the input file into the output file with the given
// parameter values.
func (s *session) Render(ctx context.Context, values map[string]float32, onProgress func(render.Progress)) (render.Result, error) {
	params := make(map[string][]float32, len(values))
	for name, v := range values {
		if s.proc.Params().Index(name) < 0 {
			return render.Result{}, fmt.Errorf("unknown parameter %q", name)
		}
		params[name] = []float32{v}
	}

	src, err := render.Open(s.opts.in)
	if err != nil {
		return render.Result{}, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	f, err := os.Create(s.opts.out)
	if err != nil {
		return render.Result{}, fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	sink := render.NewWavSink(f, src.SampleRate(), s.outCh)
	r := &render.Renderer{
		Processor:      s.proc,
		OutputChannels: s.outCh,
		Params:         params,
		Latency:        s.opts.latency,
		OnProgress:     onProgress,
	}
	res, err := r.Render(ctx, src, sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	return res, err
}

// Close stops the bootstrap loop and releases the engine.
func (s *session) Close(ctx context.Context) {
	s.stopBoot()
	<-s.served
	if s.inst != nil {
		s.inst.Close(ctx)
	}
	s.eng.Close(ctx)
}
