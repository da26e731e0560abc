package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-worklet/bootstrap"
	"github.com/wippyai/wasm-worklet/engine"
	"github.com/wippyai/wasm-worklet/processor"
	"github.com/wippyai/wasm-worklet/render"
)

// paramDefs collects -param-def name=min:max:default[:k] flags.
type paramDefs []processor.ParamDescriptor

func (p *paramDefs) String() string {
	names := make([]string, len(*p))
	for i, d := range *p {
		names[i] = d.Name
	}
	return strings.Join(names, ",")
}

func (p *paramDefs) Set(s string) error {
	name, body, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=min:max:default[:k], got %q", s)
	}
	parts := strings.Split(body, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return fmt.Errorf("want name=min:max:default[:k], got %q", s)
	}
	var vals [3]float32
	for i := range vals {
		v, err := strconv.ParseFloat(parts[i], 32)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		vals[i] = float32(v)
	}
	d := processor.ParamDescriptor{Name: name, Min: vals[0], Max: vals[1], Default: vals[2]}
	if len(parts) == 4 {
		switch parts[3] {
		case "k":
			d.Rate = processor.KRate
		case "a":
			d.Rate = processor.ARate
		default:
			return fmt.Errorf("param %s: rate must be a or k", name)
		}
	}
	*p = append(*p, d)
	return nil
}

// paramValues collects -param name=value flags.
type paramValues map[string]float32

func (p paramValues) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (p paramValues) Set(s string) error {
	name, val, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return fmt.Errorf("param %s: %w", name, err)
	}
	p[name] = float32(v)
	return nil
}

type options struct {
	wasm        string
	in          string
	out         string
	typeName    string
	export      string
	entry       uint
	ack         uint
	engineAck   bool
	block       uint
	channels    uint
	userData    uint
	arena       uint
	latency     int
	zeroSilence bool
	useStack    bool
	wasi        bool
	memLimit    uint
	verbose     bool
	defs        paramDefs
	values      paramValues
}

func (o options) validate() error {
	if o.latency < 0 {
		return fmt.Errorf("-latency must not be negative, got %d", o.latency)
	}
	if o.block == 0 {
		return fmt.Errorf("-block must be positive")
	}
	return nil
}

func main() {
	opts := options{values: paramValues{}}
	flag.StringVar(&opts.wasm, "wasm", "", "Path to engine wasm module")
	flag.StringVar(&opts.in, "in", "", "Input audio file (wav, mp3, ogg)")
	flag.StringVar(&opts.out, "out", "", "Output wav file")
	flag.StringVar(&opts.typeName, "type", "processor", "Processor type name")
	flag.StringVar(&opts.export, "export", "", "Bind this exported function to the entry handle")
	flag.UintVar(&opts.entry, "entry", 0, "Function table handle of the processing entry point")
	flag.UintVar(&opts.ack, "ack", 0, "Function table handle of the acknowledgment callback")
	flag.BoolVar(&opts.engineAck, "engine-ack", false, "Dispatch the acknowledgment through the engine's table")
	flag.UintVar(&opts.block, "block", 128, "Frames per block")
	flag.UintVar(&opts.channels, "channels", 0, "Channel count hint (default: input channels)")
	flag.UintVar(&opts.userData, "user-data", 0, "User context handle passed to the entry point")
	flag.UintVar(&opts.arena, "arena", 0, "Scratch arena bytes (default: computed)")
	flag.IntVar(&opts.latency, "latency", 0, "Engine latency in frames to compensate")
	flag.BoolVar(&opts.zeroSilence, "zero-silence", false, "Zero outputs when the engine produces no audio")
	flag.BoolVar(&opts.useStack, "stack", false, "Allocate scratch on the engine's shadow stack")
	flag.BoolVar(&opts.wasi, "wasi", false, "Always instantiate WASI preview1")
	flag.UintVar(&opts.memLimit, "mem-pages", 0, "Engine memory limit in 64KiB pages")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Var(&opts.defs, "param-def", "Parameter descriptor name=min:max:default[:k] (repeatable)")
	flag.Var(opts.values, "param", "Parameter value name=value (repeatable)")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.wasm == "" || opts.in == "" || opts.out == "" {
		fmt.Fprintln(os.Stderr, "Usage: worklet -wasm <engine.wasm> -in <input> -out <output.wav> [-entry n] [-param-def gain=0:2:1] [-param gain=0.5]")
		fmt.Fprintln(os.Stderr, "       worklet -wasm <engine.wasm> -in <input> -out <output.wav> -i  (interactive mode)")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *interactive {
		if err := runInteractive(ctx, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(ctx, opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setLoggers(log *zap.Logger) {
	engine.SetLogger(log.Named("engine"))
	bootstrap.SetLogger(log.Named("bootstrap"))
	processor.SetLogger(log.Named("processor"))
}

func run(ctx context.Context, opts options, log *zap.Logger) error {
	setLoggers(log)

	s, err := newSession(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	fmt.Printf("Engine: %s\n", opts.wasm)
	fmt.Printf("Processor: %s (%d frames, %d params)\n", opts.typeName, opts.block, len(opts.defs))

	res, err := s.Render(ctx, opts.values, func(p render.Progress) {
		if p.Blocks%64 == 0 {
			fmt.Print(".")
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}

	st := s.proc.Stats()
	fmt.Printf("Rendered %d frames in %d blocks to %s\n", res.Frames, res.Blocks, opts.out)
	fmt.Printf("Produced: %d  Silent: %d  Errors: %d  Arena exhausted: %d  Arena peak: %d bytes\n",
		st.Produced, st.Silent, st.Errors, st.ArenaExhausted, st.ArenaHighWater)
	for c, p := range res.Peaks {
		fmt.Printf("  ch%d peak %.3f\n", c, p)
	}
	if st.LastError != nil {
		log.Warn("last processing error", zap.Error(st.LastError))
	}
	return nil
}
