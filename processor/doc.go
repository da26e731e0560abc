// Package processor implements the processing unit: the per-block call
// that marshals host buffers into engine memory, invokes the entry point
// and copies produced audio back.
//
//	f := &processor.Factory{
//	    Name:    "gain",
//	    Params:  params,
//	    Context: processor.Context{Entry: entry, UserData: ud, FramesPerBlock: 128},
//	}
//	p := f.New(mem, arena)
//	produced := p.Process(ctx, inputs, outputs, map[string][]float32{"gain": {0.5}})
//
// Process never returns an error and never logs. A unit without an entry
// point, a block that fails to encode, an arena that is exhausted or an
// engine that traps all produce "no audio" and are counted in Stats. After
// a successful block the arena is back at the mark taken on entry, and the
// steady-state path does not allocate.
//
// Parameters are encoded in descriptor order. A missing parameter is sent as
// its default, a single value is sent as-is, and a full block of values is
// sent sample-accurate. Every value is clamped to the descriptor's range.
package processor
