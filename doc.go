// Package worklet bridges a real-time audio host to a WebAssembly signal
// processing engine that addresses all inputs, outputs and parameters as
// byte offsets into its linear memory.
//
// Every audio block is marshaled into one flat, self-describing region of
// scratch memory, the engine's processing entry point is invoked with the
// offsets of three descriptor arrays, and produced samples are copied back
// into the host's buffers. The steady-state path does not allocate.
//
// # Architecture Overview
//
//	worklet/         Root package with Memory, Arena and EntryPoint interfaces
//	├── memory/      wazero memory adapter, slice-backed Buffer, write Guard
//	├── arena/       Linear and Stack scratch allocators, Recorder
//	├── layout/      Flat region format: descriptors, sizing, encode/decode
//	├── engine/      wazero runtime, host modules, function table
//	├── processor/   Processing unit: parameters, context, Process
//	├── bootstrap/   One-time setup handshake and acknowledgment
//	├── render/      Offline host that renders audio files through a processor
//	└── errors/      Structured error types
//
// # Flat Region
//
// One region per callback, laid out as:
//
//	[input block descriptors][input samples]
//	[output block descriptors][output samples (written by engine)]
//	[param descriptors][param samples]
//
// A block descriptor is {channel_count, frames_per_channel, data_offset}
// (three u32), a param descriptor is {length, data_offset} (two u32).
// Every offset is a multiple of 4.
//
// # Quick Start
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx)
//
//	workletPort, mainPort := bootstrap.NewPortPair(4)
//	boot := bootstrap.New(inst, workletPort, bootstrap.Options{})
//	go boot.Serve(ctx)
//
//	ctl := bootstrap.NewController(mainPort, inst.Table())
//	if err := ctl.Setup(ctx, msg); err != nil {
//	    log.Fatal(err)
//	}
//
//	proc, err := boot.NewProcessor(ctx, msg.ProcessorType)
//	produced := proc.Process(ctx, inputs, outputs, params)
//
// # Thread Safety
//
// A Processor is single-threaded: the host must not call Process
// concurrently on one unit. Its Context is immutable after setup and its
// arena is owned by the callback sequence. Engine and Module are safe for
// concurrent use.
package worklet
