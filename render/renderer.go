package render

import (
	"context"
	"fmt"
	"io"

	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/processor"
)

// maxEmptyReads bounds consecutive reads that return neither frames nor an
// error before a source is treated as stalled.
const maxEmptyReads = 64

// Progress is reported after every block.
type Progress struct {
	// Frames written so far and the expected total, -1 when unknown.
	Frames int64
	Total  int64

	Blocks   uint64
	Produced uint64

	// Peaks holds the absolute peak per output channel of the block just
	// written. It is reused between calls.
	Peaks []float32
}

// Result summarizes a render.
type Result struct {
	Frames   int64
	Blocks   uint64
	Produced uint64
	Peaks    []float32
}

// Renderer drives a processing unit over a decoded source, one input and
// one output group per block.
type Renderer struct {
	Processor *processor.Processor

	// FramesPerBlock defaults to the processor's block size and must match
	// it when the processor has one.
	FramesPerBlock int

	// OutputChannels defaults to the source's channel count.
	OutputChannels int

	// Params are sent with every block.
	Params map[string][]float32

	// Latency output frames are dropped from the start. The input is
	// followed by silence so the output keeps the source's length.
	Latency int

	OnProgress func(Progress)
}

func planar(channels, frames int) [][]float32 {
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	return out
}

// Render processes src into sink until the source is exhausted. The sink
// is not closed. Blocks for which the unit produces no audio are written as
// silence.
func (r *Renderer) Render(ctx context.Context, src Source, sink Sink) (Result, error) {
	if r.Processor == nil {
		return Result{}, errors.NotInitialized(errors.PhaseRender, "processor")
	}
	if r.Latency < 0 {
		return Result{}, errors.InvalidInput(errors.PhaseRender, []string{"latency"},
			fmt.Sprintf("latency %d is negative", r.Latency))
	}
	frames := r.FramesPerBlock
	unit := int(r.Processor.Context().FramesPerBlock)
	if frames == 0 {
		frames = unit
	}
	if frames <= 0 {
		return Result{}, errors.InvalidInput(errors.PhaseRender, []string{"frames-per-block"}, "block size is zero")
	}
	if unit != 0 && frames != unit {
		return Result{}, errors.InvalidInput(errors.PhaseRender, []string{"frames-per-block"},
			fmt.Sprintf("block size %d differs from the processor's %d", frames, unit))
	}
	inCh := src.Channels()
	if inCh < 1 {
		return Result{}, errors.InvalidData(errors.PhaseRender, "source without channels")
	}
	outCh := r.OutputChannels
	if outCh == 0 {
		outCh = inCh
	}

	in := planar(inCh, frames)
	out := planar(outCh, frames)
	inputs := [][][]float32{in}
	outputs := [][][]float32{out}
	window := make([][]float32, max(inCh, outCh))

	res := Result{Peaks: make([]float32, outCh)}
	prog := Progress{Total: Length(src), Peaks: make([]float32, outCh)}
	skip := r.Latency
	var consumed int64
	eof := false

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n := 0
		empty := 0
		for !eof && n < frames {
			for c := range inCh {
				window[c] = in[c][n:]
			}
			m, err := src.ReadFrames(window[:inCh])
			n += m
			if err == io.EOF {
				eof = true
				break
			}
			if err != nil {
				return res, err
			}
			if m == 0 {
				if empty++; empty > maxEmptyReads {
					return res, errors.InvalidData(errors.PhaseRender, "source returned no frames")
				}
			}
		}
		consumed += int64(n)
		if eof && n == 0 && res.Frames >= consumed {
			break
		}

		for c := range inCh {
			clear(in[c][n:])
		}
		for c := range outCh {
			clear(out[c])
		}

		res.Blocks++
		if r.Processor.Process(ctx, inputs, outputs, r.Params) {
			res.Produced++
		}

		drop := min(skip, frames)
		skip -= drop
		emit := int(min(int64(frames-drop), consumed-res.Frames))
		if emit > 0 {
			for c := range outCh {
				window[c] = out[c][drop : drop+emit]
			}
			if err := sink.WriteFrames(window[:outCh], emit); err != nil {
				return res, err
			}
			res.Frames += int64(emit)
		}

		if r.OnProgress != nil {
			for c := range outCh {
				prog.Peaks[c] = peak(out[c][drop : drop+emit])
			}
			prog.Frames, prog.Blocks, prog.Produced = res.Frames, res.Blocks, res.Produced
			r.OnProgress(prog)
		}
		for c := range outCh {
			res.Peaks[c] = max(res.Peaks[c], peak(out[c][drop:drop+emit]))
		}

		if eof && res.Frames >= consumed {
			break
		}
	}
	return res, nil
}

func peak(s []float32) float32 {
	var p float32
	for _, v := range s {
		if v < 0 {
			v = -v
		}
		p = max(p, v)
	}
	return p
}
