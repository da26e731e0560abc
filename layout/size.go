package layout

import (
	"math"

	"github.com/wippyai/wasm-worklet/errors"
)

// Shape is the geometry of one callback: channel counts per group and the
// number of values per parameter.
type Shape struct {
	Frames  uint32
	Inputs  []uint32
	Outputs []uint32
	Params  []uint32
}

// ShapeOf returns the shape of host buffers. Channel lengths are not
// checked; Encode rejects lengths that differ from frames.
func ShapeOf(frames uint32, inputs, outputs [][][]float32, params [][]float32) Shape {
	s := Shape{
		Frames:  frames,
		Inputs:  make([]uint32, len(inputs)),
		Outputs: make([]uint32, len(outputs)),
		Params:  make([]uint32, len(params)),
	}
	for i, g := range inputs {
		s.Inputs[i] = uint32(len(g))
	}
	for i, g := range outputs {
		s.Outputs[i] = uint32(len(g))
	}
	for i, p := range params {
		s.Params[i] = uint32(len(p))
	}
	return s
}

// Size returns the exact flat region size in bytes for s:
//
//	(inputs + outputs) * block descriptor
//	+ every channel * frames * 4
//	+ params * param descriptor
//	+ every parameter value * 4
func Size(s Shape) (uint32, error) {
	var channels, values uint64
	for _, n := range s.Inputs {
		channels += uint64(n)
	}
	for _, n := range s.Outputs {
		channels += uint64(n)
	}
	for _, n := range s.Params {
		values += uint64(n)
	}
	return total(len(s.Inputs)+len(s.Outputs), channels, s.Frames, len(s.Params), values)
}

// MaxSize returns the region size when every parameter carries a full
// block of values. It bounds Size for a fixed channel layout and parameter
// set, and is what arenas are sized from at setup.
func MaxSize(frames uint32, inputs, outputs []uint32, params int) (uint32, error) {
	s := Shape{Frames: frames, Inputs: inputs, Outputs: outputs, Params: make([]uint32, params)}
	for i := range s.Params {
		s.Params[i] = frames
	}
	return Size(s)
}

func total(groups int, channels uint64, frames uint32, params int, values uint64) (uint32, error) {
	n := uint64(groups)*uint64(BlockDescriptorSize) +
		channels*uint64(frames)*uint64(SampleSize) +
		uint64(params)*uint64(ParamDescriptorSize) +
		values*uint64(SampleSize)
	if n > math.MaxUint32 {
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Detail("flat region of %d bytes exceeds 32-bit address space", n).
			Build()
	}
	return uint32(n), nil
}
