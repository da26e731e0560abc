package layout

import (
	"strconv"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

// Frame locates one encoded flat region. Offsets are absolute addresses in
// engine memory.
type Frame struct {
	Base             uint32
	Size             uint32
	NumInputs        uint32
	InputsOffset     uint32
	NumOutputs       uint32
	OutputsOffset    uint32
	OutputDataOffset uint32
	NumParams        uint32
	ParamsOffset     uint32
}

// Args fills the first seven slots of stack with the entry point arguments
// (inputs, outputs, params as count/pointer pairs, then userData).
func (f Frame) Args(stack []uint64, userData uint32) {
	_ = stack[6]
	stack[0] = uint64(f.NumInputs)
	stack[1] = uint64(f.InputsOffset)
	stack[2] = uint64(f.NumOutputs)
	stack[3] = uint64(f.OutputsOffset)
	stack[4] = uint64(f.NumParams)
	stack[5] = uint64(f.ParamsOffset)
	stack[6] = uint64(userData)
}

// Encoder binds a memory, an arena and a block size.
type Encoder struct {
	Memory worklet.Memory
	Arena  worklet.Arena
	Frames uint32
}

// Encode writes one callback's buffers into a fresh arena allocation.
func (e *Encoder) Encode(inputs, outputs [][][]float32, params [][]float32) (Frame, error) {
	return Encode(e.Memory, e.Arena, e.Frames, inputs, outputs, params)
}

// Decode copies produced output samples back into outputs.
func (e *Encoder) Decode(f Frame, outputs [][][]float32) error {
	return Decode(e.Memory, f, e.Frames, outputs)
}

// Encode computes the exact region size, allocates it from a and writes
//
//	[input descriptors][input samples]
//	[output descriptors][output samples]
//	[param descriptors][param values]
//
// Output sample space is left as is for the engine to fill. Nothing is
// allocated or written when the buffers are invalid. The caller owns the
// arena mark and must reset it after the region is no longer needed.
func Encode(mem worklet.Memory, a worklet.Arena, frames uint32, inputs, outputs [][][]float32, params [][]float32) (Frame, error) {
	channels, err := checkGroups(frames, inputs, "inputs")
	if err != nil {
		return Frame{}, err
	}
	outChannels, err := checkGroups(frames, outputs, "outputs")
	if err != nil {
		return Frame{}, err
	}
	var values uint64
	for i, p := range params {
		if len(p) == 0 {
			return Frame{}, errors.InvalidInput(errors.PhaseEncode,
				[]string{"params", strconv.Itoa(i)}, "parameter has no values")
		}
		values += uint64(len(p))
	}

	size, err := total(len(inputs)+len(outputs), channels+outChannels, frames, len(params), values)
	if err != nil {
		return Frame{}, err
	}

	base, err := a.Alloc(size)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		Base:       base,
		Size:       size,
		NumInputs:  uint32(len(inputs)),
		NumOutputs: uint32(len(outputs)),
		NumParams:  uint32(len(params)),
	}
	bytesPerChannel := frames * SampleSize

	// inputs
	f.InputsOffset = base
	desc := base
	data := base + f.NumInputs*BlockDescriptorSize
	for _, g := range inputs {
		if err := writeBlock(mem, desc, uint32(len(g)), frames, data); err != nil {
			return Frame{}, err
		}
		desc += BlockDescriptorSize
		for _, ch := range g {
			if err := mem.WriteFloats(data, ch); err != nil {
				return Frame{}, err
			}
			data += bytesPerChannel
		}
	}

	// outputs
	f.OutputsOffset = data
	desc = data
	data += f.NumOutputs * BlockDescriptorSize
	f.OutputDataOffset = data
	for _, g := range outputs {
		if err := writeBlock(mem, desc, uint32(len(g)), frames, data); err != nil {
			return Frame{}, err
		}
		desc += BlockDescriptorSize
		data += uint32(len(g)) * bytesPerChannel
	}

	// params
	f.ParamsOffset = data
	desc = data
	data += f.NumParams * ParamDescriptorSize
	for _, p := range params {
		if err := mem.WriteU32(desc+paramLengthOff, uint32(len(p))); err != nil {
			return Frame{}, err
		}
		if err := mem.WriteU32(desc+paramDataOff, data); err != nil {
			return Frame{}, err
		}
		desc += ParamDescriptorSize
		if err := mem.WriteFloats(data, p); err != nil {
			return Frame{}, err
		}
		data += uint32(len(p)) * SampleSize
	}

	if data != base+size {
		return Frame{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("layout cursor ended at %d bytes of %d", data-base, size).
			Build()
	}
	return f, nil
}

func writeBlock(mem worklet.Memory, desc, channels, frames, data uint32) error {
	if err := mem.WriteU32(desc+blockChannelsOff, channels); err != nil {
		return err
	}
	if err := mem.WriteU32(desc+blockFramesOff, frames); err != nil {
		return err
	}
	return mem.WriteU32(desc+blockDataOff, data)
}

// checkGroups returns the total channel count, or an error naming the
// first channel whose length is not frames.
func checkGroups(frames uint32, groups [][][]float32, name string) (uint64, error) {
	var n uint64
	for g, group := range groups {
		for c, ch := range group {
			if uint64(len(ch)) != uint64(frames) {
				return 0, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
					Path(name, strconv.Itoa(g), strconv.Itoa(c)).
					Detail("channel has %d frames, block size is %d", len(ch), frames).
					Build()
			}
		}
		n += uint64(len(group))
	}
	return n, nil
}
