package layout

import (
	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

// Decode copies frames samples per output channel from the region into
// outputs, group-major then channel-major, with a single cursor starting at
// OutputDataOffset. outputs must have the group count f was encoded with.
func Decode(mem worklet.Memory, f Frame, frames uint32, outputs [][][]float32) error {
	if uint32(len(outputs)) != f.NumOutputs {
		return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("frame has %d output groups, got %d", f.NumOutputs, len(outputs)).
			Build()
	}
	cursor := f.OutputDataOffset
	bytesPerChannel := frames * SampleSize
	for _, g := range outputs {
		for _, ch := range g {
			if uint64(len(ch)) < uint64(frames) {
				return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
					Detail("output channel has %d frames, block size is %d", len(ch), frames).
					Build()
			}
			if err := mem.ReadFloats(cursor, ch[:frames]); err != nil {
				return err
			}
			cursor += bytesPerChannel
		}
	}
	return nil
}

// View is the region as the engine sees it.
type View struct {
	Inputs  []Block
	Outputs []Block
	Params  []Param
}

// ReadFrame parses the descriptors f points at.
func ReadFrame(mem worklet.Memory, f Frame) (View, error) {
	return ReadArgs(mem, f.NumInputs, f.InputsOffset, f.NumOutputs, f.OutputsOffset, f.NumParams, f.ParamsOffset)
}

// ReadArgs parses descriptors from entry point arguments. Go engines use it
// to walk the region they were handed.
func ReadArgs(mem worklet.Memory, numInputs, inputs, numOutputs, outputs, numParams, params uint32) (View, error) {
	var v View
	var err error
	if v.Inputs, err = readBlocks(mem, numInputs, inputs); err != nil {
		return View{}, err
	}
	if v.Outputs, err = readBlocks(mem, numOutputs, outputs); err != nil {
		return View{}, err
	}
	v.Params = make([]Param, numParams)
	for i := range v.Params {
		at := params + uint32(i)*ParamDescriptorSize
		if v.Params[i].Length, err = mem.ReadU32(at + paramLengthOff); err != nil {
			return View{}, err
		}
		if v.Params[i].Data, err = mem.ReadU32(at + paramDataOff); err != nil {
			return View{}, err
		}
	}
	return v, nil
}

func readBlocks(mem worklet.Memory, n, at uint32) ([]Block, error) {
	blocks := make([]Block, n)
	var err error
	for i := range blocks {
		d := at + uint32(i)*BlockDescriptorSize
		if blocks[i].Channels, err = mem.ReadU32(d + blockChannelsOff); err != nil {
			return nil, err
		}
		if blocks[i].Frames, err = mem.ReadU32(d + blockFramesOff); err != nil {
			return nil, err
		}
		if blocks[i].Data, err = mem.ReadU32(d + blockDataOff); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}
