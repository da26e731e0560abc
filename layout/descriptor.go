package layout

import (
	"go.bytecodealliance.org/wit"
)

// Descriptor field names.
const (
	FieldChannelCount     = "channel-count"
	FieldFramesPerChannel = "frames-per-channel"
	FieldDataOffset       = "data-offset"
	FieldLength           = "length"
)

// BlockDescriptor describes one input or output buffer group:
//
//	record block-descriptor {
//	    channel-count: u32,
//	    frames-per-channel: u32,
//	    data-offset: u32,
//	}
//
// channel-count runs of frames-per-channel f32 samples start at data-offset.
var BlockDescriptor = &wit.TypeDef{
	Kind: &wit.Record{
		Fields: []wit.Field{
			{Name: FieldChannelCount, Type: wit.U32{}},
			{Name: FieldFramesPerChannel, Type: wit.U32{}},
			{Name: FieldDataOffset, Type: wit.U32{}},
		},
	},
}

// ParamDescriptor describes one parameter's values for the block:
//
//	record param-descriptor {
//	    length: u32,
//	    data-offset: u32,
//	}
var ParamDescriptor = &wit.TypeDef{
	Kind: &wit.Record{
		Fields: []wit.Field{
			{Name: FieldLength, Type: wit.U32{}},
			{Name: FieldDataOffset, Type: wit.U32{}},
		},
	},
}

// Sizes and field offsets derived from the WIT records.
var (
	BlockDescriptorSize uint32
	ParamDescriptorSize uint32
	SampleSize          uint32

	blockChannelsOff uint32
	blockFramesOff   uint32
	blockDataOff     uint32
	paramLengthOff   uint32
	paramDataOff     uint32
)

func init() {
	block := mustLayout(BlockDescriptor)
	param := mustLayout(ParamDescriptor)
	BlockDescriptorSize = block.size
	ParamDescriptorSize = param.size
	SampleSize, _ = scalarSize(wit.F32{})

	blockChannelsOff = block.offset(FieldChannelCount)
	blockFramesOff = block.offset(FieldFramesPerChannel)
	blockDataOff = block.offset(FieldDataOffset)
	paramLengthOff = param.offset(FieldLength)
	paramDataOff = param.offset(FieldDataOffset)
}

// Block is a decoded block descriptor.
type Block struct {
	Channels uint32
	Frames   uint32
	Data     uint32
}

// Channel returns the offset of channel ch's first sample.
func (b Block) Channel(ch uint32) uint32 {
	return b.Data + ch*b.Frames*SampleSize
}

// Param is a decoded parameter descriptor.
type Param struct {
	Length uint32
	Data   uint32
}
