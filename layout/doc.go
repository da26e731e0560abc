// Package layout encodes host audio buffers into the flat region and decodes
// engine output back out of it.
//
// The region holds three sections, each a descriptor array followed by the
// data the descriptors point at:
//
//	[input descriptors][input samples]
//	[output descriptors][output samples]
//	[param descriptors][param values]
//
// Descriptors are declared as WIT records (BlockDescriptor, ParamDescriptor)
// and their sizes and field offsets are computed from those declarations.
// All offsets are absolute and multiples of 4.
//
// Encode validates every buffer before it allocates, requests exactly
// Size(ShapeOf(...)) bytes and fails if the write cursor does not land on
// the end of the allocation. Decode copies frames samples per output
// channel in group order, then channel order.
package layout
