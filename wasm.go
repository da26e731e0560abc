package worklet

import "context"

// Memory is a flat region of engine linear memory addressed by byte offset.
// All multi-byte accessors are little-endian and bounds-checked.
type Memory interface {
	// Read returns a view of length bytes at offset. The view aliases the
	// memory; writes through it are visible to the engine.
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadF32(offset uint32) (float32, error)
	WriteF32(offset uint32, value float32) error
	// ReadFloats fills dst with len(dst) consecutive f32 values at offset.
	ReadFloats(offset uint32, dst []float32) error
	// WriteFloats stores src as consecutive f32 values at offset.
	WriteFloats(offset uint32, src []float32) error
	Size() uint32
}

// Mark is a resettable arena checkpoint.
type Mark struct {
	Top   uint32
	Owner uint64
}

// Arena is a stack-discipline scratch allocator inside a Memory.
// Allocations made after a Mark are released together by Reset(mark).
type Arena interface {
	Mark() Mark
	Alloc(size uint32) (uint32, error)
	Reset(m Mark) error
}

// EntryPoint is a callable engine function using the wazero stack calling
// convention: params are read from stack and results written back to it.
// wazero's api.Function satisfies it.
type EntryPoint interface {
	CallWithStack(ctx context.Context, stack []uint64) error
}

// EntryFunc adapts a Go function to EntryPoint.
type EntryFunc func(ctx context.Context, stack []uint64) error

// CallWithStack calls f.
func (f EntryFunc) CallWithStack(ctx context.Context, stack []uint64) error {
	return f(ctx, stack)
}
