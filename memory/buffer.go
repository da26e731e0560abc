package memory

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-worklet/errors"
)

// Buffer is a slice-backed Memory for Go-native engines and tests.
// It grows only through Grow, in whole pages.
type Buffer struct {
	data []byte
	max  uint32
}

// NewBuffer creates a zeroed buffer of size bytes with no growth limit.
func NewBuffer(size uint32) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// NewBufferWithLimit creates a buffer that cannot grow beyond maxBytes.
func NewBufferWithLimit(size, maxBytes uint32) *Buffer {
	return &Buffer{data: make([]byte, size), max: maxBytes}
}

// Bytes returns the backing slice.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) check(offset, length uint32) bool {
	end := uint64(offset) + uint64(length)
	return end <= uint64(len(b.data))
}

func (b *Buffer) Read(offset uint32, length uint32) ([]byte, error) {
	if !b.check(offset, length) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, offset, length)
	}
	return b.data[offset : offset+length : offset+length], nil
}

func (b *Buffer) Write(offset uint32, data []byte) error {
	if !b.check(offset, uint32(len(data))) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, uint32(len(data)))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) ReadU32(offset uint32) (uint32, error) {
	if !b.check(offset, 4) {
		return 0, errors.OutOfBounds(errors.PhaseDecode, offset, 4)
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

func (b *Buffer) WriteU32(offset uint32, value uint32) error {
	if !b.check(offset, 4) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, 4)
	}
	binary.LittleEndian.PutUint32(b.data[offset:], value)
	return nil
}

func (b *Buffer) ReadF32(offset uint32) (float32, error) {
	v, err := b.ReadU32(offset)
	return math.Float32frombits(v), err
}

func (b *Buffer) WriteF32(offset uint32, value float32) error {
	return b.WriteU32(offset, math.Float32bits(value))
}

func (b *Buffer) ReadFloats(offset uint32, dst []float32) error {
	n := uint32(len(dst)) * 4
	if !b.check(offset, n) {
		return errors.OutOfBounds(errors.PhaseDecode, offset, n)
	}
	GetFloats(dst, b.data[offset:offset+n])
	return nil
}

func (b *Buffer) WriteFloats(offset uint32, src []float32) error {
	n := uint32(len(src)) * 4
	if !b.check(offset, n) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, n)
	}
	PutFloats(b.data[offset:offset+n], src)
	return nil
}

func (b *Buffer) Size() uint32 {
	return uint32(len(b.data))
}

// Grow appends deltaPages zeroed pages and returns the previous size in
// pages. Like wasm memory.grow, views obtained before Grow may be stale.
func (b *Buffer) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(b.data)) / PageSize
	next := uint64(len(b.data)) + uint64(deltaPages)*PageSize
	if next > math.MaxUint32 || (b.max > 0 && next > uint64(b.max)) {
		return prev, false
	}
	grown := make([]byte, next)
	copy(grown, b.data)
	b.data = grown
	return prev, true
}
