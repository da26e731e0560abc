package memory

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-worklet/errors"
)

// Wrap wraps a wazero api.Memory. Returns nil for nil memory.
func Wrap(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the worklet.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Read returns a view of linear memory.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, uint32(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, offset, 4)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, 4)
	}
	return nil
}

// ReadF32 reads a 32-bit little-endian float.
func (m *Wrapper) ReadF32(offset uint32) (float32, error) {
	v, ok := m.Mem.ReadFloat32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, offset, 4)
	}
	return v, nil
}

// WriteF32 writes a 32-bit little-endian float.
func (m *Wrapper) WriteF32(offset uint32, value float32) error {
	if !m.Mem.WriteFloat32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseEncode, offset, 4)
	}
	return nil
}

// ReadFloats copies len(dst) floats out of memory.
func (m *Wrapper) ReadFloats(offset uint32, dst []float32) error {
	n := uint32(len(dst)) * 4
	view, ok := m.Mem.Read(offset, n)
	if !ok {
		return errors.OutOfBounds(errors.PhaseDecode, offset, n)
	}
	GetFloats(dst, view)
	return nil
}

// WriteFloats copies src into memory.
func (m *Wrapper) WriteFloats(offset uint32, src []float32) error {
	n := uint32(len(src)) * 4
	view, ok := m.Mem.Read(offset, n)
	if !ok {
		return errors.OutOfBounds(errors.PhaseEncode, offset, n)
	}
	PutFloats(view, src)
	return nil
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Grow extends memory by delta pages.
func (m *Wrapper) Grow(deltaPages uint32) (uint32, bool) {
	return m.Mem.Grow(deltaPages)
}
