package memory

import (
	"encoding/binary"
	"math"
)

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// PutFloats encodes src into view as little-endian f32. view must hold
// at least 4*len(src) bytes.
func PutFloats(view []byte, src []float32) {
	if len(src) == 0 {
		return
	}
	_ = view[len(src)*4-1]
	for i, v := range src {
		binary.LittleEndian.PutUint32(view[i*4:], math.Float32bits(v))
	}
}

// GetFloats decodes len(dst) little-endian f32 values from view.
func GetFloats(dst []float32, view []byte) {
	if len(dst) == 0 {
		return
	}
	_ = view[len(dst)*4-1]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(view[i*4:]))
	}
}
