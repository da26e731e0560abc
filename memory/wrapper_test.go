package memory

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-worklet/internal/wasmtest"
)

func instantiateMemory(t *testing.T) api.Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	compiled, err := rt.CompileModule(ctx, wasmtest.MemoryOnly())
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		t.Fatal("memory not exported")
	}
	return mem
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("expected nil for nil memory")
	}
}

func TestWrapper_ReadWrite(t *testing.T) {
	mem := Wrap(instantiateMemory(t))

	data := []byte{1, 2, 3, 4}
	if err := mem.Write(0, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := mem.Read(0, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range read {
		if b != data[i] {
			t.Errorf("byte %d: expected %d, got %d", i, data[i], b)
		}
	}
}

func TestWrapper_ReadIsView(t *testing.T) {
	mem := Wrap(instantiateMemory(t))

	view, err := mem.Read(16, 4)
	if err != nil {
		t.Fatal(err)
	}
	view[0] = 0xAB

	v, err := mem.ReadU32(16)
	if err != nil {
		t.Fatal(err)
	}
	if v&0xFF != 0xAB {
		t.Errorf("write through view not visible: 0x%x", v)
	}
}

func TestWrapper_Typed(t *testing.T) {
	mem := Wrap(instantiateMemory(t))

	if err := mem.WriteU32(8, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if v, err := mem.ReadU32(8); err != nil || v != 0xDEADBEEF {
		t.Errorf("ReadU32 = 0x%x, %v", v, err)
	}

	if err := mem.WriteF32(12, -0.25); err != nil {
		t.Fatal(err)
	}
	if v, err := mem.ReadF32(12); err != nil || v != -0.25 {
		t.Errorf("ReadF32 = %v, %v", v, err)
	}
}

func TestWrapper_Floats(t *testing.T) {
	mem := Wrap(instantiateMemory(t))

	src := []float32{0, 1, -1, 0.5, 3.25}
	if err := mem.WriteFloats(100, src); err != nil {
		t.Fatal(err)
	}

	dst := make([]float32, len(src))
	if err := mem.ReadFloats(100, dst); err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("sample %d: got %v, want %v", i, dst[i], src[i])
		}
	}

	// Same bytes through the scalar accessor
	if v, _ := mem.ReadF32(100 + 4*3); v != 0.5 {
		t.Errorf("ReadF32 = %v, want 0.5", v)
	}
}

func TestWrapper_OutOfBounds(t *testing.T) {
	mem := Wrap(instantiateMemory(t))
	size := mem.Size()

	if _, err := mem.Read(size-2, 4); err == nil {
		t.Error("expected read error")
	}
	if err := mem.Write(size, []byte{1}); err == nil {
		t.Error("expected write error")
	}
	if _, err := mem.ReadU32(size - 3); err == nil {
		t.Error("expected ReadU32 error")
	}
	if err := mem.WriteU32(size, 1); err == nil {
		t.Error("expected WriteU32 error")
	}
	if err := mem.WriteFloats(size-4, []float32{1, 2}); err == nil {
		t.Error("expected WriteFloats error")
	}
	if err := mem.ReadFloats(size-4, make([]float32, 2)); err == nil {
		t.Error("expected ReadFloats error")
	}
}

func TestWrapper_Grow(t *testing.T) {
	mem := Wrap(instantiateMemory(t))

	prev, ok := mem.Grow(1)
	if !ok {
		t.Fatal("grow failed")
	}
	if prev != 1 {
		t.Errorf("previous pages = %d, want 1", prev)
	}
	if mem.Size() != 2*PageSize {
		t.Errorf("size = %d, want %d", mem.Size(), 2*PageSize)
	}
}
