package processor

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

func TestParamDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ParamDescriptor
		wantErr bool
	}{
		{"valid", ParamDescriptor{Name: "gain", Min: 0, Max: 2, Default: 1}, false},
		{"point range", ParamDescriptor{Name: "fixed", Min: 1, Max: 1, Default: 1}, false},
		{"empty name", ParamDescriptor{Min: 0, Max: 1}, true},
		{"inverted", ParamDescriptor{Name: "x", Min: 2, Max: 1, Default: 1}, true},
		{"default below", ParamDescriptor{Name: "x", Min: 0, Max: 1, Default: -1}, true},
		{"default above", ParamDescriptor{Name: "x", Min: 0, Max: 1, Default: 2}, true},
		{"nan", ParamDescriptor{Name: "x", Min: 0, Max: float32(math.NaN())}, true},
		{"bad rate", ParamDescriptor{Name: "x", Max: 1, Rate: 7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamDescriptor_Clamp(t *testing.T) {
	d := ParamDescriptor{Name: "gain", Min: 0, Max: 2, Default: 1}

	assert.Equal(t, float32(0), d.Clamp(-3))
	assert.Equal(t, float32(2), d.Clamp(3))
	assert.Equal(t, float32(0.5), d.Clamp(0.5))
	assert.Equal(t, float32(1), d.Clamp(float32(math.NaN())))

	assert.Equal(t, float32(0.25), d.Normalize(0.5))
	assert.Equal(t, float32(1.5), d.Denormalize(0.75))
	assert.Equal(t, float32(2), d.Denormalize(4))
}

func TestNewParamSet(t *testing.T) {
	set, err := NewParamSet(
		ParamDescriptor{Name: "gain", Max: 2, Default: 1},
		ParamDescriptor{Name: "pan", Min: -1, Max: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"gain", "pan"}, set.Names())
	assert.Equal(t, 1, set.Index("pan"))
	assert.Equal(t, -1, set.Index("nope"))
	assert.Equal(t, map[string][]float32{"gain": {1}, "pan": {0}}, set.Defaults())

	_, err = NewParamSet(ParamDescriptor{Name: "a", Max: 1}, ParamDescriptor{Name: "a", Max: 1})
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindDuplicate).Build()))
}

func TestRate_String(t *testing.T) {
	assert.Equal(t, "a-rate", ARate.String())
	assert.Equal(t, "k-rate", KRate.String())
}

func nopEntry() worklet.EntryPoint {
	return worklet.EntryFunc(func(context.Context, []uint64) error { return nil })
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := &Factory{
		Name:    "gain",
		Params:  ParamSet{gainParam},
		Context: Context{Entry: nopEntry(), FramesPerBlock: 128},
	}
	require.NoError(t, r.Register(f))

	got, ok := r.Lookup("gain")
	require.True(t, ok)
	assert.Same(t, f, got)

	err := r.Register(&Factory{Name: "gain", Context: Context{Entry: nopEntry(), FramesPerBlock: 64}})
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindDuplicate).Build()))

	require.NoError(t, r.Register(&Factory{Name: "delay", Context: Context{Entry: nopEntry(), FramesPerBlock: 128}}))
	assert.Equal(t, []string{"delay", "gain"}, r.Names())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestFactory_Validate(t *testing.T) {
	tests := []struct {
		name string
		f    Factory
	}{
		{"no name", Factory{Context: Context{Entry: nopEntry(), FramesPerBlock: 1}}},
		{"no frames", Factory{Name: "x", Context: Context{Entry: nopEntry()}}},
		{"no entry", Factory{Name: "x", Context: Context{FramesPerBlock: 1}}},
		{"bad params", Factory{Name: "x", Context: Context{Entry: nopEntry(), FramesPerBlock: 1},
			Params: ParamSet{{Name: "p", Min: 1, Max: 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.f.Validate())
		})
	}
}

func TestFactory_ArenaSize(t *testing.T) {
	f := &Factory{Name: "gain", Params: ParamSet{gainParam}, Context: Context{FramesPerBlock: 128}}
	size, err := f.ArenaSize([]uint32{2}, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, uint32(2*12+4*128*4+8+128*4), size)

	f.Config.ArenaBytes = 1 << 20
	size, err = f.ArenaSize([]uint32{2}, []uint32{2})
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<20), size)
}
