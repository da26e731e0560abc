package layout

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-worklet/arena"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/memory"
)

func channels(n, frames int, fill func(ch, i int) float32) [][]float32 {
	out := make([][]float32, n)
	for c := range out {
		out[c] = make([]float32, frames)
		for i := range out[c] {
			if fill != nil {
				out[c][i] = fill(c, i)
			}
		}
	}
	return out
}

func ramp(offset int) func(ch, i int) float32 {
	return func(ch, i int) float32 { return float32(offset+ch*1000+i) * 0.001 }
}

type harness struct {
	mem   *memory.Guard
	arena *arena.Linear
	rec   *arena.Recorder
}

func newHarness(t *testing.T, capacity uint32) *harness {
	t.Helper()
	buf := memory.NewBuffer(64 + capacity + 64)
	lin, err := arena.NewLinear(buf, 64, capacity)
	require.NoError(t, err)

	h := &harness{mem: memory.NewGuard(buf), arena: lin}
	h.rec = arena.NewRecorder(lin)
	h.rec.OnAlloc = h.mem.Allow
	return h
}

func TestDescriptorSizes(t *testing.T) {
	assert.Equal(t, uint32(12), BlockDescriptorSize)
	assert.Equal(t, uint32(8), ParamDescriptorSize)
	assert.Equal(t, uint32(4), SampleSize)

	assert.Equal(t, uint32(0), blockChannelsOff)
	assert.Equal(t, uint32(4), blockFramesOff)
	assert.Equal(t, uint32(8), blockDataOff)
	assert.Equal(t, uint32(0), paramLengthOff)
	assert.Equal(t, uint32(4), paramDataOff)
}

func TestLayoutRecord_Padding(t *testing.T) {
	def := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "flag", Type: wit.Bool{}},
		{Name: "count", Type: wit.U64{}},
		{Name: "tag", Type: wit.U16{}},
	}}}
	l, err := layoutRecord(def)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), l.offset("count"))
	assert.Equal(t, uint32(16), l.offset("tag"))
	assert.Equal(t, uint32(24), l.size)
	assert.Equal(t, uint32(8), l.align)

	_, err = layoutRecord(&wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "s", Type: wit.String{}}}}})
	assert.Error(t, err)
	_, err = layoutRecord(&wit.TypeDef{Kind: wit.U32{}})
	assert.Error(t, err)
	assert.Panics(t, func() { l.offset("missing") })
}

func TestSize(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  uint32
	}{
		{"empty", Shape{Frames: 128}, 0},
		{"stereo in", Shape{Frames: 128, Inputs: []uint32{2}}, 12 + 2*128*4},
		{
			"in out params",
			Shape{Frames: 4, Inputs: []uint32{2, 1}, Outputs: []uint32{2}, Params: []uint32{1, 4}},
			3*12 + 5*4*4 + 2*8 + 5*4,
		},
		{"empty group", Shape{Frames: 64, Inputs: []uint32{0}}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Size(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSize_Overflow(t *testing.T) {
	_, err := Size(Shape{Frames: 1 << 30, Inputs: []uint32{8}})
	assert.Error(t, err)
}

func TestMaxSize(t *testing.T) {
	got, err := MaxSize(128, []uint32{2}, []uint32{2}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*12+4*128*4+8+128*4), got)

	small, err := Size(Shape{Frames: 128, Inputs: []uint32{2}, Outputs: []uint32{2}, Params: []uint32{1}})
	require.NoError(t, err)
	assert.Less(t, small, got)
}

func TestEncode_ExactSize(t *testing.T) {
	shapes := []struct {
		name    string
		frames  int
		inputs  []int
		outputs []int
		params  []int
	}{
		{"mono", 16, []int{1}, []int{1}, nil},
		{"stereo gain", 128, []int{2}, []int{2}, []int{1}},
		{"sidechain", 32, []int{2, 2}, []int{2}, []int{32, 1, 1}},
		{"no inputs", 8, nil, []int{2}, []int{8}},
		{"no outputs", 8, []int{1}, nil, nil},
		{"nothing", 8, nil, nil, nil},
		{"empty group", 8, []int{0, 1}, []int{0}, nil},
	}

	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1<<16)

			inputs := make([][][]float32, len(tt.inputs))
			for g, n := range tt.inputs {
				inputs[g] = channels(n, tt.frames, ramp(g))
			}
			outputs := make([][][]float32, len(tt.outputs))
			for g, n := range tt.outputs {
				outputs[g] = channels(n, tt.frames, nil)
			}
			params := make([][]float32, len(tt.params))
			for i, n := range tt.params {
				params[i] = make([]float32, n)
			}

			want, err := Size(ShapeOf(uint32(tt.frames), inputs, outputs, params))
			require.NoError(t, err)

			m := h.rec.Mark()
			f, err := Encode(h.mem, h.rec, uint32(tt.frames), inputs, outputs, params)
			require.NoError(t, err)

			assert.Equal(t, []uint32{want}, h.rec.Requests())
			assert.Equal(t, want, f.Size)
			assert.Empty(t, h.mem.Violations())
			if want > 0 {
				assert.LessOrEqual(t, h.mem.Highest(), f.Base+f.Size)
			}

			require.NoError(t, h.rec.Reset(m))
			assert.Zero(t, h.rec.Live())
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	h := newHarness(t, 4096)
	frames := uint32(4)

	inputs := [][][]float32{channels(2, 4, ramp(0))}
	outputs := [][][]float32{channels(1, 4, nil)}
	params := [][]float32{{0.5}, {1, 2, 3, 4}}

	f, err := Encode(h.mem, h.rec, frames, inputs, outputs, params)
	require.NoError(t, err)

	base := f.Base
	assert.Equal(t, base, f.InputsOffset)
	assert.Equal(t, base+12+2*16, f.OutputsOffset)
	assert.Equal(t, f.OutputsOffset+12, f.OutputDataOffset)
	assert.Equal(t, f.OutputDataOffset+16, f.ParamsOffset)
	assert.Equal(t, f.ParamsOffset+2*8+5*4, base+f.Size)

	v, err := ReadFrame(h.mem, f)
	require.NoError(t, err)
	assert.Equal(t, []Block{{Channels: 2, Frames: 4, Data: base + 12}}, v.Inputs)
	assert.Equal(t, []Block{{Channels: 1, Frames: 4, Data: f.OutputDataOffset}}, v.Outputs)
	assert.Equal(t, []Param{
		{Length: 1, Data: f.ParamsOffset + 16},
		{Length: 4, Data: f.ParamsOffset + 20},
	}, v.Params)

	// second input channel starts one channel stride after the first
	got := make([]float32, 4)
	require.NoError(t, h.mem.ReadFloats(v.Inputs[0].Channel(1), got))
	assert.Equal(t, inputs[0][1], got)

	require.NoError(t, h.mem.ReadFloats(v.Params[1].Data, got))
	assert.Equal(t, params[1], got)

	for _, off := range []uint32{f.InputsOffset, f.OutputsOffset, f.OutputDataOffset, f.ParamsOffset} {
		assert.Zero(t, off%4, "offset %d not 4-byte aligned", off)
	}
}

// copyThrough plays a passthrough engine: every output channel receives the
// matching input channel.
func copyThrough(t *testing.T, h *harness, f Frame) {
	t.Helper()
	v, err := ReadFrame(h.mem, f)
	require.NoError(t, err)
	for g, out := range v.Outputs {
		in := v.Inputs[g]
		n := out.Channels * out.Frames * SampleSize
		src, err := h.mem.Read(in.Data, n)
		require.NoError(t, err)
		dst, err := h.mem.Read(out.Data, n)
		require.NoError(t, err)
		copy(dst, src)
	}
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t, 1<<16)
	frames := uint32(64)

	inputs := [][][]float32{
		channels(2, 64, ramp(1)),
		channels(1, 64, func(_, i int) float32 { return -float32(i) }),
	}
	outputs := [][][]float32{channels(2, 64, nil), channels(1, 64, nil)}

	m := h.rec.Mark()
	f, err := Encode(h.mem, h.rec, frames, inputs, outputs, nil)
	require.NoError(t, err)
	copyThrough(t, h, f)
	require.NoError(t, Decode(h.mem, f, frames, outputs))
	require.NoError(t, h.rec.Reset(m))

	assert.Equal(t, inputs, outputs)
}

func TestEncode_ZeroOutputs(t *testing.T) {
	h := newHarness(t, 4096)
	f, err := Encode(h.mem, h.rec, 8, [][][]float32{channels(1, 8, ramp(0))}, nil, nil)
	require.NoError(t, err)

	assert.Zero(t, f.NumOutputs)
	assert.Equal(t, f.OutputsOffset, f.OutputDataOffset)
	assert.Equal(t, f.OutputDataOffset, f.ParamsOffset)
	assert.Zero(t, f.NumParams)
	assert.Equal(t, f.Base+f.Size, f.ParamsOffset)

	written := h.mem.Written()
	require.NoError(t, Decode(h.mem, f, 8, nil))
	assert.Equal(t, written, h.mem.Written())
}

func TestEncode_RejectsBeforeAllocating(t *testing.T) {
	tests := []struct {
		name    string
		inputs  [][][]float32
		outputs [][][]float32
		params  [][]float32
	}{
		{"short input", [][][]float32{{make([]float32, 7)}}, nil, nil},
		{"long input", [][][]float32{{make([]float32, 8), make([]float32, 9)}}, nil, nil},
		{"short output", nil, [][][]float32{{make([]float32, 4)}}, nil},
		{"empty param", nil, nil, [][]float32{{1}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4096)
			_, err := Encode(h.mem, h.rec, 8, tt.inputs, tt.outputs, tt.params)
			require.Error(t, err)

			var e *errors.Error
			require.True(t, stderrors.As(err, &e))
			assert.Equal(t, errors.KindInvalidInput, e.Kind)
			assert.Empty(t, h.rec.Requests())
			assert.Zero(t, h.mem.Written())
		})
	}
}

func TestEncode_ArenaExhausted(t *testing.T) {
	h := newHarness(t, 64)
	_, err := Encode(h.mem, h.rec, 128, [][][]float32{channels(1, 128, nil)}, nil, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrArenaExhausted))
	assert.Zero(t, h.arena.Used())
	assert.Zero(t, h.mem.Written())
}

func TestDecode_GroupMismatch(t *testing.T) {
	h := newHarness(t, 4096)
	f, err := Encode(h.mem, h.rec, 8, nil, [][][]float32{channels(1, 8, nil)}, nil)
	require.NoError(t, err)

	assert.Error(t, Decode(h.mem, f, 8, nil))
	assert.Error(t, Decode(h.mem, f, 8, [][][]float32{{make([]float32, 4)}}))
}

func TestFrameArgs(t *testing.T) {
	f := Frame{NumInputs: 1, InputsOffset: 64, NumOutputs: 2, OutputsOffset: 128, NumParams: 3, ParamsOffset: 256}
	stack := make([]uint64, 7)
	f.Args(stack, 99)
	assert.Equal(t, []uint64{1, 64, 2, 128, 3, 256, 99}, stack)
}

func TestEncoder(t *testing.T) {
	h := newHarness(t, 4096)
	e := &Encoder{Memory: h.mem, Arena: h.rec, Frames: 4}

	in := [][][]float32{channels(1, 4, ramp(3))}
	out := [][][]float32{channels(1, 4, nil)}

	f, err := e.Encode(in, out, [][]float32{{1}})
	require.NoError(t, err)
	copyThrough(t, h, f)
	require.NoError(t, e.Decode(f, out))
	assert.Equal(t, in, out)
}

func BenchmarkEncodeDecode(b *testing.B) {
	buf := memory.NewBuffer(1 << 16)
	lin, _ := arena.NewLinear(buf, 0, 1<<16)

	in := [][][]float32{channels(2, 128, ramp(0))}
	out := [][][]float32{channels(2, 128, nil)}
	params := [][]float32{{0.5}}

	b.ReportAllocs()
	for b.Loop() {
		m := lin.Mark()
		f, err := Encode(buf, lin, 128, in, out, params)
		if err != nil {
			b.Fatal(err)
		}
		if err := Decode(buf, f, 128, out); err != nil {
			b.Fatal(err)
		}
		_ = lin.Reset(m)
	}
}
