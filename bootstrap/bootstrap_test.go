package bootstrap

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/engine"
	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/internal/wasmtest"
	"github.com/wippyai/wasm-worklet/processor"
)

const (
	frames    = 128
	ackHandle = 9
)

var gainParams = processor.ParamSet{{Name: "gain", Min: 0, Max: 2, Default: 1}}

func newInstance(t *testing.T) *engine.Instance {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close(ctx) })

	mod, err := eng.Load(ctx, wasmtest.StubEngine())
	require.NoError(t, err)
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	return inst
}

type harness struct {
	inst  *engine.Instance
	boot  *Bootstrap
	ctl   *Controller
	acks  [][]uint64
	ctx   context.Context
	close func()
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	h := &harness{inst: newInstance(t), ctx: ctx}
	wp, mp := NewPortPair(4)
	h.boot = New(h.inst, wp, opts)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.boot.Serve(ctx)
	}()
	h.close = func() {
		cancel()
		<-done
	}
	t.Cleanup(h.close)

	table := engine.NewTable()
	table.Bind(ackHandle, worklet.EntryFunc(func(_ context.Context, stack []uint64) error {
		h.acks = append(h.acks, append([]uint64(nil), stack...))
		return nil
	}))
	h.ctl = NewController(mp, table)
	return h
}

func gainSetup() SetupMessage {
	return SetupMessage{
		ProcessorType:  "gain",
		Params:         gainParams,
		EntryPoint:     wasmtest.HandleGain,
		UserData:       42,
		ChannelHint:    2,
		AckCallback:    ackHandle,
		FramesPerBlock: frames,
	}
}

func block(channels int, value float32) [][][]float32 {
	group := make([][]float32, channels)
	for c := range group {
		group[c] = make([]float32, frames)
		for i := range group[c] {
			group[c][i] = value
		}
	}
	return [][][]float32{group}
}

func TestHandshake(t *testing.T) {
	h := newHarness(t, Options{})

	assert.Equal(t, StateUninitialized, h.boot.State())
	require.NoError(t, h.ctl.Setup(h.ctx, gainSetup()))

	assert.Equal(t, StateReady, h.boot.State())
	assert.Equal(t, [][]uint64{{2, 1, 42}}, h.acks)
	assert.Equal(t, []string{"gain"}, h.boot.Registry().Names())

	p, err := h.boot.NewProcessor(h.ctx, "gain")
	require.NoError(t, err)
	require.True(t, p.Ready())
	assert.Equal(t, uint32(42), p.Context().UserData)

	out := block(2, 0)
	produced := p.Process(h.ctx, block(2, 1), out, map[string][]float32{"gain": {0.5}})
	require.True(t, produced)
	for c, ch := range out[0] {
		for i, v := range ch {
			require.Equal(t, float32(0.5), v, "out[%d][%d]", c, i)
		}
	}
}

func TestHandshake_AckThroughEngine(t *testing.T) {
	h := newHarness(t, Options{})
	ctl := NewController(h.ctl.port, h.inst.Table())

	msg := gainSetup()
	msg.AckCallback = wasmtest.HandleAck
	require.NoError(t, ctl.Setup(h.ctx, msg))

	mem := h.inst.Memory()
	for i, want := range []uint32{2, 1, 42, 1} {
		got, err := mem.ReadU32(wasmtest.AckMailbox + uint32(i)*4)
		require.NoError(t, err)
		assert.Equal(t, want, got, "mailbox[%d]", i)
	}
}

func TestHandshake_StackArena(t *testing.T) {
	h := newHarness(t, Options{UseStack: true})
	require.NoError(t, h.ctl.Setup(h.ctx, gainSetup()))

	p, err := h.boot.NewProcessor(h.ctx, "gain")
	require.NoError(t, err)

	for range 3 {
		out := block(2, 0)
		require.True(t, p.Process(h.ctx, block(2, 1), out, map[string][]float32{"gain": {2}}))
		assert.Equal(t, float32(2), out[0][1][frames-1])
	}
	assert.Zero(t, p.Stats().Errors)
}

func TestSetup_BadEntryPoint(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.inst.Table().BindExport(50, "ack", engine.AckSignature))

	msg := gainSetup()
	msg.EntryPoint = 50
	err := h.ctl.Setup(h.ctx, msg)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
	assert.Empty(t, h.acks)
	assert.Equal(t, StateFailed, h.boot.State())

	select {
	case reported := <-h.boot.Errors():
		assert.Equal(t, err, reported)
	case <-time.After(5 * time.Second):
		t.Fatal("failure not reported")
	}

	p, err := h.boot.NewProcessor(h.ctx, "gain")
	require.Error(t, err)
	require.NotNil(t, p)
	assert.False(t, p.Ready())
	out := block(2, 7)
	assert.False(t, p.Process(h.ctx, block(2, 1), out, nil))
	assert.Equal(t, float32(7), out[0][0][0])
}

func TestSetup_InvalidMessage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SetupMessage)
	}{
		{"empty type", func(m *SetupMessage) { m.ProcessorType = "" }},
		{"zero frames", func(m *SetupMessage) { m.FramesPerBlock = 0 }},
		{"duplicate param", func(m *SetupMessage) { m.Params = append(m.Params, m.Params[0]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			msg := gainSetup()
			tt.mutate(&msg)
			err := h.ctl.Setup(h.ctx, msg)
			require.Error(t, err)
			assert.Equal(t, StateFailed, h.boot.State())
		})
	}
}

func TestSetup_Twice(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.ctl.Setup(h.ctx, gainSetup()))

	p, err := h.boot.NewProcessor(h.ctx, "gain")
	require.NoError(t, err)

	msg := gainSetup()
	msg.ProcessorType = "other"
	err = h.ctl.Setup(h.ctx, msg)
	require.Error(t, err)
	protocol := errors.New(errors.PhaseSetup, errors.KindProtocol).Build()
	assert.True(t, stderrors.Is(err, protocol))
	assert.Len(t, h.acks, 1)

	// the stray message is reported but ready stays ready
	assert.Equal(t, StateReady, h.boot.State())
	assert.NoError(t, h.boot.Failure())
	select {
	case reported := <-h.boot.Errors():
		assert.True(t, stderrors.Is(reported, protocol))
	default:
		t.Fatal("protocol violation not reported")
	}

	assert.True(t, p.Ready())
	again, err := h.boot.NewProcessor(h.ctx, "gain")
	require.NoError(t, err)
	assert.True(t, again.Ready())

	_, err = h.boot.NewProcessor(h.ctx, "other")
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindNotFound).Build()))
}

func TestSetup_AfterFailure(t *testing.T) {
	h := newHarness(t, Options{})
	bad := gainSetup()
	bad.FramesPerBlock = 0
	require.Error(t, h.ctl.Setup(h.ctx, bad))
	require.Equal(t, StateFailed, h.boot.State())
	first := h.boot.Failure()

	err := h.ctl.Setup(h.ctx, gainSetup())
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindProtocol).Build()))
	assert.Equal(t, StateFailed, h.boot.State())
	assert.Equal(t, first, h.boot.Failure())
	assert.Empty(t, h.acks)
}

func TestNewProcessor_BeforeSetup(t *testing.T) {
	inst := newInstance(t)
	wp, _ := NewPortPair(1)
	boot := New(inst, wp, Options{SilenceMode: processor.SilenceZero})

	p, err := boot.NewProcessor(context.Background(), "gain")
	assert.True(t, stderrors.Is(err, errors.ErrNotReady))
	require.NotNil(t, p)

	out := block(1, 3)
	assert.False(t, p.Process(context.Background(), block(1, 1), out, nil))
	assert.Equal(t, float32(0), out[0][0][5])
}

func TestNewProcessor_UnknownType(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.ctl.Setup(h.ctx, gainSetup()))

	p, err := h.boot.NewProcessor(h.ctx, "reverb")
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindNotFound).Build()))
	assert.False(t, p.Ready())
}

func TestNewProcessorWithLayout(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.ctl.Setup(h.ctx, gainSetup()))

	before := h.inst.MemorySize()
	p, err := h.boot.NewProcessorWithLayout(h.ctx, "gain", []uint32{1}, []uint32{1})
	require.NoError(t, err)
	assert.Greater(t, h.inst.MemorySize(), before)

	out := block(1, 0)
	require.True(t, p.Process(h.ctx, block(1, 1), out, nil))
	assert.Equal(t, float32(1), out[0][0][0])
}

func TestBootstrap_Callback(t *testing.T) {
	inst := newInstance(t)
	wp, _ := NewPortPair(1)
	boot := New(inst, wp, Options{})
	ctx := context.Background()

	require.NoError(t, boot.Handle(ctx, CallbackMessage{Callback: wasmtest.HandleAck, Args: []uint64{5, 0, 9}}))
	got, err := inst.Memory().ReadU32(wasmtest.AckMailbox)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got)

	err = boot.Handle(ctx, CallbackMessage{Callback: wasmtest.HandleAck, Args: []uint64{1 << 40, 0, 0}})
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseSetup, errors.KindInvalidInput).Build()))

	err = boot.Handle(ctx, FailureMessage{})
	assert.Error(t, err)
	assert.Equal(t, StateUninitialized, boot.State())
	assert.Len(t, boot.Errors(), 2)
}

func TestPort(t *testing.T) {
	ctx := context.Background()
	a, b := NewPortPair(2)

	require.NoError(t, a.Post(ctx, CallbackMessage{Callback: 1}))
	msg, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, CallbackMessage{Callback: 1}, msg)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = a.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	a.Close()
	a.Close()
	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServe_PeerClosed(t *testing.T) {
	inst := newInstance(t)
	wp, mp := NewPortPair(1)
	boot := New(inst, wp, Options{})
	mp.Close()
	assert.NoError(t, boot.Serve(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
