package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  &Error{Phase: PhaseDecode, Kind: KindOutOfBounds},
			want: "[decode] out_of_bounds",
		},
		{
			name: "path and detail",
			err:  InvalidInput(PhaseEncode, []string{"inputs", "0", "1"}, "short channel"),
			want: "[encode] invalid_input at inputs.0.1: short channel",
		},
		{
			name: "signature",
			err:  SignatureMismatch("process", "(i32, i32, i32, i32, i32, i32, i32) -> i32", "() -> ()"),
			want: "[setup] signature_mismatch at process: core signature () -> () (want (i32, i32, i32, i32, i32, i32, i32) -> i32)",
		},
		{
			name: "cause",
			err:  Wrap(PhaseArena, KindAllocation, errors.New("stack full"), "reserve scratch"),
			want: "[arena] allocation: reserve scratch: stack full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Configuration("resolve entry point", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_IsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		target error
		want   bool
	}{
		{Configuration("x", nil), ErrConfiguration, true},
		{ArenaExhausted(10, 4), ErrArenaExhausted, true},
		{NotInitialized(PhaseSetup, "entry point"), ErrNotReady, true},
		{ArenaExhausted(10, 4), ErrConfiguration, false},
		{Protocol("setup after ready"), ErrConfiguration, false},
		{NotInitialized(PhaseInvoke, "table"), ErrNotReady, false},
	}

	for _, tt := range tests {
		if got := errors.Is(tt.err, tt.target); got != tt.want {
			t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.want)
		}
	}
}

func TestError_IsWrapped(t *testing.T) {
	inner := ArenaExhausted(64, 0)
	outer := Wrap(PhaseEncode, KindAllocation, inner, "allocate flat region")

	if !errors.Is(outer, ErrArenaExhausted) {
		t.Error("wrapped arena exhaustion should match sentinel")
	}

	var e *Error
	if !errors.As(outer, &e) {
		t.Fatal("errors.As should find *Error")
	}
	if e.Kind != KindAllocation {
		t.Errorf("outermost kind = %s, want %s", e.Kind, KindAllocation)
	}
}

func TestBuilder(t *testing.T) {
	b := New(PhaseEncode, KindInvalidInput).
		Path("params", "gain").
		Bytes(12).
		Detail("length %d not in {1, %d}", 3, 128)
	err := b.Build()

	if err.Detail != "length 3 not in {1, 128}" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Bytes != 12 {
		t.Errorf("bytes = %d", err.Bytes)
	}
	if !strings.Contains(err.Error(), "params.gain") {
		t.Errorf("path missing from %q", err.Error())
	}

	// Build copies, so later builder calls leave earlier errors alone.
	b.Detail("changed")
	if err.Detail == "changed" {
		t.Error("Build should return an independent error")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{ArenaExhausted(1, 0), PhaseArena, KindArenaExhausted},
		{AllocationFailed(PhaseArena, 8, nil), PhaseArena, KindAllocation},
		{OutOfBounds(PhaseDecode, 4, 8), PhaseDecode, KindOutOfBounds},
		{InvalidData(PhaseDecode, "bad"), PhaseDecode, KindInvalidData},
		{NotFound(PhaseSetup, "export", "process"), PhaseSetup, KindNotFound},
		{Duplicate(PhaseSetup, "processor", "gain"), PhaseSetup, KindDuplicate},
		{Unsupported(PhaseRender, "flac"), PhaseRender, KindUnsupported},
		{Load("compile", nil), PhaseLoad, KindInvalidData},
		{Instantiation(nil), PhaseLoad, KindInstantiation},
		{Registration("env", "emscripten_notify_memory_growth", nil), PhaseHost, KindInstantiation},
	}

	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%v: got %s/%s, want %s/%s", tt.err, tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}

	if got := ArenaExhausted(96, 32).Bytes; got != 96 {
		t.Errorf("ArenaExhausted bytes = %d, want 96", got)
	}
	if got := Registration("env", "abort", nil).Path; strings.Join(got, ".") != "env.abort" {
		t.Errorf("Registration path = %v", got)
	}
}
