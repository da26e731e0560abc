package errors

import (
	"fmt"
	"strings"
)

// Phase names the stage of the bridge that raised an error.
type Phase string

const (
	PhaseSetup  Phase = "setup"  // bootstrap handshake
	PhaseEncode Phase = "encode" // host buffers to flat region
	PhaseDecode Phase = "decode" // flat region to host buffers
	PhaseInvoke Phase = "invoke" // entry point call
	PhaseArena  Phase = "arena"  // scratch allocation
	PhaseLoad   Phase = "load"   // engine module loading
	PhaseHost   Phase = "host"   // host module registration
	PhaseRender Phase = "render" // offline file rendering
)

// Kind categorizes the error.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindArenaExhausted    Kind = "arena_exhausted"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindDuplicate         Kind = "duplicate"
	KindProtocol          Kind = "protocol"
	KindInstantiation     Kind = "instantiation"
	KindUnsupported       Kind = "unsupported"
	KindConfiguration     Kind = "configuration"
)

// Sentinels for errors.Is. Matching is by Phase and Kind.
var (
	ErrConfiguration  = &Error{Phase: PhaseSetup, Kind: KindConfiguration}
	ErrArenaExhausted = &Error{Phase: PhaseArena, Kind: KindArenaExhausted}
	ErrNotReady       = &Error{Phase: PhaseSetup, Kind: KindNotInitialized}
)

// Error is the structured error returned by every package of the bridge.
type Error struct {
	Cause error
	Phase Phase
	Kind  Kind

	// Path locates the offending element, e.g. inputs.0.1 or params.gain.
	Path []string
	// Signature is the expected function type for signature errors.
	Signature string
	Detail    string
	// Bytes is the size involved in allocation and bounds errors.
	Bytes uint32
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Phase, e.Kind)
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Signature != "" {
		b.WriteString(" (want ")
		b.WriteString(e.Signature)
		b.WriteByte(')')
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Phase and Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

// New starts an error of the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Path sets the element path, e.g. "inputs", "0", "1".
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Signature(sig string) *Builder {
	b.err.Signature = sig
	return b
}

func (b *Builder) Bytes(n uint32) *Builder {
	b.err.Bytes = n
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message, formatting it when args are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	b.err.Detail = msg
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Configuration creates a fatal setup error. A processing unit that hits one
// never becomes ready.
func Configuration(detail string, cause error) *Error {
	return New(PhaseSetup, KindConfiguration).Detail(detail).Cause(cause).Build()
}

// Protocol reports a handshake message arriving out of order.
func Protocol(detail string) *Error {
	return New(PhaseSetup, KindProtocol).Detail(detail).Build()
}

// SignatureMismatch reports an export whose core signature differs from the
// one the bridge calls it with.
func SignatureMismatch(name, want, got string) *Error {
	return New(PhaseSetup, KindSignatureMismatch).
		Path(name).
		Signature(want).
		Detail("core signature %s", got).
		Build()
}

// ArenaExhausted reports a scratch request larger than what is left.
func ArenaExhausted(requested, available uint32) *Error {
	return New(PhaseArena, KindArenaExhausted).
		Bytes(requested).
		Detail("requested %d bytes, %d available", requested, available).
		Build()
}

func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return New(phase, KindAllocation).
		Bytes(size).
		Detail("allocate %d bytes", size).
		Cause(cause).
		Build()
}

func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return New(phase, KindOutOfBounds).
		Bytes(length).
		Detail("offset=%d length=%d", offset, length).
		Build()
}

func InvalidInput(phase Phase, path []string, detail string) *Error {
	return New(phase, KindInvalidInput).Path(path...).Detail(detail).Build()
}

func InvalidData(phase Phase, detail string) *Error {
	return New(phase, KindInvalidData).Detail(detail).Build()
}

func NotFound(phase Phase, what, name string) *Error {
	return New(phase, KindNotFound).Detail("%s %q not found", what, name).Build()
}

func NotInitialized(phase Phase, what string) *Error {
	return New(phase, KindNotInitialized).Detail("%s not initialized", what).Build()
}

func Duplicate(phase Phase, what, name string) *Error {
	return New(phase, KindDuplicate).Detail("%s %q already registered", what, name).Build()
}

func Unsupported(phase Phase, what string) *Error {
	return New(phase, KindUnsupported).Detail(what).Build()
}

// Wrap attaches phase, kind and detail to an existing error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Detail(detail).Cause(cause).Build()
}

// Load reports a module that failed to compile or validate.
func Load(detail string, cause error) *Error {
	return Wrap(PhaseLoad, KindInvalidData, cause, detail)
}

func Instantiation(cause error) *Error {
	return Wrap(PhaseLoad, KindInstantiation, cause, "instantiate module")
}

// Registration reports a host function that could not be exported.
func Registration(module, name string, cause error) *Error {
	return New(PhaseHost, KindInstantiation).
		Path(module, name).
		Detail("register host function").
		Cause(cause).
		Build()
}
