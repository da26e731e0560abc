package engine

import (
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-worklet/errors"
)

// Signature is a WIT function type an engine export must lower to.
type Signature struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// Entry point signatures.
var (
	// ProcessSignature is the engine's per-block entry point. A true result
	// means output samples were written.
	ProcessSignature = MustParseSignature("process",
		"num-inputs: u32, inputs: u32, num-outputs: u32, outputs: u32, num-params: u32, params: u32, user-data: u32",
		"bool")

	// AckSignature is the setup acknowledgment callback, called with the
	// channel count hint, the ready flag and the user context handle.
	AckSignature = MustParseSignature("ack", "channels: u32, ready: u32, user-data: u32", "")
)

// ParseSignature builds a Signature from WIT parameter and result text,
// e.g. ParseSignature("gain", "x: f32, y: f32", "f32").
func ParseSignature(name, params, result string) (Signature, error) {
	sig := Signature{Name: name}
	for _, p := range splitList(params) {
		typStr := p
		if idx := strings.LastIndex(p, ":"); idx != -1 {
			typStr = strings.TrimSpace(p[idx+1:])
		}
		t, err := wit.ParseType(typStr)
		if err != nil {
			return Signature{}, errors.Wrap(errors.PhaseSetup, errors.KindInvalidData, err, "parse param type "+typStr)
		}
		sig.Params = append(sig.Params, t)
	}
	result = strings.TrimSpace(result)
	if result != "" && result != "()" {
		t, err := wit.ParseType(result)
		if err != nil {
			return Signature{}, errors.Wrap(errors.PhaseSetup, errors.KindInvalidData, err, "parse result type "+result)
		}
		sig.Results = []wit.Type{t}
	}
	return sig, nil
}

// MustParseSignature is ParseSignature that panics on error.
func MustParseSignature(name, params, result string) Signature {
	sig, err := ParseSignature(name, params, result)
	if err != nil {
		panic(err)
	}
	return sig
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Core lowers the signature to core wasm value types.
func (s Signature) Core() (params, results []api.ValueType, err error) {
	if params, err = lowerAll(s.Params); err != nil {
		return nil, nil, err
	}
	if results, err = lowerAll(s.Results); err != nil {
		return nil, nil, err
	}
	return params, results, nil
}

func lowerAll(types []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(types))
	for _, t := range types {
		vt, err := lower(t)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

func lower(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.Unsupported(errors.PhaseSetup, "non-scalar entry point type "+typeName(t))
	}
}

// StackSize is the CallWithStack buffer length the signature needs.
func (s Signature) StackSize() int {
	return max(len(s.Params), len(s.Results), 1)
}

// Check verifies that def lowers from s.
func (s Signature) Check(def api.FunctionDefinition) error {
	params, results, err := s.Core()
	if err != nil {
		return err
	}
	if !sameTypes(params, def.ParamTypes()) || !sameTypes(results, def.ResultTypes()) {
		return errors.SignatureMismatch(def.Name(), s.String(), coreString(def.ParamTypes(), def.ResultTypes()))
	}
	return nil
}

// DynCall returns the emscripten dynCall trampoline export for s,
// e.g. "dynCall_viii" for (u32, u32, u32) -> ().
func (s Signature) DynCall() (string, error) {
	params, results, err := s.Core()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("dynCall_")
	if len(results) == 0 {
		b.WriteByte('v')
	}
	for _, vt := range append(results, params...) {
		b.WriteByte(dynChar(vt))
	}
	return b.String(), nil
}

func dynChar(vt api.ValueType) byte {
	switch vt {
	case api.ValueTypeI64:
		return 'j'
	case api.ValueTypeF32:
		return 'f'
	case api.ValueTypeF64:
		return 'd'
	default:
		return 'i'
	}
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, t := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(typeName(t))
	}
	b.WriteString(")")
	if len(s.Results) > 0 {
		b.WriteString(" -> ")
		b.WriteString(typeName(s.Results[0]))
	}
	return b.String()
}

func typeName(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	default:
		return "<composite>"
	}
}

func coreString(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteString("(")
	for i, vt := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(vt))
	}
	b.WriteString(") -> (")
	for i, vt := range results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(vt))
	}
	b.WriteString(")")
	return b.String()
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
