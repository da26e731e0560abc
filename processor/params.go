package processor

import (
	"math"

	"github.com/wippyai/wasm-worklet/errors"
)

// Rate says how many values a parameter may carry per block.
type Rate uint8

const (
	// ARate parameters accept one value or a full block of per-sample values.
	ARate Rate = iota
	// KRate parameters accept a single value per block.
	KRate
)

func (r Rate) String() string {
	switch r {
	case ARate:
		return "a-rate"
	case KRate:
		return "k-rate"
	default:
		return "unknown"
	}
}

// ParamDescriptor declares one automation parameter.
type ParamDescriptor struct {
	Name    string
	Min     float32
	Max     float32
	Default float32
	Rate    Rate
}

// Validate checks the name and that Min <= Default <= Max.
func (d ParamDescriptor) Validate() error {
	if d.Name == "" {
		return errors.InvalidInput(errors.PhaseSetup, []string{"params"}, "parameter name is empty")
	}
	if isNaN(d.Min) || isNaN(d.Max) || isNaN(d.Default) {
		return errors.InvalidInput(errors.PhaseSetup, []string{"params", d.Name}, "range contains NaN")
	}
	if d.Min > d.Max {
		return errors.New(errors.PhaseSetup, errors.KindInvalidInput).
			Path("params", d.Name).
			Detail("min %g above max %g", d.Min, d.Max).
			Build()
	}
	if d.Default < d.Min || d.Default > d.Max {
		return errors.New(errors.PhaseSetup, errors.KindInvalidInput).
			Path("params", d.Name).
			Detail("default %g outside [%g, %g]", d.Default, d.Min, d.Max).
			Build()
	}
	if d.Rate > KRate {
		return errors.InvalidInput(errors.PhaseSetup, []string{"params", d.Name}, "unknown rate")
	}
	return nil
}

// Clamp restricts v to [Min, Max]. NaN becomes Default.
func (d ParamDescriptor) Clamp(v float32) float32 {
	switch {
	case isNaN(v):
		return d.Default
	case v < d.Min:
		return d.Min
	case v > d.Max:
		return d.Max
	default:
		return v
	}
}

// Normalize maps a plain value in [Min, Max] to [0, 1].
func (d ParamDescriptor) Normalize(v float32) float32 {
	if d.Max <= d.Min {
		return 0
	}
	return (d.Clamp(v) - d.Min) / (d.Max - d.Min)
}

// Denormalize maps [0, 1] back to [Min, Max].
func (d ParamDescriptor) Denormalize(n float32) float32 {
	n = min(max(n, 0), 1)
	return d.Min + n*(d.Max-d.Min)
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}

// ParamSet is the ordered parameter descriptor set fixed at setup. Values
// are encoded into the flat region in this order.
type ParamSet []ParamDescriptor

// NewParamSet validates descs and rejects duplicate names.
func NewParamSet(descs ...ParamDescriptor) (ParamSet, error) {
	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, errors.Duplicate(errors.PhaseSetup, "parameter", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return append(ParamSet(nil), descs...), nil
}

// Index returns the position of name, or -1.
func (s ParamSet) Index(name string) int {
	for i, d := range s {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// Names returns parameter names in order.
func (s ParamSet) Names() []string {
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.Name
	}
	return names
}

// Defaults returns a name to default value map, one value per parameter.
func (s ParamSet) Defaults() map[string][]float32 {
	m := make(map[string][]float32, len(s))
	for _, d := range s {
		m[d.Name] = []float32{d.Default}
	}
	return m
}
