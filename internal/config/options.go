package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
)

// Range is the closed interval a control surface may set a parameter to.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp pins v into the range.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Control ranges exposed to operators (slider bounds).
var (
	WhiteThresholdRange      = Range{Min: 0.5, Max: 1.0}
	SaturationThresholdRange = Range{Min: 0, Max: 0.3}
	ToleranceRange           = Range{Min: 0, Max: 0.2}
	SmoothingRange           = Range{Min: 0, Max: 0.5}

	unitRange = Range{Min: 0, Max: 1}
)

// field binds an option name to its storage and control range.
type field struct {
	name  string
	alias string
	rng   Range
	ptr   func(*chroma.Options) *float64
}

var fields = []field{
	{"whiteThreshold", "white_threshold", WhiteThresholdRange,
		func(o *chroma.Options) *float64 { return &o.WhiteThreshold }},
	{"saturationThreshold", "saturation_threshold", SaturationThresholdRange,
		func(o *chroma.Options) *float64 { return &o.SaturationThreshold }},
	{"tolerance", "tolerance", ToleranceRange,
		func(o *chroma.Options) *float64 { return &o.Tolerance }},
	{"smoothing", "smoothing", SmoothingRange,
		func(o *chroma.Options) *float64 { return &o.Smoothing }},
}

// Ranges returns the control range of every option keyed by its name.
func Ranges() map[string]Range {
	out := make(map[string]Range, len(fields))
	for _, f := range fields {
		out[f.name] = f.rng
	}
	return out
}

// ValidateOptions checks that every option is a finite number in [0,1].
func ValidateOptions(o chroma.Options) error {
	for _, f := range fields {
		v := *f.ptr(&o)
		if math.IsNaN(v) || !unitRange.Contains(v) {
			return fmt.Errorf("%s must be within [0,1], got %v", f.name, v)
		}
	}
	return nil
}

// ClampOptions pins every option into its control range. NaN becomes the default.
func ClampOptions(o chroma.Options) chroma.Options {
	defaults := chroma.DefaultOptions()
	for _, f := range fields {
		p := f.ptr(&o)
		if math.IsNaN(*p) {
			*p = *f.ptr(&defaults)
			continue
		}
		*p = f.rng.Clamp(*p)
	}
	return o
}

// ApplyUpdate merges a partial update into base and returns the result with
// a human readable list of changes ("name: old → new").
//
// Keys may use camelCase or snake_case. Values must be numbers. Unknown keys
// are rejected so typos do not pass silently. When clamp is true values are
// pinned into the control ranges, otherwise they must lie in [0,1].
func ApplyUpdate(base chroma.Options, update map[string]interface{}, clamp bool) (chroma.Options, []string, error) {
	next := base
	changes := []string{}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f, ok := lookupField(key)
		if !ok {
			return base, nil, fmt.Errorf("unknown option %q", key)
		}

		v, ok := toFloat(update[key])
		if !ok {
			return base, nil, fmt.Errorf("option %q must be a number, got %T", key, update[key])
		}
		if clamp {
			v = f.rng.Clamp(v)
		}

		p := f.ptr(&next)
		if *p != v {
			changes = append(changes, fmt.Sprintf("%s: %g → %g", f.name, *p, v))
			*p = v
		}
	}

	if err := ValidateOptions(next); err != nil {
		return base, nil, err
	}
	return next, changes, nil
}

// OptionsMap renders options as a name → value map for status payloads.
func OptionsMap(o chroma.Options) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		out[f.name] = *f.ptr(&o)
	}
	return out
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if key == f.name || key == f.alias {
			return f, true
		}
	}
	return field{}, false
}

// toFloat accepts any numeric type JSON or msgpack decoding may produce.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
