package schema

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/spf13/cast"
)

// Coerce constructs the canonical field map from a wire payload,
// converting permissively: wire transport loses type fidelity, so "42"
// satisfies an int field, "true" a bool field, and an integer widens into
// a float field. Unknown keys are ignored. Missing optional fields fall
// back to their defaults; missing required fields are an error. Values
// already in canonical form pass through unchanged.
func (s *Schema) Coerce(raw map[string]any) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}

	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, present := raw[f.Name]
		if !present {
			def, ok := f.DefaultValue()
			if !ok {
				return nil, fmt.Errorf("missing required argument %q", f.Name)
			}
			if def == nil {
				out[f.Name] = nil
				continue
			}
			checked, err := checkValue(f.Type, def)
			if err != nil {
				return nil, fmt.Errorf("default for argument %q: %w", f.Name, err)
			}
			out[f.Name] = checked
			continue
		}

		if v == nil {
			if !f.IsOptional() {
				return nil, fmt.Errorf("argument %q: must not be nil", f.Name)
			}
			out[f.Name] = nil
			continue
		}

		coerced, err := coerceValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", f.Name, err)
		}
		out[f.Name] = coerced
	}
	return out, nil
}

// coerceValue converts v into the canonical representation for t,
// applying the permissive inbound conversions. Conversions that would
// lose information, like truncating a fractional float into an int
// field, are errors.
func coerceValue(t Type, v any) (any, error) {
	switch t.Kind {
	case KindString:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, coerceError(v, t)
		}
		return s, nil

	case KindInt:
		switch n := v.(type) {
		case float64:
			return floatToInt(n, v)
		case float32:
			return floatToInt(float64(n), v)
		}
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, coerceError(v, t)
		}
		return i, nil

	case KindFloat:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, coerceError(v, t)
		}
		return f, nil

	case KindBool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, coerceError(v, t)
		}
		return b, nil

	case KindEnum:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, coerceError(v, t)
		}
		if !slices.Contains(t.Values, s) {
			return nil, fmt.Errorf("value %q is not a member of %s", s, describeType(t))
		}
		return s, nil

	case KindArray:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, coerceError(v, t)
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			coerced, err := coerceValue(*t.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = coerced
		}
		return out, nil

	case KindMap:
		m, err := toStringMap(v, true)
		if err != nil {
			return nil, coerceError(v, t)
		}
		out := make(map[string]any, len(m))
		for key, val := range m {
			coerced, err := coerceValue(*t.Elem, val)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = coerced
		}
		return out, nil

	case KindObject:
		m, err := toStringMap(v, true)
		if err != nil {
			return nil, coerceError(v, t)
		}
		return t.Fields.Coerce(m)

	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

// floatToInt admits only integral floats into an int field. cast would
// silently truncate, which loses information the sender meant to keep.
func floatToInt(n float64, orig any) (any, error) {
	if n != math.Trunc(n) || n < math.MinInt64 || n > math.MaxInt64 {
		return nil, fmt.Errorf("cannot coerce %v to int", orig)
	}
	return int64(n), nil
}

func coerceError(v any, t Type) error {
	return fmt.Errorf("cannot coerce %#v to %s", v, describeType(t))
}
