package schema

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// Build constructs the canonical field map from raw named arguments,
// validating strictly: unknown keys, missing required fields, and type
// mismatches are all errors. No coercion happens here; a string "5" does
// not satisfy an int field at submission time. Integer values of any Go
// width are normalized to int64, floats to float64.
func (s *Schema) Build(raw map[string]any) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}

	var unknown []string
	for key := range raw {
		if _, ok := s.index[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown arguments: %s", strings.Join(unknown, ", "))
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

		checked, err := checkValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", f.Name, err)
		}
		out[f.Name] = checked
	}
	return out, nil
}

// checkValue validates v against t without conversion beyond numeric
// width normalization, returning the canonical representation.
func checkValue(t Type, v any) (any, error) {
	switch t.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case KindInt:
		return checkInt(v)

	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected float, got %T", v)
		}

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", describeType(t), v)
		}
		if !slices.Contains(t.Values, s) {
			return nil, fmt.Errorf("value %q is not a member of %s", s, describeType(t))
		}
		return s, nil

	case KindArray:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("expected %s, got %T", describeType(t), v)
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			checked, err := checkValue(*t.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = checked
		}
		return out, nil

	case KindMap:
		m, err := toStringMap(v, false)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(m))
		for key, val := range m {
			checked, err := checkValue(*t.Elem, val)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = checked
		}
		return out, nil

	case KindObject:
		m, err := toStringMap(v, false)
		if err != nil {
			return nil, err
		}
		return t.Fields.Build(m)

	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

func checkInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return checkUint(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return checkUint(n)
	default:
		return nil, fmt.Errorf("expected int, got %T", v)
	}
}

func checkUint(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("value %d overflows int64", n)
	}
	return int64(n), nil
}

// toStringMap converts any map value into map[string]any. With stringify
// set, non-string keys are rendered to their string form; otherwise they
// are an error.
func toStringMap(v any, stringify bool) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("expected map, got %T", v)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().Interface()
		ks, ok := key.(string)
		if !ok {
			if !stringify {
				return nil, fmt.Errorf("expected string map key, got %T", key)
			}
			ks = fmt.Sprint(key)
		}
		out[ks] = iter.Value().Interface()
	}
	return out, nil
}
