// Package wire defines the string-keyed payload representation that flows
// through the broker. A payload holds only JSON-compatible values: strings,
// numbers, booleans, nil, arrays, and nested string-keyed maps. Brokers
// treat payloads as opaque blobs; only the argument pipeline interprets
// them.
package wire

import (
	"fmt"
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// Payload is one serialized argument set, keyed by field name.
type Payload map[string]any

// Normalize deep-copies raw into wire-safe form. Map keys are forced to
// their string form recursively, integer widths collapse to int64, and
// float32 widens to float64. Values outside the JSON-compatible set, such
// as channels, functions, or structs, are an error. A nil input yields an
// empty payload.
func Normalize(raw map[string]any) (Payload, error) {
	out := make(Payload, len(raw))
	for key, val := range raw {
		nv, err := normalizeValue(val)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case string:
		return n, nil
	case bool:
		return n, nil
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
		return normalizeUint(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return normalizeUint(n)
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			nv, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := cast.ToStringE(iter.Key().Interface())
			if err != nil {
				return nil, fmt.Errorf("map key %v: %w", iter.Key().Interface(), err)
			}
			nv, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func normalizeUint(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("value %d overflows int64", n)
	}
	return int64(n), nil
}

// Clone returns a deep copy of p so brokers can hand payloads to
// consumers without sharing mutable state. A nil payload clones to nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for key, val := range p {
		out[key] = cloneValue(val)
	}
	return out
}

func cloneValue(v any) any {
	switch n := v.(type) {
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
