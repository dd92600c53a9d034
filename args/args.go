// Package args implements the coercion and serialization adapter between
// task schemas and the wire.
//
// Build validates caller input strictly at submission time. Encode turns
// the result into a wire payload. Decode reconstructs typed arguments from
// a payload with permissive coercion. The asymmetry is deliberate:
// arguments are strictly typed by construction on the way out, while wire
// transport loses type fidelity on the way in, so only Decode coerces.
package args

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/xraph/courier/schema"
	"github.com/xraph/courier/wire"
)

// Args is one typed argument set conforming to a schema. Values are held
// in canonical form: int64 for integers, float64 for floats, []any for
// arrays, map[string]any for maps and nested objects. A nil *Args means
// the task declares no arguments; every method tolerates a nil receiver.
type Args struct {
	schema *schema.Schema
	values map[string]any
}

// Build validates raw named arguments strictly against s and returns the
// typed result. A nil schema means the task takes no arguments: raw is
// accepted and silently ignored, and the result is nil. Unknown keys,
// missing required fields, and type mismatches are errors.
func Build(s *schema.Schema, raw map[string]any) (*Args, error) {
	if s == nil {
		return nil, nil
	}
	values, err := s.Build(raw)
	if err != nil {
		return nil, err
	}
	return &Args{schema: s, values: values}, nil
}

// Decode reconstructs typed arguments from a wire payload, coercing
// permissively. A nil schema returns nil regardless of payload contents.
func Decode(s *schema.Schema, payload wire.Payload) (*Args, error) {
	if s == nil {
		return nil, nil
	}
	values, err := s.Coerce(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize arguments: %w", err)
	}
	return &Args{schema: s, values: values}, nil
}

// Encode serializes the arguments into a wire payload with string keys
// forced recursively. A nil receiver yields an empty payload, never an
// error, so argument-less tasks submit cleanly.
func (a *Args) Encode() (wire.Payload, error) {
	if a == nil {
		return wire.Payload{}, nil
	}
	payload, err := wire.Normalize(a.values)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize arguments: %w", err)
	}
	return payload, nil
}

// Schema returns the schema these arguments conform to.
func (a *Args) Schema() *schema.Schema {
	if a == nil {
		return nil
	}
	return a.schema
}

// Len returns the number of argument values held.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Has reports whether the named argument is present.
func (a *Args) Has(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.values[name]
	return ok
}

// Get returns the named argument value in canonical form.
func (a *Args) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[name]
	return v, ok
}

// String returns the named string argument, or "" when absent or not a
// string.
func (a *Args) String(name string) string {
	v, _ := a.Get(name)
	s, _ := v.(string)
	return s
}

// Int returns the named integer argument, or 0 when absent.
func (a *Args) Int(name string) int64 {
	v, _ := a.Get(name)
	n, _ := v.(int64)
	return n
}

// Float returns the named float argument, or 0 when absent.
func (a *Args) Float(name string) float64 {
	v, _ := a.Get(name)
	f, _ := v.(float64)
	return f
}

// Bool returns the named boolean argument, or false when absent.
func (a *Args) Bool(name string) bool {
	v, _ := a.Get(name)
	b, _ := v.(bool)
	return b
}

// Slice returns the named array argument, or nil when absent.
func (a *Args) Slice(name string) []any {
	v, _ := a.Get(name)
	s, _ := v.([]any)
	return s
}

// Map returns the named map or object argument, or nil when absent.
func (a *Args) Map(name string) map[string]any {
	v, _ := a.Get(name)
	m, _ := v.(map[string]any)
	return m
}

// Values returns a shallow copy of all argument values keyed by field
// name, the bundled form of the argument set.
func (a *Args) Values() map[string]any {
	if a == nil {
		return nil
	}
	return maps.Clone(a.values)
}

// Bind decodes the argument values into dst, a pointer to a struct.
// Fields are matched by "json" tag, falling back to the field name.
// Numeric kinds convert weakly so canonical int64 values fill plain int
// fields.
func (a *Args) Bind(dst any) error {
	if a == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(a.values)
}

// Equal reports field-for-field equality of two argument sets. Two nil
// sets are equal.
func Equal(a, b *Args) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a.values, b.values)
}
