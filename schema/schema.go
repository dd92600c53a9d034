// Package schema describes task argument shapes.
//
// A Schema is an ordered set of named, typed fields declared once at task
// definition time and immutable afterwards. It drives the two validation
// regimes of the argument pipeline: Build checks caller input strictly at
// submission, Coerce converts wire payloads permissively at dispatch.
// Serialization never coerces; deserialization always does.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind enumerates the semantic field types a schema can declare.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindEnum   Kind = "enum"
	KindArray  Kind = "array"
	KindMap    Kind = "map"
	KindObject Kind = "object"
)

// Type describes the shape of a single field value. Exactly one of the
// auxiliary members is meaningful depending on Kind: Values for enums,
// Elem for arrays and maps, Fields for nested objects.
type Type struct {
	Kind   Kind
	Values []string // enum members, KindEnum only
	Elem   *Type    // element type, KindArray and KindMap only
	Fields *Schema  // nested schema, KindObject only
}

// ──────────────────────────────────────────────────
// Type constructors
// ──────────────────────────────────────────────────

// StringType describes a string value.
func StringType() Type { return Type{Kind: KindString} }

// IntType describes an integer value, normalized to int64.
func IntType() Type { return Type{Kind: KindInt} }

// FloatType describes a floating-point value, normalized to float64.
func FloatType() Type { return Type{Kind: KindFloat} }

// BoolType describes a boolean value.
func BoolType() Type { return Type{Kind: KindBool} }

// EnumType describes a string value restricted to the given members.
func EnumType(values ...string) Type { return Type{Kind: KindEnum, Values: values} }

// ArrayType describes an ordered list with elements of elem.
func ArrayType(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }

// MapType describes a string-keyed mapping with values of elem.
func MapType(elem Type) Type { return Type{Kind: KindMap, Elem: &elem} }

// ObjectType describes a nested value conforming to its own schema.
func ObjectType(fields *Schema) Type { return Type{Kind: KindObject, Fields: fields} }

// ──────────────────────────────────────────────────
// Fields
// ──────────────────────────────────────────────────

// Field is one named slot in a schema. A field is required unless it has
// been marked optional or given a default; required fields must be present
// at submission time, optional fields fall back to their default.
type Field struct {
	Name string
	Type Type

	optional    bool
	defaultVal  any
	defaultFunc func() any
}

// String declares a required string field.
func String(name string) Field { return Field{Name: name, Type: StringType()} }

// Int declares a required integer field.
func Int(name string) Field { return Field{Name: name, Type: IntType()} }

// Float declares a required float field.
func Float(name string) Field { return Field{Name: name, Type: FloatType()} }

// Bool declares a required boolean field.
func Bool(name string) Field { return Field{Name: name, Type: BoolType()} }

// Enum declares a required field restricted to the given members.
func Enum(name string, values ...string) Field {
	return Field{Name: name, Type: EnumType(values...)}
}

// Array declares a required list field with elements of elem.
func Array(name string, elem Type) Field {
	return Field{Name: name, Type: ArrayType(elem)}
}

// Map declares a required string-keyed mapping field with values of elem.
func Map(name string, elem Type) Field {
	return Field{Name: name, Type: MapType(elem)}
}

// Object declares a required nested field conforming to fields.
func Object(name string, fields *Schema) Field {
	return Field{Name: name, Type: ObjectType(fields)}
}

// Optional marks the field as omissible. An absent optional field without
// an explicit default takes the value nil.
func (f Field) Optional() Field {
	f.optional = true
	return f
}

// Default marks the field as omissible with the given fallback value.
// The value must satisfy the field's type; Validate reports a default
// that does not.
func (f Field) Default(v any) Field {
	f.optional = true
	f.defaultVal = v
	return f
}

// DefaultFunc marks the field as omissible with a fallback produced by fn
// at build time. fn is evaluated once per construction, never cached.
func (f Field) DefaultFunc(fn func() any) Field {
	f.optional = true
	f.defaultFunc = fn
	return f
}

// IsOptional reports whether the field may be omitted at submission.
func (f Field) IsOptional() bool { return f.optional }

// DefaultValue returns the value an absent field falls back to. ok is
// false for required fields, which have no fallback.
func (f Field) DefaultValue() (v any, ok bool) {
	if !f.optional {
		return nil, false
	}
	if f.defaultFunc != nil {
		return f.defaultFunc(), true
	}
	return f.defaultVal, true
}

// ──────────────────────────────────────────────────
// Schema
// ──────────────────────────────────────────────────

// Schema is an ordered, immutable set of fields. The zero value is not
// usable; construct with New. A nil *Schema means the task declares no
// arguments at all.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New creates a schema from the given fields in declaration order.
// Structural problems (duplicate names, enums without members) are not
// reported here but by Validate, which the pipeline calls on first use.
func New(fields ...Field) *Schema {
	s := &Schema{
		fields: slices.Clone(fields),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, ok := s.index[f.Name]; !ok {
			s.index[f.Name] = i
		}
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	return slices.Clone(s.fields)
}

// Field returns the named field. Returns false if not declared.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Validate checks the schema's structure: field names must be unique and
// non-empty, enums must declare members, arrays and maps must declare an
// element type, objects must carry a nested schema, and literal defaults
// must satisfy their field's type. A nil schema is valid and means no
// arguments.
func (s *Schema) Validate() error {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		if f.Name == "" {
			return errors.New("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if err := validateType(f.Type); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.defaultVal != nil {
			if _, err := checkValue(f.Type, f.defaultVal); err != nil {
				return fmt.Errorf("field %q: invalid default: %w", f.Name, err)
			}
		}
	}
	return nil
}

func validateType(t Type) error {
	switch t.Kind {
	case KindString, KindInt, KindFloat, KindBool:
		return nil
	case KindEnum:
		if len(t.Values) == 0 {
			return errors.New("enum declares no members")
		}
		seen := make(map[string]bool, len(t.Values))
		for _, v := range t.Values {
			if seen[v] {
				return fmt.Errorf("enum member %q declared twice", v)
			}
			seen[v] = true
		}
		return nil
	case KindArray, KindMap:
		if t.Elem == nil {
			return fmt.Errorf("%s declares no element type", t.Kind)
		}
		return validateType(*t.Elem)
	case KindObject:
		if t.Fields == nil {
			return fmt.Errorf("object declares no nested schema")
		}
		return t.Fields.Validate()
	default:
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
}

// describeType renders a short human-readable form for error messages.
func describeType(t Type) string {
	switch t.Kind {
	case KindEnum:
		return "enum(" + strings.Join(t.Values, ", ") + ")"
	case KindArray:
		if t.Elem != nil {
			return "array of " + describeType(*t.Elem)
		}
		return "array"
	case KindMap:
		if t.Elem != nil {
			return "map of " + describeType(*t.Elem)
		}
		return "map"
	default:
		return string(t.Kind)
	}
}
