package gomanager

import (
	"fmt"
	"reflect"
	"time"

	"github.com/samber/lo"
)

// FieldKind defines the semantic type of a resource field.
type FieldKind string

const (
	FieldString   FieldKind = "string"
	FieldInteger  FieldKind = "integer"
	FieldNumber   FieldKind = "number"
	FieldBoolean  FieldKind = "boolean"
	FieldArray    FieldKind = "array"
	FieldObject   FieldKind = "object"
	FieldDate     FieldKind = "date"
	FieldDateTime FieldKind = "date-time"

	// FieldCustom covers every kind the manager has no built-in knowledge
	// of, e.g. relations. Custom fields are neither sortable nor filterable
	// by default.
	FieldCustom FieldKind = "custom"
)

var _knownFieldKinds = []FieldKind{
	FieldString, FieldInteger, FieldNumber, FieldBoolean,
	FieldArray, FieldObject, FieldDate, FieldDateTime, FieldCustom,
}

func (k FieldKind) Valid() bool {
	return lo.Contains(_knownFieldKinds, k)
}

// JSONType returns the JSON type a value of this kind is represented with.
// Key converters use it as their matcher type.
func (k FieldKind) JSONType() string {
	switch k {
	case FieldDate, FieldDateTime:
		return "object"
	case FieldCustom:
		return ""
	default:
		return string(k)
	}
}

// Field describes one attribute of a resource.
type Field struct {
	Name string
	Kind FieldKind
	// Attribute is the storage attribute (column, key) backing the field.
	// Empty means the field name is used.
	Attribute string
	ReadOnly  bool
}

// StorageAttribute returns the attribute the field is stored under.
func (f *Field) StorageAttribute() string {
	if f.Attribute != "" {
		return f.Attribute
	}

	return f.Name
}

// Schema is an ordered set of fields.
type Schema struct {
	fields []*Field
	byName map[string]*Field
}

// NewSchema builds a schema keeping the declaration order of fields.
// Duplicate field names are a configuration error.
func NewSchema(fields ...*Field) (*Schema, error) {
	s := &Schema{
		fields: make([]*Field, 0, len(fields)),
		byName: make(map[string]*Field, len(fields)),
	}

	for _, f := range fields {
		if f == nil || f.Name == "" {
			return nil, newConfigurationError("field name must not be empty")
		}
		if _, ok := s.byName[f.Name]; ok {
			return nil, newConfigurationError("duplicate field '%s'", f.Name)
		}
		if f.Kind == "" {
			f.Kind = FieldCustom
		}
		if !f.Kind.Valid() {
			return nil, newConfigurationError("unknown kind '%s' of field '%s'", f.Kind, f.Name)
		}

		s.fields = append(s.fields, f)
		s.byName[f.Name] = f
	}

	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(fields ...*Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}

	return s
}

// Fields returns fields in declaration order.
func (s *Schema) Fields() []*Field {
	if s == nil {
		return nil
	}

	return s.fields
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (*Field, bool) {
	if s == nil {
		return nil, false
	}

	f, ok := s.byName[name]
	return f, ok
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	return lo.Map(s.Fields(), func(f *Field, _ int) string { return f.Name })
}

// Date is a calendar date without a time of day. It exists so that date
// and date-time values can be told apart when a field kind is inferred
// from a Go value.
type Date struct {
	time.Time
}

// NewDate truncates t to midnight UTC of the same calendar day.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

var (
	_dateType = reflect.TypeOf(Date{})
	_timeType = reflect.TypeOf(time.Time{})
)

// FieldKindOf infers a field kind from a Go value.
func FieldKindOf(v any) (FieldKind, error) {
	if v == nil {
		return "", newConfigurationError("no appropriate field kind for nil value")
	}

	return FieldKindForType(reflect.TypeOf(v))
}

// FieldKindForType maps a Go type to a field kind. Pointer types are
// dereferenced. Types outside of the known set are a configuration error.
func FieldKindForType(t reflect.Type) (FieldKind, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "", newConfigurationError("no appropriate field kind for nil type")
	}

	switch t {
	case _dateType:
		return FieldDate, nil
	case _timeType:
		return FieldDateTime, nil
	}

	switch t.Kind() {
	case reflect.String:
		return FieldString, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldInteger, nil
	case reflect.Float32, reflect.Float64:
		return FieldNumber, nil
	case reflect.Bool:
		return FieldBoolean, nil
	case reflect.Slice, reflect.Array:
		return FieldArray, nil
	case reflect.Map:
		return FieldObject, nil
	default:
		return "", newConfigurationError("no appropriate field kind for '%s' type found", t)
	}
}

// String implements fmt.Stringer.
func (f *Field) String() string {
	if f == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s(%s)", f.Name, f.Kind)
}
