package gomanager

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	MatcherTypeArray  = "array"
	MatcherTypeObject = "object"
)

// KeyConverter resolves values identifying an item of a resource. A
// resource has at most one converter per matcher type, the JSON type of the
// values the converter accepts.
type KeyConverter interface {
	MatcherType() string
	// Bind returns a copy of the converter resolved against the resource.
	Bind(resource *Resource) (KeyConverter, error)
}

// IDKeyConverter resolves a key value to the item id.
type IDKeyConverter interface {
	KeyConverter
	ResolveID(value any) (any, error)
}

// WhereKeyConverter resolves a key value to conditions selecting the item.
type WhereKeyConverter interface {
	KeyConverter
	ResolveWhere(value any) (Where, error)
}

// IDKey accepts the id itself.
type IDKey struct {
	kind FieldKind
}

func (k IDKey) MatcherType() string {
	return lo.Ternary(k.kind == "", FieldInteger, k.kind).JSONType()
}

func (k IDKey) Bind(resource *Resource) (KeyConverter, error) {
	return IDKey{kind: resource.Meta.IDKind}, nil
}

func (k IDKey) ResolveID(value any) (any, error) {
	if k.kind != FieldInteger {
		return value, nil
	}

	return toInteger(value)
}

// RefKey accepts references of the form {"$ref": "/<resource>/<id>"}.
type RefKey struct {
	prefix string
	kind   FieldKind
}

func (k RefKey) MatcherType() string {
	return MatcherTypeObject
}

func (k RefKey) Bind(resource *Resource) (KeyConverter, error) {
	return RefKey{prefix: resource.RoutePrefix() + "/", kind: resource.Meta.IDKind}, nil
}

func (k RefKey) ResolveID(value any) (any, error) {
	ref, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reference must be an object, got %T", value)
	}

	path, ok := ref["$ref"].(string)
	if !ok {
		return nil, fmt.Errorf("reference must contain a '$ref' string")
	}

	id, ok := strings.CutPrefix(path, k.prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("reference '%s' does not point to '%s'", path, k.prefix)
	}

	if k.kind == FieldInteger {
		return strconv.ParseInt(id, 10, 64)
	}

	return id, nil
}

// PropertyKey accepts the value of a single unique property.
type PropertyKey struct {
	Property string
	field    *Field
}

func (k PropertyKey) MatcherType() string {
	if k.field == nil {
		return ""
	}

	return k.field.Kind.JSONType()
}

func (k PropertyKey) Bind(resource *Resource) (KeyConverter, error) {
	field, ok := resource.Schema.Field(k.Property)
	if !ok {
		return nil, newConfigurationError("natural key property '%s' is not a field of %s", k.Property, resource.Name())
	}

	return PropertyKey{Property: k.Property, field: field}, nil
}

func (k PropertyKey) ResolveWhere(value any) (Where, error) {
	return Where{{Filter: NewFilter(ComparatorEq, k.field, k.field.Name), Value: value}}, nil
}

// PropertiesKey accepts a list of values of several properties that are
// unique together.
type PropertiesKey struct {
	Properties []string
	fields     []*Field
}

func (k PropertiesKey) MatcherType() string {
	return MatcherTypeArray
}

func (k PropertiesKey) Bind(resource *Resource) (KeyConverter, error) {
	fields := make([]*Field, 0, len(k.Properties))
	for _, property := range k.Properties {
		field, ok := resource.Schema.Field(property)
		if !ok {
			return nil, newConfigurationError("natural key property '%s' is not a field of %s", property, resource.Name())
		}

		fields = append(fields, field)
	}

	return PropertiesKey{Properties: k.Properties, fields: fields}, nil
}

func (k PropertiesKey) ResolveWhere(value any) (Where, error) {
	values, err := toSlice(value)
	if err != nil {
		return nil, err
	}
	if len(values) != len(k.fields) {
		return nil, fmt.Errorf("key requires %d values, got %d", len(k.fields), len(values))
	}

	return lo.Map(k.fields, func(field *Field, i int) Condition {
		return Condition{Filter: NewFilter(ComparatorEq, field, field.Name), Value: values[i]}
	}), nil
}

// matcherTypeOf returns the JSON type of a key value.
func matcherTypeOf(value any) string {
	kind, err := FieldKindOf(value)
	if err != nil {
		return ""
	}

	return kind.JSONType()
}

func toInteger(value any) (int64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("id '%v' is not an integer", value)
		}

		return int64(f), nil
	case reflect.String:
		return strconv.ParseInt(rv.String(), 10, 64)
	default:
		return 0, fmt.Errorf("id '%v' is not an integer", value)
	}
}

var (
	_ IDKeyConverter    = IDKey{}
	_ IDKeyConverter    = RefKey{}
	_ WhereKeyConverter = PropertyKey{}
	_ WhereKeyConverter = PropertiesKey{}
)
