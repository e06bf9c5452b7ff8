package gomanager

import "strings"

const DefaultIDAttribute = "id"

// NaturalKey declares an alternate identifier made of one or more
// properties of a resource.
type NaturalKey struct {
	Properties []string
	// Composite keys are looked up with a list of values, one per property,
	// even when they consist of a single property.
	Composite bool
}

// PropertyNaturalKey declares a natural key made of a single property.
func PropertyNaturalKey(property string) *NaturalKey {
	return &NaturalKey{Properties: []string{property}}
}

// CompositeNaturalKey declares a natural key made of several properties.
func CompositeNaturalKey(properties ...string) *NaturalKey {
	return &NaturalKey{Properties: properties, Composite: true}
}

// Meta is the configuration of a resource.
type Meta struct {
	Name        string
	IDAttribute string
	IDKind      FieldKind
	// Filters is the allow-list of comparators per field.
	Filters    AllowedFilters
	NaturalKey *NaturalKey
	// KeyConverters resolve ids and natural keys. nil means RefKey and IDKey.
	KeyConverters []KeyConverter
}

// Resource is a declared schema together with its configuration.
type Resource struct {
	Schema *Schema
	Meta   Meta
}

// NewResource fills in the defaults of meta.
func NewResource(meta Meta, schema *Schema) *Resource {
	if meta.IDAttribute == "" {
		meta.IDAttribute = DefaultIDAttribute
	}
	if meta.IDKind == "" {
		meta.IDKind = FieldInteger
	}
	if meta.KeyConverters == nil {
		meta.KeyConverters = []KeyConverter{RefKey{}, IDKey{}}
	}
	if schema == nil {
		schema = MustSchema()
	}

	return &Resource{
		Schema: schema,
		Meta:   meta,
	}
}

// Name returns the resource name.
func (r *Resource) Name() string {
	if r == nil {
		return "<nil>"
	}

	return r.Meta.Name
}

// RoutePrefix returns the path items of the resource are referenced under.
func (r *Resource) RoutePrefix() string {
	return "/" + strings.Trim(r.Name(), "/")
}
