package gomanager

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type (
	// ResourcesConfig is the YAML document of resource definitions.
	ResourcesConfig struct {
		Resources []ResourceConfig `yaml:"resources" validate:"dive"`
	}

	ResourceConfig struct {
		Name        string                  `yaml:"name" validate:"required,excludesall=/"`
		IDAttribute string                  `yaml:"id_attribute"`
		IDType      string                  `yaml:"id_type" validate:"omitempty,oneof=integer string"`
		NaturalKey  NaturalKeyConfig        `yaml:"natural_key"`
		Filters     map[string][]Comparator `yaml:"filters"`
		Fields      []FieldConfig           `yaml:"fields" validate:"required,min=1,dive"`
	}

	FieldConfig struct {
		Name      string `yaml:"name" validate:"required"`
		Type      string `yaml:"type" validate:"required,oneof=string integer number boolean array object date date-time custom"`
		Attribute string `yaml:"attribute"`
		ReadOnly  bool   `yaml:"read_only"`
	}

	// NaturalKeyConfig accepts either a property name or a list of property
	// names.
	NaturalKeyConfig struct {
		Properties []string
		Composite  bool
	}
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *NaturalKeyConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var property string
		if err := value.Decode(&property); err != nil {
			return err
		}

		n.Properties = []string{property}
		n.Composite = false
	case yaml.SequenceNode:
		if err := value.Decode(&n.Properties); err != nil {
			return err
		}

		n.Composite = true
	default:
		return fmt.Errorf("natural key must be a property name or a list of property names")
	}

	return nil
}

var _validate = validator.New(validator.WithRequiredStructEnabled())

// LoadResources reads resource definitions from YAML.
//
// Example:
//
//	resources:
//	  - name: users
//	    natural_key: email
//	    filters:
//	      "*": [eq]
//	      name: [eq, contains]
//	    fields:
//	      - {name: email, type: string}
//	      - {name: name, type: string, attribute: full_name}
func LoadResources(r io.Reader) ([]*Resource, error) {
	var cfg ResourcesConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, newConfigurationError("cannot decode resources: %s", err)
	}

	if err := _validate.Struct(cfg); err != nil {
		return nil, newConfigurationError("invalid resources: %s", err)
	}

	names := lo.Map(cfg.Resources, func(rc ResourceConfig, _ int) string { return rc.Name })
	if duplicates := lo.FindDuplicates(names); len(duplicates) > 0 {
		return nil, newConfigurationError("duplicate resources %v", duplicates)
	}

	ret := make([]*Resource, 0, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		resource, err := rc.Resource()
		if err != nil {
			return nil, err
		}

		ret = append(ret, resource)
	}

	return ret, nil
}

// Resource converts the definition into a resource.
func (rc ResourceConfig) Resource() (*Resource, error) {
	fields := lo.Map(rc.Fields, func(fc FieldConfig, _ int) *Field {
		return &Field{
			Name:      fc.Name,
			Kind:      FieldKind(fc.Type),
			Attribute: fc.Attribute,
			ReadOnly:  fc.ReadOnly,
		}
	})

	schema, err := NewSchema(fields...)
	if err != nil {
		return nil, fmt.Errorf("resource '%s': %w", rc.Name, err)
	}

	var allowed AllowedFilters
	if rc.Filters != nil {
		allowed = make(AllowedFilters, len(rc.Filters))
		for field, comparators := range rc.Filters {
			if _, ok := schema.Field(field); !ok && field != AnyField {
				return nil, newConfigurationError("filters of '%s' name unknown field '%s'", rc.Name, field)
			}

			for _, c := range comparators {
				if !c.Valid() {
					return nil, newConfigurationError("unknown comparator '%s' in filters of '%s'", c, rc.Name)
				}
			}

			allowed[field] = comparators
		}
	}

	meta := Meta{
		Name:        rc.Name,
		IDAttribute: rc.IDAttribute,
		IDKind:      FieldKind(rc.IDType),
		Filters:     allowed,
	}
	if len(rc.NaturalKey.Properties) > 0 {
		meta.NaturalKey = &NaturalKey{
			Properties: rc.NaturalKey.Properties,
			Composite:  rc.NaturalKey.Composite,
		}
	}

	return NewResource(meta, schema), nil
}
