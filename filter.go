package gomanager

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/samber/lo"
)

// AnyField is the AllowedFilters key applied to fields that are not listed
// explicitly.
const AnyField = "*"

// AllowedFilters restricts the comparators exposed per field.
//
//   - nil: every applicable comparator for every field.
//   - field -> nil: every applicable comparator for that field.
//   - field -> list: the intersection of the list and the applicable set.
//
// Fields that are neither listed nor covered by AnyField get no filters.
type AllowedFilters map[string][]Comparator

func (a AllowedFilters) forField(name string) ([]Comparator, bool) {
	if a == nil {
		return nil, true
	}

	if comparators, ok := a[name]; ok {
		return comparators, true
	}

	comparators, ok := a[AnyField]
	return comparators, ok
}

// FiltersForFields returns, per field name, the comparators applicable to the
// field kind according to byKind and allowed by the allow-list. Comparators
// keep the order of FilterNames. Fields without comparators are omitted.
func FiltersForFields(
	fields []*Field,
	allowed AllowedFilters,
	byKind map[FieldKind][]Comparator,
) map[string][]Comparator {
	ret := make(map[string][]Comparator, len(fields))

	for _, field := range fields {
		allowedForField, ok := allowed.forField(field.Name)
		if !ok {
			continue
		}

		applicable := byKind[field.Kind]
		comparators := lo.Filter(FilterNames, func(c Comparator, _ int) bool {
			if !lo.Contains(applicable, c) {
				return false
			}

			return allowedForField == nil || lo.Contains(allowedForField, c)
		})

		if len(comparators) > 0 {
			ret[field.Name] = comparators
		}
	}

	return ret
}

// Filter is a comparator bound to a field and its storage attribute.
type Filter struct {
	Comparator Comparator
	Field      *Field
	Attribute  string
}

// NewFilter binds a comparator to a field. Field.Attribute takes precedence
// over the attribute argument.
func NewFilter(comparator Comparator, field *Field, attribute string) *Filter {
	if field.Attribute != "" {
		attribute = field.Attribute
	}

	return &Filter{
		Comparator: comparator,
		Field:      field,
		Attribute:  attribute,
	}
}

// Filters maps field name -> comparator -> filter.
type Filters map[string]map[Comparator]*Filter

// Get returns the filter for the field and comparator.
func (f Filters) Get(field string, comparator Comparator) (*Filter, bool) {
	byComparator, ok := f[field]
	if !ok {
		return nil, false
	}

	filter, ok := byComparator[comparator]
	return filter, ok
}

// Condition applies a filter to a value.
type Condition struct {
	Filter *Filter
	Value  any
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Filter.Attribute, c.Filter.Comparator, c.Value)
}

// Where is a conjunction of conditions. An empty Where matches everything.
type Where []Condition

func (w Where) String() string {
	if len(w) == 0 {
		return "TRUE"
	}

	return strings.Join(lo.Map(w, func(c Condition, _ int) string { return c.String() }), " AND ")
}

// Condition builds a condition from a field name and a comparator using the
// filters the manager exposes.
func (f Filters) Condition(field string, comparator Comparator, value any) (Condition, error) {
	filter, ok := f.Get(field, comparator)
	if !ok {
		return Condition{}, fmt.Errorf("filter '%s' is not available for field '%s'", comparator, field)
	}

	return Condition{Filter: filter, Value: value}, nil
}

// Match reports whether the item attribute value satisfies the condition.
// It is used by backends that evaluate conditions in process.
func (c Condition) Match(value any) (bool, error) {
	// Missing values are only handled by eq and ne.
	if value == nil && c.Filter.Comparator != ComparatorEq && c.Filter.Comparator != ComparatorNe {
		return false, nil
	}

	switch c.Filter.Comparator {
	case ComparatorEq:
		return valuesEqual(value, c.Value), nil
	case ComparatorNe:
		return !valuesEqual(value, c.Value), nil
	case ComparatorLT, ComparatorGT, ComparatorLTE, ComparatorGTE:
		res, err := compareValues(value, c.Value)
		if err != nil {
			return false, err
		}

		switch c.Filter.Comparator {
		case ComparatorLT:
			return res < 0, nil
		case ComparatorGT:
			return res > 0, nil
		case ComparatorLTE:
			return res <= 0, nil
		default:
			return res >= 0, nil
		}
	case ComparatorIn:
		candidates, err := toSlice(c.Value)
		if err != nil {
			return false, err
		}

		return lo.ContainsBy(candidates, func(candidate any) bool { return valuesEqual(value, candidate) }), nil
	case ComparatorBetween:
		bounds, err := toSlice(c.Value)
		if err != nil || len(bounds) != 2 {
			return false, fmt.Errorf("between requires exactly two bounds, got '%v'", c.Value)
		}

		lower, err := compareValues(value, bounds[0])
		if err != nil {
			return false, err
		}
		upper, err := compareValues(value, bounds[1])
		if err != nil {
			return false, err
		}

		return lower >= 0 && upper <= 0, nil
	case ComparatorContains:
		if items, err := toSlice(value); err == nil {
			return lo.ContainsBy(items, func(item any) bool { return valuesEqual(item, c.Value) }), nil
		}

		return matchString(value, c.Value, strings.Contains, false)
	case ComparatorIContains:
		return matchString(value, c.Value, strings.Contains, true)
	case ComparatorStartsWith:
		return matchString(value, c.Value, strings.HasPrefix, false)
	case ComparatorIStartsWith:
		return matchString(value, c.Value, strings.HasPrefix, true)
	case ComparatorEndsWith:
		return matchString(value, c.Value, strings.HasSuffix, false)
	case ComparatorIEndsWith:
		return matchString(value, c.Value, strings.HasSuffix, true)
	default:
		return false, fmt.Errorf("unknown comparator '%s'", c.Filter.Comparator)
	}
}

// Match reports whether every condition matches the attributes returned by
// get.
func (w Where) Match(get func(attribute string) any) (bool, error) {
	for _, condition := range w {
		ok, err := condition.Match(get(condition.Filter.Attribute))
		if err != nil {
			return false, fmt.Errorf("cannot match '%s': %w", condition, err)
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func matchString(value, pattern any, fn func(s, substr string) bool, fold bool) (bool, error) {
	s, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("expected string value, got %T", value)
	}
	p, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("expected string pattern, got %T", pattern)
	}

	if fold {
		s, p = strings.ToLower(s), strings.ToLower(p)
	}

	return fn(s, p), nil
}

func toSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list value, got %T", v)
	}

	ret := make([]any, rv.Len())
	for i := range ret {
		ret[i] = rv.Index(i).Interface()
	}

	return ret, nil
}

func valuesEqual(a, b any) bool {
	if res, err := compareValues(a, b); err == nil {
		return res == 0
	}

	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalar values. Numbers of any Go type compare
// numerically; strings, booleans and times compare with their natural order.
func compareValues(a, b any) (int, error) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmp.Compare(fa, fb), nil
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return cmp.Compare(lo.Ternary(av, 1, 0), lo.Ternary(bv, 1, 0)), nil
		}
	case time.Time:
		if bv, ok := toTime(b); ok {
			return av.Compare(bv), nil
		}
	case Date:
		if bv, ok := toTime(b); ok {
			return av.Time.Compare(bv), nil
		}
	}

	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch vt := v.(type) {
	case time.Time:
		return vt, true
	case Date:
		return vt.Time, true
	case string:
		parsed, ok := parseTimeValue(vt).(time.Time)
		return parsed, ok
	default:
		return time.Time{}, false
	}
}
