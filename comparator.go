package gomanager

import "github.com/samber/lo"

// Comparator defines a filter comparison by name, e.g. "eq" or "contains".
type Comparator string

const (
	ComparatorEq          Comparator = "eq"
	ComparatorNe          Comparator = "ne"
	ComparatorLT          Comparator = "lt"
	ComparatorGT          Comparator = "gt"
	ComparatorLTE         Comparator = "lte"
	ComparatorGTE         Comparator = "gte"
	ComparatorIn          Comparator = "in"
	ComparatorBetween     Comparator = "between"
	ComparatorContains    Comparator = "contains"
	ComparatorIContains   Comparator = "icontains"
	ComparatorStartsWith  Comparator = "startswith"
	ComparatorIStartsWith Comparator = "istartswith"
	ComparatorEndsWith    Comparator = "endswith"
	ComparatorIEndsWith   Comparator = "iendswith"
)

// FilterNames lists every comparator known to the package in the order
// filters are generated for a field.
var FilterNames = []Comparator{
	ComparatorEq,
	ComparatorNe,
	ComparatorLT,
	ComparatorGT,
	ComparatorLTE,
	ComparatorGTE,
	ComparatorIn,
	ComparatorBetween,
	ComparatorContains,
	ComparatorIContains,
	ComparatorStartsWith,
	ComparatorIStartsWith,
	ComparatorEndsWith,
	ComparatorIEndsWith,
}

// FiltersByKind is the default field kind -> comparator table.
var FiltersByKind = map[FieldKind][]Comparator{
	FieldString: {
		ComparatorEq, ComparatorNe, ComparatorIn,
		ComparatorContains, ComparatorIContains,
		ComparatorStartsWith, ComparatorIStartsWith,
		ComparatorEndsWith, ComparatorIEndsWith,
	},
	FieldInteger:  _orderedComparators,
	FieldNumber:   _orderedComparators,
	FieldDate:     _orderedComparators,
	FieldDateTime: _orderedComparators,
	FieldBoolean:  {ComparatorEq, ComparatorNe, ComparatorIn},
	FieldArray:    {ComparatorContains},
}

var _orderedComparators = []Comparator{
	ComparatorEq, ComparatorNe,
	ComparatorLT, ComparatorGT, ComparatorLTE, ComparatorGTE,
	ComparatorIn, ComparatorBetween,
}

func (c Comparator) Valid() bool {
	return lo.Contains(FilterNames, c)
}

// sqlOperator returns the SQL template of the comparator. The template is
// formatted with the column name and contains "?" placeholders.
func (c Comparator) sqlOperator() (string, bool) {
	tpl, ok := _sqlTemplates[c]
	return tpl, ok
}

// LikeEscape is the escape character of LIKE patterns. It must not be a
// backslash, which MySQL also reads as a string literal escape.
const LikeEscape = '!'

var _sqlTemplates = map[Comparator]string{
	ComparatorEq:          "%s = ?",
	ComparatorNe:          "%s <> ?",
	ComparatorLT:          "%s < ?",
	ComparatorGT:          "%s > ?",
	ComparatorLTE:         "%s <= ?",
	ComparatorGTE:         "%s >= ?",
	ComparatorIn:          "%s IN ?",
	ComparatorBetween:     "%s BETWEEN ? AND ?",
	ComparatorContains:    "%s LIKE ? ESCAPE '!'",
	ComparatorIContains:   "LOWER(%s) LIKE LOWER(?) ESCAPE '!'",
	ComparatorStartsWith:  "%s LIKE ? ESCAPE '!'",
	ComparatorIStartsWith: "LOWER(%s) LIKE LOWER(?) ESCAPE '!'",
	ComparatorEndsWith:    "%s LIKE ? ESCAPE '!'",
	ComparatorIEndsWith:   "LOWER(%s) LIKE LOWER(?) ESCAPE '!'",
}
