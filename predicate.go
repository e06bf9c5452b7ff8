package gomanager

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type (
	// tPredicate is a single SQL condition of the form "Column Comparator Values".
	tPredicate struct {
		Column     string
		Comparator Comparator
		Values     []any
	}

	// tConjunction is a list of predicates joined by AND.
	tConjunction []tPredicate
)

var _likeEscaper = strings.NewReplacer(
	string(LikeEscape), string(LikeEscape)+string(LikeEscape),
	"%", string(LikeEscape)+"%",
	"_", string(LikeEscape)+"_",
)

// likePattern escapes LIKE wildcards in v so it only matches literally.
func likePattern(prefix string, v any, suffix string) string {
	return prefix + _likeEscaper.Replace(fmt.Sprint(v)) + suffix
}

// toPredicate converts a condition into a SQL predicate. LIKE based
// comparators get their wildcards here so the value stays a bound argument.
func (c Condition) toPredicate() (tPredicate, error) {
	if c.Filter == nil {
		return tPredicate{}, fmt.Errorf("condition without filter")
	}
	if _, ok := c.Filter.Comparator.sqlOperator(); !ok {
		return tPredicate{}, fmt.Errorf("comparator '%s' has no SQL form", c.Filter.Comparator)
	}

	p := tPredicate{
		Column:     c.Filter.Attribute,
		Comparator: c.Filter.Comparator,
	}

	switch c.Filter.Comparator {
	case ComparatorBetween:
		bounds, err := toSlice(c.Value)
		if err != nil || len(bounds) != 2 {
			return tPredicate{}, fmt.Errorf("between requires exactly two bounds, got '%v'", c.Value)
		}
		p.Values = bounds
	case ComparatorIn:
		values, err := toSlice(c.Value)
		if err != nil {
			return tPredicate{}, err
		}
		p.Values = []any{values}
	case ComparatorContains, ComparatorIContains:
		p.Values = []any{likePattern("%", c.Value, "%")}
	case ComparatorStartsWith, ComparatorIStartsWith:
		p.Values = []any{likePattern("", c.Value, "%")}
	case ComparatorEndsWith, ComparatorIEndsWith:
		p.Values = []any{likePattern("%", c.Value, "")}
	default:
		p.Values = []any{c.Value}
	}

	if c.Filter.Field != nil && (c.Filter.Field.Kind == FieldDate || c.Filter.Field.Kind == FieldDateTime) {
		for i := range p.Values {
			p.Values[i] = parseTimeValue(p.Values[i])
		}
	}

	return p, nil
}

func (w Where) toConjunction() (tConjunction, error) {
	ret := make(tConjunction, 0, len(w))
	for _, condition := range w {
		p, err := condition.toPredicate()
		if err != nil {
			return nil, err
		}

		ret = append(ret, p)
	}

	return ret, nil
}

// toGORMExpression converts a predicate of the form Comparator(Column, Values)
// into a clause.Expression.
//
// IMPORTANT: The method uses the SQL placeholder "?".
//
// Example:
//
//	tPredicate = { Column: "id", Comparator: "gt", Values: [123]}
//
// Result:
//
//	"id > 123"
func (p tPredicate) toGORMExpression() clause.Expression {
	sqlClause, _ := p.toSQLClause()

	return clause.Expr{
		SQL:  sqlClause,
		Vars: p.Values,
	}
}

// toSQLClause converts a predicate into an SQL condition with "?"
// placeholders and the values bound to them.
//
// Example:
//
//	tPredicate = { Column: "age", Comparator: "between", Values: [18, 30]}
//
// Result:
//
//	("age BETWEEN ? AND ?", [18, 30])
//
// Comparators without a template are rejected by toPredicate.
func (p tPredicate) toSQLClause() (string, []driver.Value) {
	tpl, _ := p.Comparator.sqlOperator()

	values := make([]driver.Value, 0, len(p.Values))
	for _, v := range p.Values {
		values = append(values, v)
	}

	return fmt.Sprintf(tpl, p.Column), values
}

// parseTimeValue returns time.Time for strings holding an RFC 3339 time and
// the value unchanged otherwise.
func parseTimeValue(v any) any {
	fnParseBytesToTimeOrValue := func(vBytes []byte) any {
		dst := time.Time{}
		err := dst.UnmarshalText(vBytes)
		if err == nil {
			return dst
		}

		return v
	}

	switch vt := v.(type) {
	case string:
		return fnParseBytesToTimeOrValue([]byte(vt))
	case []byte:
		return fnParseBytesToTimeOrValue(vt)
	case Date:
		return vt.Time
	default:
		return v
	}
}

// toGORMExpression joins predicates with AND. Returns nil for an empty
// conjunction.
func (c tConjunction) toGORMExpression() clause.Expression {
	andExpressions := make([]clause.Expression, 0, len(c))
	for _, p := range c {
		andExpressions = append(andExpressions, p.toGORMExpression())
	}

	if len(andExpressions) == 1 {
		return andExpressions[0]
	} else if len(andExpressions) > 1 {
		return clause.And(andExpressions...)
	}

	return nil
}

// toSQLClause joins predicates into "(K1 AND K2 AND K3)". Returns "TRUE"
// for an empty conjunction.
//
// Example:
//
//	tConjunction = {
//		{Column: "id", Comparator: "gt", Values: [5]},
//		{Column: "name", Comparator: "lt", Values: ["abc"]}
//	}
//
// Result:
//
//	("(id > ? AND name < ?)", [5, "abc"])
func (c tConjunction) toSQLClause() (string, []driver.Value) {
	andClauses := make([]string, 0, len(c))
	andValues := make([]driver.Value, 0, len(c))

	for _, p := range c {
		andClause, values := p.toSQLClause()
		andClauses = append(andClauses, andClause)
		andValues = append(andValues, values...)
	}

	if len(andClauses) >= 1 {
		return fmt.Sprintf("(%s)", strings.Join(andClauses, " AND ")), andValues
	}

	return "TRUE", nil
}

// Apply adds the conditions to a gorm query.
func (w Where) Apply(db *gorm.DB) (*gorm.DB, error) {
	conjunction, err := w.toConjunction()
	if err != nil {
		return nil, fmt.Errorf("cannot apply conditions: %w", err)
	}

	exp := conjunction.toGORMExpression()
	if exp == nil {
		return db, nil
	}

	return db.Clauses(exp), nil
}

// ToSQL returns the conditions as an SQL expression with "?" placeholders.
//
// Usage:
//
//	sql, args, err := where.ToSQL()
//	query := fmt.Sprintf("SELECT * FROM table WHERE %s", sql)
func (w Where) ToSQL() (string, []driver.Value, error) {
	conjunction, err := w.toConjunction()
	if err != nil {
		return "", nil, err
	}

	sql, args := conjunction.toSQLClause()
	return sql, args, nil
}
