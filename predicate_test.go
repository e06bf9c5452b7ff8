package gomanager

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"
)

var (
	_testName      = &Field{Name: "name", Kind: FieldString}
	_testAge       = &Field{Name: "age", Kind: FieldInteger}
	_testCreatedAt = &Field{Name: "createdAt", Kind: FieldDateTime, Attribute: "created_at"}
)

func cond(field *Field, comparator Comparator, value any) Condition {
	return Condition{Filter: NewFilter(comparator, field, field.Name), Value: value}
}

func Test_Condition_toPredicate(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		cond     Condition
		wantSQL  string
		wantVals []any
		wantErr  bool
	}{
		{
			name:     "equality",
			cond:     cond(_testName, ComparatorEq, "abc"),
			wantSQL:  "name = ?",
			wantVals: []any{"abc"},
		},
		{
			name:     "not equal",
			cond:     cond(_testAge, ComparatorNe, 3),
			wantSQL:  "age <> ?",
			wantVals: []any{3},
		},
		{
			name:     "contains wraps value with wildcards",
			cond:     cond(_testName, ComparatorContains, "bo"),
			wantSQL:  "name LIKE ? ESCAPE '!'",
			wantVals: []any{"%bo%"},
		},
		{
			name:     "case insensitive prefix",
			cond:     cond(_testName, ComparatorIStartsWith, "Bo"),
			wantSQL:  "LOWER(name) LIKE LOWER(?) ESCAPE '!'",
			wantVals: []any{"Bo%"},
		},
		{
			name:     "suffix",
			cond:     cond(_testName, ComparatorEndsWith, "ob"),
			wantSQL:  "name LIKE ? ESCAPE '!'",
			wantVals: []any{"%ob"},
		},
		{
			name:     "contains matches wildcards literally",
			cond:     cond(_testName, ComparatorContains, "a_b"),
			wantSQL:  "name LIKE ? ESCAPE '!'",
			wantVals: []any{"%a!_b%"},
		},
		{
			name:     "prefix escapes percent and the escape character",
			cond:     cond(_testName, ComparatorIStartsWith, "50%!"),
			wantSQL:  "LOWER(name) LIKE LOWER(?) ESCAPE '!'",
			wantVals: []any{"50!%!!%"},
		},
		{
			name:     "between binds both bounds",
			cond:     cond(_testAge, ComparatorBetween, []int{18, 30}),
			wantSQL:  "age BETWEEN ? AND ?",
			wantVals: []any{18, 30},
		},
		{
			name:     "in binds a list",
			cond:     cond(_testAge, ComparatorIn, []int{1, 2}),
			wantSQL:  "age IN ?",
			wantVals: []any{[]any{1, 2}},
		},
		{
			name:     "timestamp string converts to timestamp on date-time fields",
			cond:     cond(_testCreatedAt, ComparatorGT, "2024-01-02T03:04:05Z"),
			wantSQL:  "created_at > ?",
			wantVals: []any{created},
		},
		{
			name:     "timestamp string stays a string on string fields",
			cond:     cond(_testName, ComparatorGT, "2024-01-02T03:04:05Z"),
			wantSQL:  "name > ?",
			wantVals: []any{"2024-01-02T03:04:05Z"},
		},
		{
			name:    "between requires two bounds",
			cond:    cond(_testAge, ComparatorBetween, []int{18}),
			wantErr: true,
		},
		{
			name:    "in requires a list",
			cond:    cond(_testAge, ComparatorIn, 1),
			wantErr: true,
		},
		{
			name:    "comparator without SQL form",
			cond:    cond(_testName, Comparator("like"), "a"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.cond.toPredicate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			expr := p.toGORMExpression().(clause.Expr)
			require.Equal(t, tt.wantSQL, expr.SQL)
			require.Equal(t, tt.wantVals, expr.Vars)
		})
	}
}

func Test_tConjunction_toGORMExpression(t *testing.T) {
	tests := []struct {
		name        string
		conjunction tConjunction
		wantNil     bool
		wantAnd     bool
	}{
		{
			name: "single predicate is not wrapped",
			conjunction: tConjunction{
				{Column: "id", Comparator: ComparatorGT, Values: []any{5}},
			},
		},
		{
			name: "several predicates are joined with AND",
			conjunction: tConjunction{
				{Column: "id", Comparator: ComparatorGT, Values: []any{5}},
				{Column: "name", Comparator: ComparatorEq, Values: []any{"abc"}},
			},
			wantAnd: true,
		},
		{
			name:        "empty conjunction",
			conjunction: tConjunction{},
			wantNil:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := tt.conjunction.toGORMExpression()
			if (expr == nil) != tt.wantNil {
				t.Errorf("unexpected expression result: got %v, want nil=%v", expr, tt.wantNil)
			}

			_, isAnd := expr.(clause.AndConditions)
			require.Equal(t, tt.wantAnd, isAnd)
		})
	}
}

func Test_Where_ToSQL(t *testing.T) {
	tests := []struct {
		name     string
		where    Where
		wantSQL  string
		wantVals []driver.Value
	}{
		{
			name:     "empty where",
			where:    nil,
			wantSQL:  "TRUE",
			wantVals: nil,
		},
		{
			name:     "single condition",
			where:    Where{cond(_testAge, ComparatorGT, 5)},
			wantSQL:  "(age > ?)",
			wantVals: []driver.Value{5},
		},
		{
			name: "multiple conditions",
			where: Where{
				cond(_testAge, ComparatorGTE, 5),
				cond(_testName, ComparatorIContains, "abc"),
				cond(_testAge, ComparatorBetween, []int{1, 9}),
			},
			wantSQL:  "(age >= ? AND LOWER(name) LIKE LOWER(?) ESCAPE '!' AND age BETWEEN ? AND ?)",
			wantVals: []driver.Value{5, "%abc%", 1, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotVals, err := tt.where.ToSQL()
			require.NoError(t, err)

			if gotSQL != tt.wantSQL {
				t.Errorf("ToSQL() SQL = %v, want %v", gotSQL, tt.wantSQL)
			}

			require.Equal(t, tt.wantVals, gotVals)
		})
	}
}

func Test_Where_UnknownComparator(t *testing.T) {
	where := Where{cond(_testAge, ComparatorGT, 1), cond(_testName, Comparator("like"), "a")}

	_, _, err := where.ToSQL()
	require.ErrorContains(t, err, "comparator 'like' has no SQL form")

	_, db, _, err := newGORMMySQLMock()
	require.NoError(t, err)

	_, err = where.Apply(db)
	require.ErrorContains(t, err, "cannot apply conditions")
}

func Test_parseTimeValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got, ok := parseTimeValue("2024-01-02T03:04:05Z").(time.Time)
	require.True(t, ok)
	require.True(t, ts.Equal(got))

	got, ok = parseTimeValue(NewDate(ts)).(time.Time)
	require.True(t, ok)
	require.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Equal(got))

	require.Equal(t, "not a time", parseTimeValue("not a time"))
	require.Equal(t, 42, parseTimeValue(42))
}
