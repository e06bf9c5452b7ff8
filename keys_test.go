package gomanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsersResource(meta Meta) *Resource {
	if meta.Name == "" {
		meta.Name = "users"
	}

	return NewResource(meta, MustSchema(
		&Field{Name: "email", Kind: FieldString},
		&Field{Name: "name", Kind: FieldString, Attribute: "full_name"},
		&Field{Name: "age", Kind: FieldInteger},
		&Field{Name: "score", Kind: FieldNumber},
		&Field{Name: "tags", Kind: FieldArray},
		&Field{Name: "owner", Kind: FieldCustom},
	))
}

func Test_KeyConverters_MatcherTypes(t *testing.T) {
	tests := []struct {
		name    string
		meta    Meta
		want    []string
		wantErr string
	}{
		{
			name: "defaults",
			want: []string{MatcherTypeObject, "integer"},
		},
		{
			name: "string ids",
			meta: Meta{IDKind: FieldString},
			want: []string{MatcherTypeObject, "string"},
		},
		{
			name: "property natural key",
			meta: Meta{NaturalKey: PropertyNaturalKey("email")},
			want: []string{MatcherTypeObject, "integer", "string"},
		},
		{
			name: "composite natural key",
			meta: Meta{NaturalKey: CompositeNaturalKey("email", "name")},
			want: []string{MatcherTypeObject, "integer", MatcherTypeArray},
		},
		{
			name:    "natural key clashing with the id",
			meta:    Meta{NaturalKey: PropertyNaturalKey("age")},
			wantErr: "multiple keys of type integer defined for users",
		},
		{
			name:    "duplicate converters",
			meta:    Meta{KeyConverters: []KeyConverter{IDKey{}, IDKey{}}},
			wantErr: "multiple keys of type integer defined for users",
		},
		{
			name:    "unknown natural key property",
			meta:    Meta{NaturalKey: PropertyNaturalKey("missing")},
			wantErr: "natural key property 'missing' is not a field of users",
		},
		{
			name:    "single natural key with several properties",
			meta:    Meta{NaturalKey: &NaturalKey{Properties: []string{"email", "name"}}},
			wantErr: "natural key of users must name exactly one property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMemoryManager(newUsersResource(tt.meta))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)

			got := make([]string, 0, len(m.KeyConverters()))
			for _, converter := range m.KeyConverters() {
				got = append(got, converter.MatcherType())
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_IDKey_ResolveID(t *testing.T) {
	key, err := IDKey{}.Bind(newUsersResource(Meta{}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		value   any
		want    any
		wantErr bool
	}{
		{"int", 5, int64(5), false},
		{"integral float", 5.0, int64(5), false},
		{"fractional float", 5.5, nil, true},
		{"numeric string", "5", int64(5), false},
		{"bool", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := key.(IDKeyConverter).ResolveID(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_RefKey_ResolveID(t *testing.T) {
	intKey, err := RefKey{}.Bind(newUsersResource(Meta{}))
	require.NoError(t, err)
	strKey, err := RefKey{}.Bind(newUsersResource(Meta{IDKind: FieldString}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     KeyConverter
		value   any
		want    any
		wantErr bool
	}{
		{"integer id", intKey, map[string]any{"$ref": "/users/7"}, int64(7), false},
		{"string id", strKey, map[string]any{"$ref": "/users/abc"}, "abc", false},
		{"other resource", intKey, map[string]any{"$ref": "/groups/7"}, nil, true},
		{"nested path", intKey, map[string]any{"$ref": "/users/7/items"}, nil, true},
		{"missing id", intKey, map[string]any{"$ref": "/users/"}, nil, true},
		{"no $ref", intKey, map[string]any{"id": 7}, nil, true},
		{"not an object", intKey, "/users/7", nil, true},
		{"non numeric id", intKey, map[string]any{"$ref": "/users/abc"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.key.(IDKeyConverter).ResolveID(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_PropertiesKey_ResolveWhere(t *testing.T) {
	key, err := PropertiesKey{Properties: []string{"email", "name"}}.Bind(newUsersResource(Meta{}))
	require.NoError(t, err)

	where, err := key.(WhereKeyConverter).ResolveWhere([]any{"a@b.c", "Alice"})
	require.NoError(t, err)
	require.Len(t, where, 2)
	require.Equal(t, "email", where[0].Filter.Attribute)
	require.Equal(t, "full_name", where[1].Filter.Attribute)
	require.Equal(t, ComparatorEq, where[1].Filter.Comparator)
	require.Equal(t, "Alice", where[1].Value)

	_, err = key.(WhereKeyConverter).ResolveWhere([]any{"a@b.c"})
	require.Error(t, err)

	_, err = key.(WhereKeyConverter).ResolveWhere("a@b.c")
	require.Error(t, err)
}

func Test_matcherTypeOf(t *testing.T) {
	require.Equal(t, "integer", matcherTypeOf(1))
	require.Equal(t, "number", matcherTypeOf(1.5))
	require.Equal(t, "string", matcherTypeOf("x"))
	require.Equal(t, MatcherTypeArray, matcherTypeOf([]any{1}))
	require.Equal(t, MatcherTypeObject, matcherTypeOf(map[string]any{}))
	require.Equal(t, "", matcherTypeOf(nil))
}
