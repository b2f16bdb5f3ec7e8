package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOfScalars(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  any
		kind Kind
	}{
		{"nil", nil, KindNull},
		{"string", "kevin", KindString},
		{"int64", int64(7), KindLong},
		{"int", 7, KindLong},
		{"float", 1.5, KindDouble},
		{"bool", true, KindBoolean},
		{"time", now, KindDateTime},
		{"date", dbtype.Date(now), KindDateTime},
		{"list", []any{"a", int64(1)}, KindList},
		{"map", map[string]any{"a": "b"}, KindMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestValueOfNodeBecomesPropertyMap(t *testing.T) {
	node := dbtype.Node{Labels: []string{"User"}, Props: map[string]any{"fullName": "Kevin Morrison"}}
	v, err := ValueOf(node)
	require.NoError(t, err)

	m, err := v.AsMap()
	require.NoError(t, err)
	name, err := m["fullName"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "Kevin Morrison", name)
}

func TestValueOfUnsupported(t *testing.T) {
	_, err := ValueOf(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ValueOf([]any{struct{}{}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestValueWrongKindIsRecoverable(t *testing.T) {
	v := String("x")
	_, err := v.AsLong()

	var kindErr *KindError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, KindLong, kindErr.Want)
	assert.Equal(t, KindString, kindErr.Got)

	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "x", s)
}

func TestValueAsDoubleWidensLong(t *testing.T) {
	f, err := Long(3).AsDouble()
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = Boolean(true).AsDouble()
	assert.Error(t, err)
}

func TestValueStringAndNative(t *testing.T) {
	v := Map(map[string]Value{
		"b": List(Long(1), Boolean(false)),
		"a": String("x"),
	})
	assert.Equal(t, "{a: x, b: [1, false]}", v.String())
	assert.Equal(t, map[string]any{"a": "x", "b": []any{int64(1), false}}, v.Native())
	assert.Equal(t, "null", Null().String())
	assert.True(t, Value{}.IsNull())
}

func TestRowAccessors(t *testing.T) {
	row := Row{"path": String("a.txt"), "count": Long(4)}

	path, err := row.GetString("path")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", path)

	n, err := row.GetLong("count")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	_, err = row.Get("missing")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = row.GetLong("path")
	var kindErr *KindError
	assert.True(t, errors.As(err, &kindErr))

	assert.Equal(t, map[string]any{"path": "a.txt", "count": int64(4)}, row.Native())
}

func TestValidateDatabaseName(t *testing.T) {
	assert.NoError(t, ValidateDatabaseName("sample-app-db"))
	assert.NoError(t, ValidateDatabaseName("iam.v2"))
	assert.ErrorIs(t, ValidateDatabaseName("sample_app_db"), ErrInvalidDatabaseName)
	assert.ErrorIs(t, ValidateDatabaseName("ab"), ErrInvalidDatabaseName)
	assert.ErrorIs(t, ValidateDatabaseName("1abc"), ErrInvalidDatabaseName)
}
