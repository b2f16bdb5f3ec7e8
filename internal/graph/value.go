package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindLong
	KindDouble
	KindBoolean
	KindDateTime
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindError reports extraction of the wrong variant from a Value.
type KindError struct {
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("value kind mismatch: want %s, got %s", e.Want, e.Got)
}

// Value is a tagged variant over the scalar and composite types a server may return.
// The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	list []Value
	m    map[string]Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Long(i int64) Value { return Value{kind: KindLong, i: i} }
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Map(entries map[string]Value) Value { return Value{kind: KindMap, m: entries} }

// ErrUnsupportedType is returned by ValueOf for driver values with no variant.
var ErrUnsupportedType = errors.New("unsupported value type")

// ValueOf converts a raw driver value into a Value. Nodes and relationships become
// maps of their properties.
func ValueOf(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Boolean(v), nil
	case int:
		return Long(int64(v)), nil
	case int8:
		return Long(int64(v)), nil
	case int16:
		return Long(int64(v)), nil
	case int32:
		return Long(int64(v)), nil
	case int64:
		return Long(v), nil
	case uint8:
		return Long(int64(v)), nil
	case uint16:
		return Long(int64(v)), nil
	case uint32:
		return Long(int64(v)), nil
	case float32:
		return Double(float64(v)), nil
	case float64:
		return Double(v), nil
	case time.Time:
		return DateTime(v), nil
	case dbtype.Date:
		return DateTime(v.Time()), nil
	case dbtype.LocalDateTime:
		return DateTime(v.Time()), nil
	case []any:
		items := make([]Value, 0, len(v))
		for _, item := range v {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, converted)
		}
		return List(items...), nil
	case map[string]any:
		return mapOf(v)
	case dbtype.Node:
		return mapOf(v.Props)
	case dbtype.Relationship:
		return mapOf(v.Props)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, raw)
	}
}

func mapOf(props map[string]any) (Value, error) {
	entries := make(map[string]Value, len(props))
	for k, item := range props {
		converted, err := ValueOf(item)
		if err != nil {
			return Value{}, fmt.Errorf("key %s: %w", k, err)
		}
		entries[k] = converted
	}
	return Map(entries), nil
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", &KindError{Want: KindString, Got: v.kind}
	}
	return v.s, nil
}

func (v Value) AsLong() (int64, error) {
	if v.kind != KindLong {
		return 0, &KindError{Want: KindLong, Got: v.kind}
	}
	return v.i, nil
}

// AsDouble also accepts longs, widening them.
func (v Value) AsDouble() (float64, error) {
	switch v.kind {
	case KindDouble:
		return v.f, nil
	case KindLong:
		return float64(v.i), nil
	}
	return 0, &KindError{Want: KindDouble, Got: v.kind}
}

func (v Value) AsBoolean() (bool, error) {
	if v.kind != KindBoolean {
		return false, &KindError{Want: KindBoolean, Got: v.kind}
	}
	return v.b, nil
}

func (v Value) AsTime() (time.Time, error) {
	if v.kind != KindDateTime {
		return time.Time{}, &KindError{Want: KindDateTime, Got: v.kind}
	}
	return v.t, nil
}

func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, &KindError{Want: KindList, Got: v.kind}
	}
	return append([]Value(nil), v.list...), nil
}

func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, &KindError{Want: KindMap, Got: v.kind}
	}
	out := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		out[k] = item
	}
	return out, nil
}

// Native returns the value as plain Go data, suitable for JSON encoding.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindLong:
		return v.i
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil
		}
		return v.f
	case KindBoolean:
		return v.b
	case KindDateTime:
		return v.t
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Native()
		}
		return out
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.s
	case KindLong:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return fmt.Sprintf("%g", v.f)
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// Row maps result column names to values.
type Row map[string]Value

// ErrMissingColumn is returned when a row lacks a requested column.
var ErrMissingColumn = errors.New("missing column")

// Get returns the value of col or ErrMissingColumn.
func (r Row) Get(col string) (Value, error) {
	v, ok := r[col]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}
	return v, nil
}

// GetString extracts a string column.
func (r Row) GetString(col string) (string, error) {
	v, err := r.Get(col)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("column %s: %w", col, err)
	}
	return s, nil
}

// GetLong extracts an integer column.
func (r Row) GetLong(col string) (int64, error) {
	v, err := r.Get(col)
	if err != nil {
		return 0, err
	}
	i, err := v.AsLong()
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return i, nil
}

// Native converts the row to plain Go data.
func (r Row) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}
