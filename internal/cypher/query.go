// Package cypher builds parameterized Cypher statements. Values always travel as
// driver parameters; only validated identifiers are ever spliced into query text.
package cypher

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnsafeIdentifier is returned for labels, types or keys outside [A-Za-z_][A-Za-z0-9_]*.
	ErrUnsafeIdentifier = errors.New("unsafe cypher identifier")
	// ErrMissingParam is returned when the text references a parameter that was not supplied.
	ErrMissingParam = errors.New("missing query parameter")
	// ErrUnusedParam is returned when a supplied parameter is never referenced.
	ErrUnusedParam = errors.New("unused query parameter")
	// ErrUnsupportedValue is returned for parameter values the driver cannot encode.
	ErrUnsupportedValue = errors.New("unsupported parameter value")
)

// Params maps parameter names (without the leading $) to values.
type Params map[string]any

// Query is a validated statement plus its parameters.
type Query struct {
	Text   string
	Params Params
}

// String returns the statement text.
func (q Query) String() string {
	return q.Text
}

// New validates text against params: every $name must be supplied, every supplied
// param must be referenced, and values must be encodable by the driver.
func New(text string, params Params) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, errors.New("empty query text")
	}

	refs := ParamNames(text)
	referenced := make(map[string]struct{}, len(refs))
	for _, name := range refs {
		referenced[name] = struct{}{}
		if _, ok := params[name]; !ok {
			return Query{}, fmt.Errorf("%w: $%s", ErrMissingParam, name)
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := referenced[k]; !ok {
			return Query{}, fmt.Errorf("%w: $%s", ErrUnusedParam, k)
		}
		if err := checkValue(params[k]); err != nil {
			return Query{}, fmt.Errorf("param $%s: %w", k, err)
		}
	}

	var cloned Params
	if len(params) > 0 {
		cloned = make(Params, len(params))
		for k, v := range params {
			cloned[k] = v
		}
	}
	return Query{Text: text, Params: cloned}, nil
}

// MustNew is New for package-level statements known to be valid.
func MustNew(text string, params Params) Query {
	q, err := New(text, params)
	if err != nil {
		panic(err)
	}
	return q
}

// With returns a copy of q with the given parameters replaced and revalidated.
func (q Query) With(params Params) (Query, error) {
	merged := make(Params, len(q.Params)+len(params))
	for k, v := range q.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return New(q.Text, merged)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier validates a label, relationship type or property key and returns it
// backtick-quoted for splicing into query text.
func Identifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return "`" + name + "`", nil
}

// QuoteString renders s as a single-quoted Cypher string literal. It is meant for
// generated script files; queries built at runtime pass values as parameters.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

var timeType = reflect.TypeOf(time.Time{})

func checkValue(v any) error {
	if v == nil {
		return nil
	}
	return checkReflect(reflect.ValueOf(v))
}

func checkReflect(v reflect.Value) error {
	if v.Type() == timeType {
		return nil
	}
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return checkReflect(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkReflect(v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key type %s", ErrUnsupportedValue, v.Type().Key())
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := checkReflect(iter.Value()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedValue, v.Type())
	}
}
