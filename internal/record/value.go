// Package record models one flattened logical record extracted from a
// captured response document.
//
// The package is responsible for:
//   - The closed Value variant used for every observed field value
//     (Null, Bool, Int64, Float64, Text, Structured).
//   - Flattening one parsed document into zero or more FlatRow mappings.
//
// A FlatRow is sparse: a field present in one row need not be present in
// another, and absence (no map entry) is distinct from an explicit null
// (a map entry holding a Null value). Downstream schema inference relies
// on that distinction.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the Value variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a closed variant over the JSON scalar types plus a Structured
// case for nested objects/arrays. The zero Value is Null.
//
// Values are immutable after construction; accessors on the wrong kind
// return the zero of that kind rather than panicking, so callers are
// expected to switch on Kind() first.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	j    any
}

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func Structured(v any) Value { return Value{kind: KindStructured, j: v} }

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) BoolVal() bool     { return v.b }
func (v Value) IntVal() int64     { return v.i }
func (v Value) FloatVal() float64 { return v.f }
func (v Value) TextVal() string   { return v.s }

// StructuredVal returns the decoded object/array for a Structured value.
func (v Value) StructuredVal() any { return v.j }

// StructuredJSON serializes a Structured value back to JSON text. It is
// the form written into JSONB columns and into TEXT columns when a field
// mixes structured and scalar values.
func (v Value) StructuredJSON() (string, error) {
	b, err := json.Marshal(v.j)
	if err != nil {
		return "", fmt.Errorf("marshal structured value: %w", err)
	}
	return string(b), nil
}

// IsScalar reports whether the value is one of the scalar kinds
// (null counts as a scalar, matching the extraction policy).
func (v Value) IsScalar() bool {
	return v.kind != KindStructured
}

// IntegerParsable reports whether the value votes INTEGER during type
// resolution: a native integer, or a text value whose trimmed content
// parses as a base-10 integer.
func (v Value) IntegerParsable() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindText:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Canonical returns a stable string form for census-style comparisons.
// Structured values canonicalize to their JSON encoding.
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strings.TrimSpace(v.s)
	case KindStructured:
		s, err := v.StructuredJSON()
		if err != nil {
			return fmt.Sprint(v.j)
		}
		return s
	default:
		return ""
	}
}

// FromJSON converts a value decoded by encoding/json into the closed
// variant. Decoders are expected to use UseNumber so integers survive
// without a float64 round-trip; plain float64 inputs are still accepted
// for callers that did not.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return Text(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(n)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		// Number that fits neither int64 nor float64; keep the literal.
		return Text(t.String())
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case map[string]any, []any:
		return Structured(t)
	default:
		return Text(fmt.Sprint(t))
	}
}

// FlatRow is one fully flattened logical record, keyed by field name.
// Absence of a key is semantically distinct from a present Null value.
type FlatRow map[string]Value
