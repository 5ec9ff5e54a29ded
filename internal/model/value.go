package model

import (
	"encoding/json"
	"strconv"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindRaw // nested object or array, kept as compact JSON
)

// Value is one entry of a record's internal variables.
// The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// StringValue wraps a JSON string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a JSON number.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue wraps a JSON boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// RawValue wraps a nested object or array given as compact JSON text.
func RawValue(jsonText string) Value { return Value{kind: KindRaw, str: jsonText} }

// Kind reports which payload v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null or absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric payload; ok is false for non-numbers.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// String renders scalars as text. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString, KindRaw:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON writes the value back in its original JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		if v.str == "" {
			return []byte("null"), nil
		}
		return []byte(v.str), nil
	default:
		return []byte("null"), nil
	}
}
