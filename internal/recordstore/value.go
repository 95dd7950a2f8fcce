package recordstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Value is a cell value: null, a string or a number.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// Null returns the null value.
func Null() Value { return Value{} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether the value counts as missing input: null, or a
// string holding only whitespace. Numbers are never empty.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindNumber:
		return false
	default:
		return true
	}
}

// Str returns the string variant.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Number returns the number variant.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// String renders the value as cell text. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Any returns the value as nil, string or float64 for JSON payloads.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty cell value")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("invalid cell value %s", data)
		}
		*v = Null()
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("cell value must be null, string or number: %s", data)
		}
		*v = NumberValue(n)
	}
	return nil
}

// ParseValue interprets raw text for a field of the given type. Empty text is
// null; number fields require a finite number.
func ParseValue(raw string, typ FieldType) (Value, error) {
	if raw == "" {
		return Null(), nil
	}
	if typ == FieldNumber {
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a finite number", ErrFieldType, raw)
		}
		return NumberValue(n), nil
	}
	return StringValue(raw), nil
}
