package db

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a single result cell: null, string, number or bool. Integral
// numbers keep their exact int64 value and NUMERIC values keep the text the
// server sent.
type Value struct {
	kind    Kind
	str     string
	num     float64
	integer int64
	isInt   bool
	boolean bool
}

// Null is the SQL NULL cell.
var Null = Value{}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func IntValue(n int64) Value { return Value{kind: KindNumber, integer: n, num: float64(n), isInt: true} }

func FloatValue(f float64) Value { return Value{kind: KindNumber, num: f} }

func BoolValue(b bool) Value { return Value{kind: KindBool, boolean: b} }

// NumericValue is a number given as exact decimal text, such as a NUMERIC
// column. Text that does not parse as a number becomes a string value.
func NumericValue(text string) Value {
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(n)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return StringValue(text)
	}
	return Value{kind: KindNumber, num: f, str: text}
}

// Layouts for temporal types that carry no time zone.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05.999999"
)

// NewColumnValue converts a driver value using the column's database type
// name, as reported by sql.ColumnType.DatabaseTypeName. Unknown types fall
// back to NewValue.
func NewColumnValue(v any, databaseType string) Value {
	if v == nil {
		return Null
	}
	switch strings.ToUpper(databaseType) {
	case "NUMERIC", "DECIMAL":
		switch x := v.(type) {
		case string:
			return NumericValue(x)
		case []byte:
			return NumericValue(string(x))
		}
	case "DATE":
		if t, ok := v.(time.Time); ok {
			return StringValue(t.Format(DateLayout))
		}
	case "TIMESTAMP":
		if t, ok := v.(time.Time); ok {
			return StringValue(t.Format(TimestampLayout))
		}
	case "BYTEA":
		if b, ok := v.([]byte); ok {
			return StringValue(`\x` + hex.EncodeToString(b))
		}
	}
	return NewValue(v)
}

// NewValue converts a value produced by the database driver.
func NewValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return BoolValue(x)
	case int64:
		return IntValue(x)
	case int:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint8:
		return IntValue(int64(x))
	case uint64:
		if x <= math.MaxInt64 {
			return IntValue(int64(x))
		}
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case float32:
		return FloatValue(float64(x))
	case time.Time:
		return StringValue(x.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(x))
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsInteger reports whether v is a number with an exact integer value.
func (v Value) IsInteger() bool { return v.kind == KindNumber && v.isInt }

// String returns the display text of v. NULL renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.isInt {
			return strconv.FormatInt(v.integer, 10)
		}
		if v.str != "" {
			return v.str
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	default:
		return ""
	}
}

// Float returns the numeric value and whether v is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Int returns the integer value and whether v is an integral number.
func (v Value) Int() (int64, bool) {
	return v.integer, v.IsInteger()
}

// Bool returns the boolean value and whether v is a bool.
func (v Value) Bool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

// Interface returns v as a plain Go value: nil, string, int64, float64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.isInt {
			return v.integer
		}
		return v.num
	case KindBool:
		return v.boolean
	default:
		return nil
	}
}

// MarshalJSON encodes v as the matching JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		text := v.String()
		if v.str != "" {
			if json.Valid([]byte(text)) {
				return []byte(text), nil
			}
			return json.Marshal(text)
		}
		if !v.isInt && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
			return json.Marshal(text)
		}
		return []byte(text), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.boolean)), nil
	default:
		return []byte("null"), nil
	}
}

// MarshalYAML encodes v as the matching YAML scalar.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}
