// Package value implements the engine's tagged scalar variable type.
package value

import (
	"strconv"

	"github.com/user/procengine/apperr"
)

// Type tags a Value's underlying representation; it is the literal string
// stored in the RuVar/HiVar var_type column.
type Type string

const (
	TypeInt    Type = "INT"
	TypeDouble Type = "DOUBLE"
	TypeString Type = "STRING"
	TypeBool   Type = "BOOL"
)

// Value is a tagged scalar: exactly one of Int, Double, Str, Bool is
// meaningful, selected by Kind.
type Value struct {
	Kind   Type
	Int    int32
	Double float64
	Str    string
	Bool   bool
}

func Int(v int32) Value     { return Value{Kind: TypeInt, Int: v} }
func Double(v float64) Value { return Value{Kind: TypeDouble, Double: v} }
func Str(v string) Value    { return Value{Kind: TypeString, Str: v} }
func Bool(v bool) Value     { return Value{Kind: TypeBool, Bool: v} }

// AsText renders the value for the RuVar/HiVar text column. Bool renders as
// "1"/"0" per spec §4.3; numbers use their natural decimal representation.
func (v Value) AsText() string {
	switch v.Kind {
	case TypeInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case TypeDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case TypeString:
		return v.Str
	case TypeBool:
		if v.Bool {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// FromText parses a stored value back into a Value, guided by the var_type
// tag recorded alongside it — the inverse of AsText.
func FromText(kind Type, text string) (Value, error) {
	switch kind {
	case TypeInt:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, apperr.Wrap(apperr.InternalError, "value.FromText", "malformed INT value", err)
		}
		return Int(int32(n)), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, apperr.Wrap(apperr.InternalError, "value.FromText", "malformed DOUBLE value", err)
		}
		return Double(f), nil
	case TypeString:
		return Str(text), nil
	case TypeBool:
		return Bool(text == "1"), nil
	default:
		return Value{}, apperr.InternalErrorf("value.FromText", "unknown var_type %q", kind)
	}
}

// AsInt converts to an integer, failing rather than defaulting to zero on a
// mismatched kind. This is stricter than the legacy evaluator coercions in
// package expr, per the Open Question decision recorded in DESIGN.md.
func (v Value) AsInt() (int32, error) {
	switch v.Kind {
	case TypeInt:
		return v.Int, nil
	case TypeBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, apperr.InternalErrorf("value.AsInt", "cannot convert %s to int", v.Kind)
	}
}

// AsFloat converts to a float64, failing on a mismatched kind.
func (v Value) AsFloat() (float64, error) {
	switch v.Kind {
	case TypeDouble:
		return v.Double, nil
	case TypeInt:
		return float64(v.Int), nil
	default:
		return 0, apperr.InternalErrorf("value.AsFloat", "cannot convert %s to float", v.Kind)
	}
}

// AsBool converts to a bool, failing on a mismatched kind.
func (v Value) AsBool() (bool, error) {
	if v.Kind != TypeBool {
		return false, apperr.InternalErrorf("value.AsBool", "cannot convert %s to bool", v.Kind)
	}
	return v.Bool, nil
}
