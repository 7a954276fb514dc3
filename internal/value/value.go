// Package value implements the tagged-union Value type shared by every
// stage of the migration pipeline: the transform evaluator produces Values,
// the diff step compares them against target JSON, and the lookup binder
// serializes them into OData write payloads.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDateTime
	KindGuid
	KindOptionSet
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDateTime:
		return "datetime"
	case KindGuid:
		return "guid"
	case KindOptionSet:
		return "optionset"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union over the record-field value space the
// platform can return or accept. Only the field matching Kind is
// meaningful; the rest are zero.
type Value struct {
	Kind      Kind
	Str       string
	Int       int64
	Float     float64
	Bool      bool
	Time      time.Time
	Guid      uuid.UUID
	OptionSet int32
	Dynamic   any // decoded JSON (map[string]any, []any, or a scalar) the core does not interpret
}

func Null() Value                { return Value{Kind: KindNull} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func DateTime(t time.Time) Value { return Value{Kind: KindDateTime, Time: t.UTC()} }
func Guid(u uuid.UUID) Value     { return Value{Kind: KindGuid, Guid: u} }
func OptionSet(i int32) Value    { return Value{Kind: KindOptionSet, OptionSet: i} }
func Dynamic(v any) Value        { return Value{Kind: KindDynamic, Dynamic: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy follows the platform's scripting convention used by FormatTemplate
// conditions: false, 0, 0.0, a zero option set, "", and null are falsy;
// everything else (including zero GUIDs) is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindOptionSet:
		return v.OptionSet != 0
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// ToJSON produces the total, per-variant conversion to a JSON-encodable Go
// value (suitable for map[string]any fields passed to value.Marshal).
func (v Value) ToJSON() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindDateTime:
		return v.Time.Format(time.RFC3339)
	case KindGuid:
		return v.Guid.String()
	case KindOptionSet:
		return v.OptionSet
	case KindDynamic:
		return v.Dynamic
	default:
		return nil
	}
}

// FromJSON is the best-effort classifier: given a value already decoded from
// JSON (nil, bool, string, float64, map[string]any, []any), it picks the
// narrowest Value variant the shape supports. int and int64 become Int; any
// other type (json.Number included) becomes Dynamic.
func FromJSON(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(v)
	case string:
		if u, err := uuid.Parse(v); err == nil {
			return Guid(u)
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return DateTime(t)
		}
		return String(v)
	case float64:
		return numberFromFloat64(v)
	case int64:
		return Int(v)
	case int:
		return Int(int64(v))
	case map[string]any, []any:
		return Dynamic(v)
	default:
		return Dynamic(v)
	}
}

func numberFromFloat64(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return Int(int64(f))
	}
	return Float(f)
}

// Equal implements structural equality with the documented coercions:
// Int<->Float compare numerically, Int<->OptionSet compare numerically,
// Guid compares case-insensitively by canonical string form, DateTime
// compares as instants, and Dynamic falls back to deep structural JSON
// equality (see DESIGN.md).
func (a Value) Equal(b Value) bool {
	switch {
	case a.Kind == KindNull || b.Kind == KindNull:
		return a.Kind == KindNull && b.Kind == KindNull
	case a.Kind == KindInt && b.Kind == KindInt:
		return a.Int == b.Int
	case a.Kind == KindFloat && b.Kind == KindFloat:
		return a.Float == b.Float
	case a.Kind == KindInt && b.Kind == KindFloat:
		return float64(a.Int) == b.Float
	case a.Kind == KindFloat && b.Kind == KindInt:
		return a.Float == float64(b.Int)
	case a.Kind == KindInt && b.Kind == KindOptionSet:
		return a.Int == int64(b.OptionSet)
	case a.Kind == KindOptionSet && b.Kind == KindInt:
		return int64(a.OptionSet) == b.Int
	case a.Kind == KindOptionSet && b.Kind == KindOptionSet:
		return a.OptionSet == b.OptionSet
	case a.Kind == KindString && b.Kind == KindString:
		return a.Str == b.Str
	case a.Kind == KindBool && b.Kind == KindBool:
		return a.Bool == b.Bool
	case a.Kind == KindGuid && b.Kind == KindGuid:
		return a.Guid == b.Guid
	case a.Kind == KindDateTime && b.Kind == KindDateTime:
		return a.Time.Equal(b.Time)
	case a.Kind == KindDynamic && b.Kind == KindDynamic:
		return dynamicEqual(a.Dynamic, b.Dynamic)
	default:
		return false
	}
}

func dynamicEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		keys := make([]string, 0, len(av))
		for k := range av {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bvv, ok := bv[k]
			if !ok || !dynamicEqual(av[k], bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !dynamicEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return fmt.Sprint(a) == fmt.Sprint(b) && sameScalarKind(a, b)
	}
}

func sameScalarKind(a, b any) bool {
	switch a.(type) {
	case nil:
		return b == nil
	case bool:
		_, ok := b.(bool)
		return ok
	default:
		return true
	}
}

// String renders a Value for diagnostics (error messages, logs); it is not
// the wire encoding.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDateTime:
		return v.Time.Format(time.RFC3339)
	case KindGuid:
		return v.Guid.String()
	case KindOptionSet:
		return strconv.FormatInt(int64(v.OptionSet), 10)
	case KindDynamic:
		b, err := Marshal(v.Dynamic)
		if err != nil {
			return fmt.Sprintf("%v", v.Dynamic)
		}
		return string(b)
	default:
		return ""
	}
}

// FormatNumber renders an Int or Float Value the way Format specs expect:
// no trailing ".0" for integral floats unless explicitly requested by the
// caller (FormatTemplate's format spec handles that layer).
func (v Value) FormatNumber() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'f', -1, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
		return s
	default:
		return v.String()
	}
}
