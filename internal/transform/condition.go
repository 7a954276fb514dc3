package transform

import (
	"encoding/json"
	"fmt"

	"dynamics-transfer/internal/value"
)

// ConditionKind enumerates the comparisons a Conditional transform supports.
type ConditionKind string

const (
	ConditionEquals    ConditionKind = "equals"
	ConditionNotEquals ConditionKind = "not_equals"
	ConditionIsNull    ConditionKind = "is_null"
	ConditionIsNotNull ConditionKind = "is_not_null"
)

// Condition is a tagged union: Equals/NotEquals carry a comparison Value,
// IsNull/IsNotNull don't need one.
type Condition struct {
	Kind  ConditionKind
	Value value.Value // meaningful only for Equals/NotEquals
}

func Equals(v value.Value) Condition    { return Condition{Kind: ConditionEquals, Value: v} }
func NotEquals(v value.Value) Condition { return Condition{Kind: ConditionNotEquals, Value: v} }
func IsNull() Condition                 { return Condition{Kind: ConditionIsNull} }
func IsNotNull() Condition              { return Condition{Kind: ConditionIsNotNull} }

// Matches evaluates the condition against a resolved field value.
func (c Condition) Matches(actual value.Value) bool {
	switch c.Kind {
	case ConditionEquals:
		return actual.Equal(c.Value)
	case ConditionNotEquals:
		return !actual.Equal(c.Value)
	case ConditionIsNull:
		return actual.IsNull()
	case ConditionIsNotNull:
		return !actual.IsNull()
	default:
		return false
	}
}

type conditionWire struct {
	Kind  ConditionKind `json:"kind"`
	Value any           `json:"value,omitempty"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	w := conditionWire{Kind: c.Kind}
	if c.Kind == ConditionEquals || c.Kind == ConditionNotEquals {
		w.Value = c.Value.ToJSON()
	}
	return value.Marshal(w)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := value.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case ConditionEquals, ConditionNotEquals, ConditionIsNull, ConditionIsNotNull:
		c.Kind = w.Kind
	default:
		return fmt.Errorf("condition: unknown kind %q", w.Kind)
	}
	if w.Value != nil {
		c.Value = value.FromJSON(w.Value)
	}
	return nil
}

var _ json.Marshaler = Condition{}
var _ json.Unmarshaler = (*Condition)(nil)
