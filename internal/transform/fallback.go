package transform

import (
	"encoding/json"
	"fmt"

	"dynamics-transfer/internal/value"
)

// FallbackKind enumerates what a ValueMap does when no entry matches.
type FallbackKind string

const (
	FallbackError       FallbackKind = "error"
	FallbackDefault     FallbackKind = "default"
	FallbackPassThrough FallbackKind = "pass_through"
	FallbackNull        FallbackKind = "null"
)

// Fallback defaults to Error.
type Fallback struct {
	Kind  FallbackKind
	Value value.Value // meaningful only for Default
}

func FallbackErrorValue() Fallback                { return Fallback{Kind: FallbackError} }
func FallbackDefaultValue(v value.Value) Fallback { return Fallback{Kind: FallbackDefault, Value: v} }
func FallbackPassThroughValue() Fallback          { return Fallback{Kind: FallbackPassThrough} }
func FallbackNullValue() Fallback                 { return Fallback{Kind: FallbackNull} }

type fallbackWire struct {
	Kind  FallbackKind `json:"kind"`
	Value any          `json:"value,omitempty"`
}

func (f Fallback) MarshalJSON() ([]byte, error) {
	kind := f.Kind
	if kind == "" {
		kind = FallbackError
	}
	w := fallbackWire{Kind: kind}
	if kind == FallbackDefault {
		w.Value = f.Value.ToJSON()
	}
	return value.Marshal(w)
}

func (f *Fallback) UnmarshalJSON(data []byte) error {
	var w fallbackWire
	if err := value.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind == "" {
		w.Kind = FallbackError
	}
	switch w.Kind {
	case FallbackError, FallbackDefault, FallbackPassThrough, FallbackNull:
		f.Kind = w.Kind
	default:
		return fmt.Errorf("fallback: unknown kind %q", w.Kind)
	}
	if w.Value != nil {
		f.Value = value.FromJSON(w.Value)
	}
	return nil
}

var _ json.Marshaler = Fallback{}
var _ json.Unmarshaler = (*Fallback)(nil)
