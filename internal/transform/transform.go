// Package transform implements the per-field transform algebra: Copy,
// Constant, Conditional, ValueMap, Format, and Replace. Each variant
// resolves against a source record (and, for lookup-traversal paths, the
// already-fetched $expand data nested in that same record) to produce a
// Value or an evaluation error.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/format"
	"dynamics-transfer/internal/value"
)

// Transform is implemented by every field-transform variant.
type Transform interface {
	// LookupPaths returns every lookup-traversal (depth >= 1) FieldPath this
	// transform dereferences, so the expand planner can build $expand
	// clauses covering them. Depth-0 paths resolve off the top-level record
	// and are excluded.
	LookupPaths() []fieldpath.FieldPath
	// Evaluate resolves the transform against record, a JSON object decoded
	// from the source entity's row (with expanded navigation properties
	// nested as sub-objects).
	Evaluate(record map[string]any) (value.Value, error)
	kind() string
}

func resolveValue(record map[string]any, p fieldpath.FieldPath) value.Value {
	raw, ok := fieldpath.Resolve(record, p)
	if !ok {
		return value.Null()
	}
	return value.FromJSON(raw)
}

func lookupTraversals(paths ...fieldpath.FieldPath) []fieldpath.FieldPath {
	var out []fieldpath.FieldPath
	for _, p := range paths {
		if p.IsLookupTraversal() {
			out = append(out, p)
		}
	}
	return out
}

// Copy resolves Path against the record. When Resolver is set the returned
// Value is the source value unchanged at this stage; the lookup binder
// substitutes the resolved target GUID later, once cross-environment
// resolution has run.
type Copy struct {
	Path     fieldpath.FieldPath
	Resolver string // named resolver key, empty if this isn't a lookup copy
}

func (c Copy) kind() string { return "copy" }
func (c Copy) LookupPaths() []fieldpath.FieldPath {
	return lookupTraversals(c.Path)
}
func (c Copy) Evaluate(record map[string]any) (value.Value, error) {
	return resolveValue(record, c.Path), nil
}

// Constant always returns Value regardless of the record.
type Constant struct {
	Value value.Value
}

func (c Constant) kind() string                                 { return "constant" }
func (c Constant) LookupPaths() []fieldpath.FieldPath           { return nil }
func (c Constant) Evaluate(map[string]any) (value.Value, error) { return c.Value, nil }

// Conditional evaluates Condition against Path's resolved value and returns
// Then or Else accordingly.
type Conditional struct {
	Path      fieldpath.FieldPath
	Condition Condition
	Then      Transform
	Else      Transform
}

func (c Conditional) kind() string { return "conditional" }
func (c Conditional) LookupPaths() []fieldpath.FieldPath {
	paths := lookupTraversals(c.Path)
	paths = append(paths, c.Then.LookupPaths()...)
	paths = append(paths, c.Else.LookupPaths()...)
	return paths
}
func (c Conditional) Evaluate(record map[string]any) (value.Value, error) {
	actual := resolveValue(record, c.Path)
	if c.Condition.Matches(actual) {
		return c.Then.Evaluate(record)
	}
	return c.Else.Evaluate(record)
}

// ValueMapEntry is one (from, to) pair in a ValueMap's lookup table.
type ValueMapEntry struct {
	From value.Value
	To   value.Value
}

// ValueMap performs a linear search of Entries for a Value-equal match
// (with the numeric coercions Value.Equal already implements); on miss it
// applies Fallback.
type ValueMap struct {
	Path     fieldpath.FieldPath
	Entries  []ValueMapEntry
	Fallback Fallback
}

func (m ValueMap) kind() string { return "value_map" }
func (m ValueMap) LookupPaths() []fieldpath.FieldPath {
	return lookupTraversals(m.Path)
}
func (m ValueMap) Evaluate(record map[string]any) (value.Value, error) {
	actual := resolveValue(record, m.Path)
	for _, e := range m.Entries {
		if actual.Equal(e.From) {
			return e.To, nil
		}
	}
	switch m.Fallback.Kind {
	case FallbackPassThrough:
		return actual, nil
	case FallbackDefault:
		return m.Fallback.Value, nil
	case FallbackNull:
		return value.Null(), nil
	case FallbackError:
		fallthrough
	default:
		return value.Value{}, fmt.Errorf("value_map: no entry matches %s for %s and fallback is error", actual.String(), m.Path.String())
	}
}

// Format evaluates a parsed FormatTemplate against the record, applying
// NullHandling to arithmetic subexpressions, and returns the rendered
// string as a Value.
type Format struct {
	Template     *format.Template
	NullHandling format.NullHandling
}

func (f Format) kind() string { return "format" }
func (f Format) LookupPaths() []fieldpath.FieldPath {
	return lookupTraversals(f.Template.FieldPaths()...)
}
func (f Format) Evaluate(record map[string]any) (value.Value, error) {
	resolver := func(p fieldpath.FieldPath) (value.Value, bool) {
		raw, ok := fieldpath.Resolve(record, p)
		if !ok {
			return value.Null(), false
		}
		return value.FromJSON(raw), true
	}
	rendered, err := f.Template.Render(resolver, f.NullHandling)
	if err != nil {
		return value.Value{}, fmt.Errorf("format: %w", err)
	}
	return value.String(rendered), nil
}

// ReplacePair is one (pattern, replacement) step, applied in order.
type ReplacePair struct {
	Pattern     string
	Replacement string
}

// Replace resolves Path, requires a string, and applies each Pairs entry in
// order as a literal substring replacement.
type Replace struct {
	Path  fieldpath.FieldPath
	Pairs []ReplacePair
	// Regexp upgrades every pair's Pattern from literal substring matching
	// to compiled regular-expression matching. Off by default.
	Regexp bool
}

func (r Replace) kind() string { return "replace" }
func (r Replace) LookupPaths() []fieldpath.FieldPath {
	return lookupTraversals(r.Path)
}
func (r Replace) Evaluate(record map[string]any) (value.Value, error) {
	actual := resolveValue(record, r.Path)
	if actual.Kind != value.KindString {
		return value.Value{}, fmt.Errorf("replace: %s did not resolve to a string (got %s)", r.Path.String(), actual.Kind)
	}
	s := actual.Str
	for _, pair := range r.Pairs {
		if r.Regexp {
			re, err := regexp.Compile(pair.Pattern)
			if err != nil {
				return value.Value{}, fmt.Errorf("replace: invalid pattern %q: %w", pair.Pattern, err)
			}
			s = re.ReplaceAllString(s, pair.Replacement)
			continue
		}
		s = strings.ReplaceAll(s, pair.Pattern, pair.Replacement)
	}
	return value.String(s), nil
}

// wireTransform is the tagged-union JSON envelope every Transform variant
// marshals through: a "kind" discriminator plus the union of all variant
// payload fields, each omitted when empty.
type wireTransform struct {
	Kind string `json:"kind"`

	Path     string `json:"path,omitempty"`
	Resolver string `json:"resolver,omitempty"`

	Value any `json:"value,omitempty"`

	Condition *Condition       `json:"condition,omitempty"`
	Then      *wireTransform   `json:"then,omitempty"`
	Else      *wireTransform   `json:"else,omitempty"`

	Entries  []wireValueMapEntry `json:"entries,omitempty"`
	Fallback *Fallback           `json:"fallback,omitempty"`

	Template     string `json:"template,omitempty"`
	NullHandling string `json:"null_handling,omitempty"`

	Pairs  []ReplacePair `json:"pairs,omitempty"`
	Regexp bool          `json:"regexp,omitempty"`
}

type wireValueMapEntry struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// MarshalTransform serializes any Transform to its tagged JSON form.
func MarshalTransform(t Transform) ([]byte, error) {
	w, err := toWire(t)
	if err != nil {
		return nil, err
	}
	return value.Marshal(w)
}

func toWire(t Transform) (wireTransform, error) {
	switch v := t.(type) {
	case Copy:
		return wireTransform{Kind: "copy", Path: v.Path.String(), Resolver: v.Resolver}, nil
	case Constant:
		return wireTransform{Kind: "constant", Value: v.Value.ToJSON()}, nil
	case Conditional:
		thenW, err := toWire(v.Then)
		if err != nil {
			return wireTransform{}, err
		}
		elseW, err := toWire(v.Else)
		if err != nil {
			return wireTransform{}, err
		}
		cond := v.Condition
		return wireTransform{
			Kind: "conditional", Path: v.Path.String(),
			Condition: &cond, Then: &thenW, Else: &elseW,
		}, nil
	case ValueMap:
		entries := make([]wireValueMapEntry, len(v.Entries))
		for i, e := range v.Entries {
			entries[i] = wireValueMapEntry{From: e.From.ToJSON(), To: e.To.ToJSON()}
		}
		fb := v.Fallback
		return wireTransform{Kind: "value_map", Path: v.Path.String(), Entries: entries, Fallback: &fb}, nil
	case Format:
		nh := nullHandlingToWire(v.NullHandling)
		return wireTransform{Kind: "format", Template: v.Template.String(), NullHandling: nh}, nil
	case Replace:
		return wireTransform{Kind: "replace", Path: v.Path.String(), Pairs: v.Pairs, Regexp: v.Regexp}, nil
	default:
		return wireTransform{}, fmt.Errorf("transform: unknown variant %T", t)
	}
}

func nullHandlingToWire(nh format.NullHandling) string {
	switch nh {
	case format.NullZero:
		return "zero"
	case format.NullEmpty:
		return "empty"
	default:
		return "error"
	}
}

func nullHandlingFromWire(s string) format.NullHandling {
	switch s {
	case "zero":
		return format.NullZero
	case "empty":
		return format.NullEmpty
	default:
		return format.NullError
	}
}

// UnmarshalTransform parses a tagged JSON transform into its concrete type.
func UnmarshalTransform(data []byte) (Transform, error) {
	var w wireTransform
	if err := value.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

func fromWire(w wireTransform) (Transform, error) {
	switch w.Kind {
	case "copy":
		p, err := fieldpath.Parse(w.Path)
		if err != nil {
			return nil, err
		}
		return Copy{Path: p, Resolver: w.Resolver}, nil
	case "constant":
		return Constant{Value: value.FromJSON(w.Value)}, nil
	case "conditional":
		p, err := fieldpath.Parse(w.Path)
		if err != nil {
			return nil, err
		}
		if w.Condition == nil || w.Then == nil || w.Else == nil {
			return nil, fmt.Errorf("transform: conditional missing condition/then/else")
		}
		then, err := fromWire(*w.Then)
		if err != nil {
			return nil, err
		}
		els, err := fromWire(*w.Else)
		if err != nil {
			return nil, err
		}
		return Conditional{Path: p, Condition: *w.Condition, Then: then, Else: els}, nil
	case "value_map":
		p, err := fieldpath.Parse(w.Path)
		if err != nil {
			return nil, err
		}
		entries := make([]ValueMapEntry, len(w.Entries))
		for i, e := range w.Entries {
			entries[i] = ValueMapEntry{From: value.FromJSON(e.From), To: value.FromJSON(e.To)}
		}
		fb := FallbackErrorValue()
		if w.Fallback != nil {
			fb = *w.Fallback
		}
		return ValueMap{Path: p, Entries: entries, Fallback: fb}, nil
	case "format":
		tmpl, err := format.Parse(w.Template)
		if err != nil {
			return nil, err
		}
		return Format{Template: tmpl, NullHandling: nullHandlingFromWire(w.NullHandling)}, nil
	case "replace":
		p, err := fieldpath.Parse(w.Path)
		if err != nil {
			return nil, err
		}
		return Replace{Path: p, Pairs: w.Pairs, Regexp: w.Regexp}, nil
	default:
		return nil, fmt.Errorf("transform: unknown kind %q", w.Kind)
	}
}
