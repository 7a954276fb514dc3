// Package fieldpath implements FieldPath: an ordered, depth-bounded sequence
// of dot-separated segments referencing a scalar field reached by zero or
// more lookup traversals from the source entity.
package fieldpath

import (
	"errors"
	"strconv"
	"strings"
)

const (
	MinSegments = 1
	MaxSegments = 4
)

// Kind classifies a parse failure so callers can surface a specific message.
type Kind int

const (
	ErrEmptyPath Kind = iota
	ErrEmptySegment
	ErrTooManySegments
)

// ParseError is returned by Parse on invalid input.
type ParseError struct {
	Kind  Kind
	Input string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrEmptyPath:
		return "field path: empty path"
	case ErrEmptySegment:
		return "field path: empty segment in " + e.Input
	case ErrTooManySegments:
		return "field path: more than " + strconv.Itoa(MaxSegments) + " segments in " + e.Input
	default:
		return "field path: invalid " + e.Input
	}
}

var ErrInvalid = errors.New("field path: invalid")

// FieldPath is an ordered, non-empty sequence of 1-4 segments.
// Depth 0 (len(Segments) == 1) is a scalar field on the source entity.
// Depth N (len(Segments) == N+1) traverses N lookup relationships before
// reaching the terminal field.
type FieldPath struct {
	Segments []string
}

// Parse splits a dotted field reference into a FieldPath, rejecting empty
// paths, empty segments, and paths deeper than MaxSegments.
func Parse(s string) (FieldPath, error) {
	if s == "" {
		return FieldPath{}, &ParseError{Kind: ErrEmptyPath}
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return FieldPath{}, &ParseError{Kind: ErrEmptySegment, Input: s}
		}
	}
	if len(parts) > MaxSegments {
		return FieldPath{}, &ParseError{Kind: ErrTooManySegments, Input: s}
	}
	return FieldPath{Segments: parts}, nil
}

// MustParse panics on invalid input; used for literal paths in tests/config
// defaults where the caller controls correctness.
func MustParse(s string) FieldPath {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path back to its dotted form. Parse(p.String()) == p.
func (p FieldPath) String() string {
	return strings.Join(p.Segments, ".")
}

// Depth is the number of lookup traversals before the terminal field:
// 0 for a scalar field on the source entity, len(Segments)-1 otherwise.
func (p FieldPath) Depth() int {
	if len(p.Segments) == 0 {
		return 0
	}
	return len(p.Segments) - 1
}

// LookupSegments returns the segments traversed before the terminal field
// (empty for a depth-0 path).
func (p FieldPath) LookupSegments() []string {
	if len(p.Segments) <= 1 {
		return nil
	}
	return p.Segments[:len(p.Segments)-1]
}

// TargetField is the final segment: the scalar field actually read or
// written at the end of the traversal.
func (p FieldPath) TargetField() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// IsLookupTraversal reports whether the path crosses at least one lookup
// relationship (depth >= 1); only such paths participate in expand planning.
func (p FieldPath) IsLookupTraversal() bool {
	return p.Depth() >= 1
}

// Equal compares two paths segment-for-segment.
func (p FieldPath) Equal(other FieldPath) bool {
	if len(p.Segments) != len(other.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// Resolve walks a nested JSON object (as decoded by value.Unmarshal into
// map[string]any) following the path's lookup segments as nested object
// keys, and returns the raw JSON value found at the terminal field, or
// (nil, false) if any hop is missing or not an object.
func Resolve(record map[string]any, p FieldPath) (any, bool) {
	cur := record
	for _, seg := range p.LookupSegments() {
		next, ok := cur[seg]
		if !ok || next == nil {
			return nil, false
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = nextMap
	}
	v, ok := cur[p.TargetField()]
	return v, ok
}
