// Package resolver maps a source-environment lookup value to the matching
// target-environment record's GUID, using a named set of match fields the
// way the config declares them (source field -> target field, all must
// match). The actual network fetch sits behind the Fetcher interface so
// this package stays independent of the platform transport.
package resolver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"dynamics-transfer/internal/value"
)

// FallbackKind enumerates what a Resolver does when zero or more-than-one
// candidate record matches.
type FallbackKind string

const (
	FallbackError   FallbackKind = "error"
	FallbackNull    FallbackKind = "null"
	FallbackDefault FallbackKind = "default"
)

// Fallback defaults to Error.
type Fallback struct {
	Kind FallbackKind
	GUID uuid.UUID // meaningful only for Default
}

func FallbackErrorValue() Fallback               { return Fallback{Kind: FallbackError} }
func FallbackNullValue() Fallback                { return Fallback{Kind: FallbackNull} }
func FallbackDefaultValue(id uuid.UUID) Fallback { return Fallback{Kind: FallbackDefault, GUID: id} }

// MatchField pairs a source field with the target field it must equal for
// a target record to be considered a match.
type MatchField struct {
	SourceField string
	TargetField string
}

// Resolver is one named cross-environment lookup-resolution rule within an
// entity mapping.
type Resolver struct {
	Name                string
	RelatedSourceEntity string
	MatchFields         []MatchField
	Fallback            Fallback
}

// Fetcher queries the platform (or a cache in front of it) for candidate
// target records matching an exact set of field values. entitySet is the
// plural entity-set name used in the URL; matches maps target field name to
// the required Value.
type Fetcher interface {
	FetchMatching(ctx context.Context, entitySet string, matches map[string]value.Value) ([]map[string]any, error)
}

// Resolve finds the target GUID for a source record under r, given the
// target entity set name and its primary-key field. It builds the match
// filter from r.MatchFields against sourceRecord, queries fetcher, and
// applies r.Fallback when zero or more than one candidate is returned.
func (r Resolver) Resolve(ctx context.Context, fetcher Fetcher, sourceRecord map[string]any, targetEntitySet, targetPKField string) (value.Value, error) {
	matches := make(map[string]value.Value, len(r.MatchFields))
	for _, mf := range r.MatchFields {
		raw, ok := sourceRecord[mf.SourceField]
		if !ok {
			return r.applyFallback(fmt.Errorf("resolver %q: source field %q missing on record", r.Name, mf.SourceField))
		}
		matches[mf.TargetField] = value.FromJSON(raw)
	}

	candidates, err := fetcher.FetchMatching(ctx, targetEntitySet, matches)
	if err != nil {
		return value.Value{}, fmt.Errorf("resolver %q: fetch candidates: %w", r.Name, err)
	}

	switch len(candidates) {
	case 1:
		raw, ok := candidates[0][targetPKField]
		if !ok {
			return r.applyFallback(fmt.Errorf("resolver %q: matched record missing primary key %q", r.Name, targetPKField))
		}
		v := value.FromJSON(raw)
		if v.Kind != value.KindGuid {
			return r.applyFallback(fmt.Errorf("resolver %q: primary key %q is not a GUID", r.Name, targetPKField))
		}
		return v, nil
	case 0:
		return r.applyFallback(fmt.Errorf("resolver %q: no target record matches %v", r.Name, matches))
	default:
		return r.applyFallback(fmt.Errorf("resolver %q: %d target records match %v, expected exactly one", r.Name, len(candidates), matches))
	}
}

func (r Resolver) applyFallback(cause error) (value.Value, error) {
	switch r.Fallback.Kind {
	case FallbackNull:
		return value.Null(), nil
	case FallbackDefault:
		return value.Guid(r.Fallback.GUID), nil
	case FallbackError:
		fallthrough
	default:
		return value.Value{}, cause
	}
}
