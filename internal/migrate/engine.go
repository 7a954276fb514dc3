package migrate

import (
	"fmt"

	"github.com/google/uuid"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/value"
)

// RunEntityMapping implements the per-entity transform-and-diff algorithm:
// every source record runs through every field transform,
// gets diffed against its indexed target counterpart, and is classified
// into one of the RecordAction outcomes. A classification the mapping's
// operation filter disallows is downgraded to Skip. Target records with no
// matching source record are emitted as TargetOnly.
func RunEntityMapping(mapping EntityMapping, sourceRecords, targetRecords []map[string]any) ResolvedEntity {
	if mapping.TargetFilter != nil {
		targetRecords = filterRecords(targetRecords, *mapping.TargetFilter)
	}

	targetIndex := make(map[string]map[string]any, len(targetRecords))
	for _, tr := range targetRecords {
		if key, ok := pkKey(tr[mapping.TargetPKField]); ok {
			targetIndex[key] = tr
		}
	}

	fieldOrder := make([]string, len(mapping.Fields))
	for i, fm := range mapping.Fields {
		fieldOrder[i] = fm.TargetField
	}

	filtered := sourceRecords
	if mapping.SourceFilter != nil {
		filtered = filterRecords(sourceRecords, *mapping.SourceFilter)
	}

	sourceIDs := make(map[string]bool, len(filtered))
	records := make([]ResolvedRecord, 0, len(filtered)+len(targetRecords))

	for _, src := range filtered {
		rr := resolveOneRecord(mapping, src, targetIndex)
		sourceIDs[rr.SourceID.String()] = true
		records = append(records, rr)
	}

	for _, tr := range targetRecords {
		pkRaw, ok := tr[mapping.TargetPKField]
		if !ok {
			continue
		}
		pkStr := fmt.Sprint(pkRaw)
		id, err := uuid.Parse(pkStr)
		if err != nil || sourceIDs[id.String()] {
			continue
		}
		projection := make(map[string]any, len(fieldOrder))
		for _, f := range fieldOrder {
			if v, ok := tr[f]; ok {
				projection[f] = v
			}
		}
		records = append(records, ResolvedRecord{SourceID: id, Action: ActionTargetOnly, Fields: projection})
	}

	return ResolvedEntity{
		TargetEntity: mapping.TargetEntity,
		Priority:     mapping.Priority,
		PKField:      mapping.TargetPKField,
		FieldOrder:   fieldOrder,
		Records:      records,
		DirtyRecords: map[uuid.UUID]bool{},
	}
}

func filterRecords(records []map[string]any, filter RecordFilter) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		raw, _ := fieldpath.Resolve(r, filter.Path)
		if filter.Condition.Matches(value.FromJSON(raw)) {
			out = append(out, r)
		}
	}
	return out
}

func resolveOneRecord(mapping EntityMapping, src map[string]any, targetIndex map[string]map[string]any) ResolvedRecord {
	sourceID, idErr := parseOrSynthesizeID(src[mapping.SourcePKField])

	fields := make(map[string]any, len(mapping.Fields))
	var errs []ErrorDetail

	for _, fm := range mapping.Fields {
		v, err := fm.Transform.Evaluate(src)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: fm.TargetField, Rule: "transform", Message: err.Error()})
			continue
		}
		fields[fm.TargetField] = v.ToJSON()
	}

	if idErr != nil {
		errs = append(errs, ErrorDetail{Field: mapping.SourcePKField, Rule: "primary_key", Message: idErr.Error()})
	}

	if len(errs) > 0 {
		return ResolvedRecord{
			SourceID: sourceID,
			Action:   ActionError,
			Fields:   fields,
			Error:    ValidationError(errs),
		}
	}

	target, hasTarget := targetIndex[sourceID.String()]
	if !hasTarget {
		if !mapping.Operations.Creates {
			return ResolvedRecord{SourceID: sourceID, Action: ActionSkip, Fields: fields}
		}
		return ResolvedRecord{SourceID: sourceID, Action: ActionCreate, Fields: fields}
	}
	if recordsEqual(fields, target) {
		return ResolvedRecord{SourceID: sourceID, Action: ActionNoChange, Fields: fields}
	}
	if !mapping.Operations.Updates {
		return ResolvedRecord{SourceID: sourceID, Action: ActionSkip, Fields: fields}
	}
	return ResolvedRecord{SourceID: sourceID, Action: ActionUpdate, Fields: fields}
}

// pkKey canonicalizes a primary-key JSON value for target-index lookups:
// a parsable UUID keys by its canonical (lowercase) form so GUID casing
// differences between environments don't break the diff, anything else keys
// by its literal string.
func pkKey(raw any) (string, bool) {
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	if id, err := uuid.Parse(s); err == nil {
		return id.String(), true
	}
	return s, true
}

// parseOrSynthesizeID parses the source primary key as a UUID; an invalid
// or missing id still yields a usable (synthesised) id so the rest of the
// pipeline can proceed with a flagged error record rather than aborting.
func parseOrSynthesizeID(raw any) (uuid.UUID, error) {
	s, _ := raw.(string)
	if s == "" {
		return uuid.New(), fmt.Errorf("missing primary key")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.New(), fmt.Errorf("invalid primary key %q: %w", s, err)
	}
	return id, nil
}

// recordsEqual implements the diff rule: a resolved field map equals its
// target counterpart iff every produced field's Value, converted back to
// JSON, reproduces the target's JSON value up to the documented coercions
// (value.Value.Equal already implements Int/Float, Guid case, DateTime
// instant, and OptionSet/Int coercions).
func recordsEqual(produced map[string]any, target map[string]any) bool {
	for field, producedRaw := range produced {
		targetRaw, ok := target[field]
		if !ok {
			return false
		}
		if !value.FromJSON(producedRaw).Equal(value.FromJSON(targetRaw)) {
			return false
		}
	}
	return true
}
