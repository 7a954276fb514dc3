package migrate

import (
	"testing"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/transform"
	"dynamics-transfer/internal/value"
)

// TestCopyDiffClassification: one Copy("name") mapping, two source
// records, one already present and matching in target.
func TestCopyDiffClassification(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		Priority:      1,
		Operations:    DefaultOperationFilter(),
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
		},
	}

	source := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111001", "name": "Contoso"},
		{"accountid": "11111111-1111-1111-1111-111111111002", "name": "Fabrikam"},
	}
	target := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111001", "name": "Contoso"},
	}

	result := RunEntityMapping(mapping, source, target)
	if len(result.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(result.Records))
	}

	byID := map[string]ResolvedRecord{}
	for _, r := range result.Records {
		byID[r.SourceID.String()] = r
	}

	if got := byID["11111111-1111-1111-1111-111111111001"].Action; got != ActionNoChange {
		t.Errorf("record 001 action = %v, want NoChange", got)
	}
	if got := byID["11111111-1111-1111-1111-111111111002"].Action; got != ActionCreate {
		t.Errorf("record 002 action = %v, want Create", got)
	}
}

// A record's Action is Error exactly when its Error field is set.
func TestErrorRecordHasErrorSet(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{
				TargetField: "gendercode",
				Transform: transform.ValueMap{
					Path:     fieldpath.MustParse("gendercode"),
					Entries:  []transform.ValueMapEntry{{From: value.Int(1), To: value.Int(100)}},
					Fallback: transform.FallbackErrorValue(),
				},
			},
		},
	}

	source := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111003", "gendercode": float64(99)},
	}

	result := RunEntityMapping(mapping, source, nil)
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	rec := result.Records[0]
	if rec.Action != ActionError {
		t.Fatalf("action = %v, want Error", rec.Action)
	}
	if rec.Error == nil {
		t.Fatal("Error record has nil Error")
	}

	for _, r := range result.Records {
		if (r.Action == ActionError) != (r.Error != nil) {
			t.Errorf("invariant violated for record %v: action=%v error=%v", r.SourceID, r.Action, r.Error)
		}
	}
}

// A classification the mapping's operation filter disallows is downgraded
// to Skip rather than dropped, so the resolved transfer still shows the
// record.
func TestOperationFilterDowngradesToSkip(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		Operations:    OperationFilter{Updates: true}, // creates disallowed
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
		},
	}
	source := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111005", "name": "NewCo"},
	}
	result := RunEntityMapping(mapping, source, nil)
	if len(result.Records) != 1 || result.Records[0].Action != ActionSkip {
		t.Fatalf("result = %+v, want one Skip record", result.Records)
	}
}

// GUID casing differences between environments must not break the diff: an
// upper-cased target primary key still indexes against the canonical
// source id.
func TestTargetIndexGuidCaseInsensitive(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		Operations:    DefaultOperationFilter(),
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
		},
	}
	source := []map[string]any{
		{"accountid": "aaaaaaaa-1111-1111-1111-111111111001", "name": "Contoso"},
	}
	target := []map[string]any{
		{"accountid": "AAAAAAAA-1111-1111-1111-111111111001", "name": "Contoso"},
	}
	result := RunEntityMapping(mapping, source, target)
	if len(result.Records) != 1 || result.Records[0].Action != ActionNoChange {
		t.Fatalf("result = %+v, want one NoChange record", result.Records)
	}
}

func TestTargetOnlyDetection(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
		},
	}
	target := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111004", "name": "Orphan"},
	}
	result := RunEntityMapping(mapping, nil, target)
	if len(result.Records) != 1 || result.Records[0].Action != ActionTargetOnly {
		t.Fatalf("result = %+v, want one TargetOnly record", result.Records)
	}
}

// A target filter excludes non-matching target records from both diffing
// and TargetOnly detection.
func TestTargetFilterLimitsTargetOnlyDetection(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		TargetFilter: &RecordFilter{
			Path:      fieldpath.MustParse("statecode"),
			Condition: transform.Equals(value.Int(0)),
		},
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
		},
	}
	target := []map[string]any{
		{"accountid": "11111111-1111-1111-1111-111111111006", "name": "Active orphan", "statecode": float64(0)},
		{"accountid": "11111111-1111-1111-1111-111111111007", "name": "Inactive orphan", "statecode": float64(1)},
	}
	result := RunEntityMapping(mapping, nil, target)
	if len(result.Records) != 1 || result.Records[0].Action != ActionTargetOnly {
		t.Fatalf("result = %+v, want one TargetOnly record after filtering", result.Records)
	}
	if result.Records[0].SourceID.String() != "11111111-1111-1111-1111-111111111006" {
		t.Errorf("wrong record survived the target filter: %v", result.Records[0].SourceID)
	}
}
