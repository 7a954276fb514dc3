package expand

import (
	"reflect"
	"testing"

	"dynamics-transfer/internal/fieldpath"
)

func mustPaths(t *testing.T, raw ...string) []fieldpath.FieldPath {
	t.Helper()
	out := make([]fieldpath.FieldPath, len(raw))
	for i, r := range raw {
		p, err := fieldpath.Parse(r)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", r, err)
		}
		out[i] = p
	}
	return out
}

// TestTwoLevelSharedRoot merges a one-hop path and two two-hop paths that
// share a root segment with a second, independent one-hop path.
func TestTwoLevelSharedRoot(t *testing.T) {
	tree := NewTree(nil, nil)
	tree.AddAll(mustPaths(t,
		"userid.email",
		"userid.contactid.firstname",
		"userid.contactid.lastname",
		"accountid.name",
	))

	got := tree.Clauses()
	want := []string{
		"accountid($select=name)",
		"userid($select=email;$expand=contactid($select=firstname,lastname))",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clauses() = %v, want %v", got, want)
	}
}

func TestScalarPathsIgnored(t *testing.T) {
	tree := NewTree(nil, nil)
	tree.AddAll(mustPaths(t, "name", "accountid.name"))
	got := tree.Clauses()
	want := []string{"accountid($select=name)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clauses() = %v, want %v", got, want)
	}
}

func TestNavigationMapCasingAndLookupRewrite(t *testing.T) {
	tree := NewTree(
		NavigationMap{"parentaccountid": "ParentAccountId"},
		LookupFieldSet{"ownerid": true},
	)
	tree.Add(mustPaths(t, "parentaccountid.ownerid")[0])

	got := tree.Clauses()
	want := []string{"ParentAccountId($select=_ownerid_value)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clauses() = %v, want %v", got, want)
	}
}

func TestNonLeafWithoutOwnSelectsSelectsChildSegment(t *testing.T) {
	tree := NewTree(nil, nil)
	tree.Add(mustPaths(t, "userid.contactid.firstname")[0])

	got := tree.Clauses()
	want := []string{"userid($select=contactid;$expand=contactid($select=firstname))"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clauses() = %v, want %v", got, want)
	}
}

// A field that is both selected and further expanded at the same level must
// be selected in its "_field_value" lookup form.
func TestFieldBothSelectedAndExpandedRewritten(t *testing.T) {
	tree := NewTree(nil, nil)
	tree.AddAll(mustPaths(t, "userid.contactid", "userid.contactid.firstname"))

	got := tree.Clauses()
	want := []string{"userid($select=_contactid_value;$expand=contactid($select=firstname))"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clauses() = %v, want %v", got, want)
	}
}

func TestEmptyTree(t *testing.T) {
	tree := NewTree(nil, nil)
	if got := tree.Clauses(); len(got) != 0 {
		t.Errorf("Clauses() on empty tree = %v, want empty", got)
	}
}
