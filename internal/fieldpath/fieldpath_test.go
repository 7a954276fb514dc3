package fieldpath

import "testing"

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"name",
		"userid.email",
		"userid.contactid.firstname",
		"a.b.c.d",
	}
	for _, in := range inputs {
		p, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		if got := p.String(); got != in {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, in)
		}
		if len(p.Segments) < MinSegments || len(p.Segments) > MaxSegments {
			t.Errorf("Parse(%q) produced %d segments, out of [%d,%d]", in, len(p.Segments), MinSegments, MaxSegments)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{"", ErrEmptyPath},
		{"a..b", ErrEmptySegment},
		{"a.b.c.d.e", ErrTooManySegments},
	}
	for _, tc := range tests {
		_, err := Parse(tc.in)
		if err == nil {
			t.Fatalf("Parse(%q) expected error", tc.in)
		}
		pe, ok := err.(*ParseError)
		if !ok {
			t.Fatalf("Parse(%q) error is not *ParseError: %T", tc.in, err)
		}
		if pe.Kind != tc.kind {
			t.Errorf("Parse(%q) kind = %v, want %v", tc.in, pe.Kind, tc.kind)
		}
	}
}

func TestDepthAndSegments(t *testing.T) {
	p := MustParse("userid.contactid.firstname")
	if p.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", p.Depth())
	}
	if got := p.LookupSegments(); len(got) != 2 || got[0] != "userid" || got[1] != "contactid" {
		t.Errorf("LookupSegments() = %v", got)
	}
	if p.TargetField() != "firstname" {
		t.Errorf("TargetField() = %q", p.TargetField())
	}
	if !p.IsLookupTraversal() {
		t.Error("expected IsLookupTraversal() true")
	}

	scalar := MustParse("name")
	if scalar.Depth() != 0 || scalar.IsLookupTraversal() {
		t.Error("scalar path should have depth 0 and not be a lookup traversal")
	}
}

func TestResolveNested(t *testing.T) {
	record := map[string]any{
		"name": "Contoso",
		"userid": map[string]any{
			"email": "a@b.com",
			"contactid": map[string]any{
				"firstname": "Ada",
			},
		},
	}

	v, ok := Resolve(record, MustParse("name"))
	if !ok || v != "Contoso" {
		t.Errorf("Resolve(name) = %v, %v", v, ok)
	}

	v, ok = Resolve(record, MustParse("userid.contactid.firstname"))
	if !ok || v != "Ada" {
		t.Errorf("Resolve(userid.contactid.firstname) = %v, %v", v, ok)
	}

	_, ok = Resolve(record, MustParse("userid.missing.x"))
	if ok {
		t.Error("expected missing hop to fail resolution")
	}
}
