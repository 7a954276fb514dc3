package migrate

import (
	"context"
	"testing"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/metadata"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
	"dynamics-transfer/internal/value"
)

// fakeQueryClient answers Query with a fixed, per-entity-set page of
// records, ignoring the query string, enough to drive DryRun end to end
// without a real platform.Client.
type fakeQueryClient struct {
	pages map[string][]map[string]any
}

func (f fakeQueryClient) Query(_ context.Context, entitySet, _ string) ([]map[string]any, error) {
	return f.pages[entitySet], nil
}

func accountMetadata() metadata.EntityMetadata {
	return metadata.EntityMetadata{
		LogicalName:   "account",
		EntitySetName: "accounts",
		Fields: []metadata.FieldMetadata{
			{Name: "accountid", Type: metadata.TypeGuid, IsPrimaryKey: true},
			{Name: "name", Type: metadata.TypeString},
			{
				Name: "primarycontactid", Type: metadata.TypeLookup,
				RelatedEntity: "contact", NavigationProperty: "primarycontactid_contact",
			},
		},
	}
}

func contactMetadata() metadata.EntityMetadata {
	return metadata.EntityMetadata{
		LogicalName:   "contact",
		EntitySetName: "contacts",
		Fields: []metadata.FieldMetadata{
			{Name: "contactid", Type: metadata.TypeGuid, IsPrimaryKey: true},
			{Name: "firstname", Type: metadata.TypeString},
		},
	}
}

func testMetaService() metadata.Service {
	return metadata.NewStaticService([]metadata.EntityMetadata{accountMetadata(), contactMetadata()})
}

// systemuserMetadata is the intermediate entity in a 2-hop path
// (account.userid.contactid.firstname): its own "contactid" lookup field's
// navigation property is deliberately schema-cased differently than the
// segment name, so a test that only ever consulted the root account
// entity's metadata could not produce it.
func systemuserMetadata() metadata.EntityMetadata {
	return metadata.EntityMetadata{
		LogicalName:   "systemuser",
		EntitySetName: "systemusers",
		Fields: []metadata.FieldMetadata{
			{Name: "systemuserid", Type: metadata.TypeGuid, IsPrimaryKey: true},
			{
				Name: "contactid", Type: metadata.TypeLookup,
				RelatedEntity: "contact", NavigationProperty: "ContactId_Contact",
			},
		},
	}
}

func accountMetadataWithUserLookup() metadata.EntityMetadata {
	ent := accountMetadata()
	ent.Fields = append(ent.Fields, metadata.FieldMetadata{
		Name: "userid", Type: metadata.TypeLookup,
		RelatedEntity: "systemuser", NavigationProperty: "userid_systemuser",
	})
	return ent
}

func twoHopMetaService() metadata.Service {
	return metadata.NewStaticService([]metadata.EntityMetadata{
		accountMetadataWithUserLookup(), systemuserMetadata(), contactMetadata(),
	})
}

// TestDryRunEndToEnd runs a full DryRun over a one-entity config (Copy +
// diff + classification) through the orchestrator, not just the
// RunEntityMapping primitive.
func TestDryRunEndToEnd(t *testing.T) {
	cfg := TransferConfig{
		Name:              "acme-to-contoso",
		SourceEnvironment: "acme",
		TargetEnvironment: "contoso",
		Mode:              ModeDeclarative,
		EntityMappings: []EntityMapping{
			{
				SourceEntity:  "account",
				TargetEntity:  "account",
				Priority:      1,
				Operations:    DefaultOperationFilter(),
				SourcePKField: "accountid",
				TargetPKField: "accountid",
				Fields: []FieldMapping{
					{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
				},
			},
		},
	}

	source := fakeQueryClient{pages: map[string][]map[string]any{
		"accounts": {
			{"accountid": "11111111-1111-1111-1111-111111111001", "name": "Contoso"},
			{"accountid": "11111111-1111-1111-1111-111111111002", "name": "Fabrikam"},
		},
	}}
	target := fakeQueryClient{pages: map[string][]map[string]any{
		"accounts": {
			{"accountid": "11111111-1111-1111-1111-111111111001", "name": "Contoso"},
		},
	}}

	transfer, err := DryRun(context.Background(), cfg, testMetaService(), source, target, noopFetcher{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if len(transfer.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(transfer.Entities))
	}
	entity := transfer.Entities[0]
	if entity.EntitySetName != "accounts" {
		t.Errorf("EntitySetName = %q, want accounts", entity.EntitySetName)
	}

	var creates, noChange int
	for _, r := range entity.Records {
		switch r.Action {
		case ActionCreate:
			creates++
		case ActionNoChange:
			noChange++
		}
	}
	if creates != 1 || noChange != 1 {
		t.Errorf("got %d create, %d no_change, want 1 and 1", creates, noChange)
	}
}

// TestPlanSourceQueryCoversLookupPath: a
// Copy("primarycontactid.firstname") transform must produce an $expand
// clause for the traversed navigation.
func TestPlanSourceQueryCoversLookupPath(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
			{TargetField: "contact_first", Transform: transform.Copy{Path: fieldpath.MustParse("primarycontactid.firstname")}},
		},
	}

	q, err := PlanSourceQuery(context.Background(), mapping, testMetaService())
	if err != nil {
		t.Fatalf("PlanSourceQuery: %v", err)
	}
	if !contains(q, "$select=accountid,name") {
		t.Errorf("query %q missing expected $select", q)
	}
	if !contains(q, "primarycontactid_contact($select=firstname)") {
		t.Errorf("query %q missing expected $expand", q)
	}
}

// TestPlanSourceQueryTwoHopUsesIntermediateEntityMetadata:
// userid.contactid.firstname traverses account -> systemuser -> contact.
// The second hop's navigation name
// ("ContactId_Contact") lives on the systemuser entity's metadata, not
// account's, so this only passes if the planner resolves each hop against
// the entity the PRIOR hop's lookup field points at.
func TestPlanSourceQueryTwoHopUsesIntermediateEntityMetadata(t *testing.T) {
	mapping := EntityMapping{
		SourceEntity:  "account",
		TargetEntity:  "account",
		SourcePKField: "accountid",
		TargetPKField: "accountid",
		Fields: []FieldMapping{
			{TargetField: "name", Transform: transform.Copy{Path: fieldpath.MustParse("name")}},
			{TargetField: "owner_first", Transform: transform.Copy{Path: fieldpath.MustParse("userid.contactid.firstname")}},
		},
	}

	q, err := PlanSourceQuery(context.Background(), mapping, twoHopMetaService())
	if err != nil {
		t.Fatalf("PlanSourceQuery: %v", err)
	}
	if !contains(q, "userid_systemuser(") || !contains(q, "$expand=ContactId_Contact($select=firstname)") {
		t.Errorf("query %q missing expected second-hop navigation from the intermediate entity", q)
	}
}

func TestBuildBindingContextMapsLookupFields(t *testing.T) {
	cfg := TransferConfig{
		EntityMappings: []EntityMapping{
			{SourceEntity: "account", TargetEntity: "account"},
		},
	}
	ctx, err := BuildBindingContext(context.Background(), cfg, testMetaService())
	if err != nil {
		t.Fatalf("BuildBindingContext: %v", err)
	}
	binding, ok := ctx["primarycontactid"]
	if !ok {
		t.Fatalf("expected binding for primarycontactid")
	}
	if binding.NavigationName != "primarycontactid_contact" || binding.TargetEntitySet != "contacts" {
		t.Errorf("binding = %+v, want nav=primarycontactid_contact set=contacts", binding)
	}
}

type noopFetcher struct{}

func (noopFetcher) FetchMatching(context.Context, string, map[string]value.Value) ([]map[string]any, error) {
	return nil, nil
}

var _ resolver.Fetcher = noopFetcher{}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
