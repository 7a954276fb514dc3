package configstore

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/migrate"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
	"dynamics-transfer/internal/value"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Saving then loading a TransferConfig through the SQLite schema
// reproduces the input modulo autogenerated IDs.
func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	namePath, err := fieldpath.Parse("name")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	cfg := migrate.TransferConfig{
		Name:              "contacts-migration",
		SourceEnvironment: "dev",
		TargetEnvironment: "prod",
		Mode:              migrate.ModeDeclarative,
		EntityMappings: []migrate.EntityMapping{
			{
				SourceEntity:  "contact",
				TargetEntity:  "contact",
				Priority:      1,
				Operations:    migrate.OperationFilter{Creates: true, Updates: true},
				SourcePKField: "contactid",
				TargetPKField: "contactid",
				SourceFilter: &migrate.RecordFilter{
					Path:      namePath,
					Condition: transform.IsNotNull(),
				},
				Fields: []migrate.FieldMapping{
					{TargetField: "firstname", Transform: transform.Copy{Path: namePath}},
					{TargetField: "status", Transform: transform.Constant{Value: value.String("active")}},
				},
				ValidationRules: []migrate.ValidationRule{
					{Name: "no-empty-name", Expression: `record.firstname == ""`, Message: "firstname required"},
				},
				Resolvers: map[string]resolver.Resolver{
					"owner": {
						Name:                "owner",
						RelatedSourceEntity: "systemuser",
						MatchFields:         []resolver.MatchField{{SourceField: "email", TargetField: "internalemailaddress"}},
						Fallback:            resolver.FallbackDefaultValue(uuid.New()),
					},
				},
			},
		},
	}

	if _, err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := s.Load(ctx, "contacts-migration")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.SourceEnvironment != cfg.SourceEnvironment || loaded.TargetEnvironment != cfg.TargetEnvironment {
		t.Fatalf("environments mismatch: got %+v", loaded)
	}
	if len(loaded.EntityMappings) != 1 {
		t.Fatalf("expected 1 entity mapping, got %d", len(loaded.EntityMappings))
	}
	em := loaded.EntityMappings[0]
	if em.SourceEntity != "contact" || em.Priority != 1 {
		t.Errorf("entity mapping mismatch: %+v", em)
	}
	if em.SourceFilter == nil || em.SourceFilter.Path.String() != "name" {
		t.Errorf("source filter not round-tripped: %+v", em.SourceFilter)
	}
	if len(em.Fields) != 2 {
		t.Fatalf("expected 2 field mappings, got %d", len(em.Fields))
	}
	if _, ok := em.Fields[1].Transform.(transform.Constant); !ok {
		t.Errorf("second field transform type mismatch: %T", em.Fields[1].Transform)
	}
	if len(em.ValidationRules) != 1 || em.ValidationRules[0].Name != "no-empty-name" {
		t.Errorf("validation rules not round-tripped: %+v", em.ValidationRules)
	}
	owner, ok := em.Resolvers["owner"]
	if !ok {
		t.Fatal("owner resolver missing after round trip")
	}
	if owner.Fallback.Kind != resolver.FallbackDefault {
		t.Errorf("resolver fallback kind mismatch: %+v", owner.Fallback)
	}
}

// TestSaveOverwritesExistingConfig exercises the mutation discipline: a
// second Save under the same name replaces all dependent rows rather than
// appending to them.
func TestSaveOverwritesExistingConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := migrate.TransferConfig{
		Name: "dup", SourceEnvironment: "dev", TargetEnvironment: "prod", Mode: migrate.ModeDeclarative,
		EntityMappings: []migrate.EntityMapping{{SourceEntity: "account", TargetEntity: "account", Priority: 1}},
	}
	if _, err := s.Save(ctx, base); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}

	updated := base
	updated.EntityMappings = []migrate.EntityMapping{
		{SourceEntity: "contact", TargetEntity: "contact", Priority: 2},
	}
	if _, err := s.Save(ctx, updated); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	loaded, err := s.Load(ctx, "dup")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.EntityMappings) != 1 || loaded.EntityMappings[0].SourceEntity != "contact" {
		t.Errorf("expected overwrite to leave exactly the new mapping, got %+v", loaded.EntityMappings)
	}
}
