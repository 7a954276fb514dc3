package configstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/migrate"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
	"dynamics-transfer/internal/value"
)

// recordFilterWire is the tagged-variant JSON shape stored in
// source_filter_json/target_filter_json, mirroring transform's own
// tagged-union wire structs (condition.go, fallback.go).
type recordFilterWire struct {
	Path      string            `json:"path"`
	Condition transform.Condition `json:"condition"`
}

func marshalRecordFilter(f *migrate.RecordFilter) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := value.Marshal(recordFilterWire{Path: f.Path.String(), Condition: f.Condition})
	if err != nil {
		return nil, fmt.Errorf("marshal record filter: %w", err)
	}
	return string(b), nil
}

func unmarshalRecordFilter(raw sql.NullString) (*migrate.RecordFilter, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var w recordFilterWire
	if err := value.Unmarshal([]byte(raw.String), &w); err != nil {
		return nil, fmt.Errorf("unmarshal record filter: %w", err)
	}
	path, err := fieldpath.Parse(w.Path)
	if err != nil {
		return nil, fmt.Errorf("record filter path: %w", err)
	}
	return &migrate.RecordFilter{Path: path, Condition: w.Condition}, nil
}

type validationRuleWire struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Message    string `json:"message"`
}

func marshalValidationRules(rules []migrate.ValidationRule) (any, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	wire := make([]validationRuleWire, len(rules))
	for i, r := range rules {
		wire[i] = validationRuleWire{Name: r.Name, Expression: r.Expression, Message: r.Message}
	}
	b, err := value.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal validation rules: %w", err)
	}
	return string(b), nil
}

func unmarshalValidationRules(raw sql.NullString) ([]migrate.ValidationRule, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var wire []validationRuleWire
	if err := value.Unmarshal([]byte(raw.String), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal validation rules: %w", err)
	}
	rules := make([]migrate.ValidationRule, len(wire))
	for i, w := range wire {
		rules[i] = migrate.ValidationRule{Name: w.Name, Expression: w.Expression, Message: w.Message}
	}
	return rules, nil
}

func insertEntityMapping(ctx context.Context, tx *sql.Tx, configID string, ordinal int, em migrate.EntityMapping) error {
	mappingID := uuid.NewString()

	sourceFilterJSON, err := marshalRecordFilter(em.SourceFilter)
	if err != nil {
		return err
	}
	targetFilterJSON, err := marshalRecordFilter(em.TargetFilter)
	if err != nil {
		return err
	}
	validationJSON, err := marshalValidationRules(em.ValidationRules)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfer_entity_mappings
			(id, config_id, source_entity, target_entity, priority,
			 allow_creates, allow_updates, allow_deletes, allow_deactivates,
			 source_pk_field, target_pk_field, source_filter_json, target_filter_json,
			 validation_json, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mappingID, configID, em.SourceEntity, em.TargetEntity, em.Priority,
		boolToInt(em.Operations.Creates), boolToInt(em.Operations.Updates),
		boolToInt(em.Operations.Deletes), boolToInt(em.Operations.Deactivates),
		em.SourcePKField, em.TargetPKField, sourceFilterJSON, targetFilterJSON,
		validationJSON, ordinal)
	if err != nil {
		return fmt.Errorf("insert entity mapping %s->%s: %w", em.SourceEntity, em.TargetEntity, err)
	}

	for i, fm := range em.Fields {
		if err := insertFieldMapping(ctx, tx, mappingID, i, fm); err != nil {
			return err
		}
	}
	for name, r := range em.Resolvers {
		if err := insertResolver(ctx, tx, mappingID, name, r); err != nil {
			return err
		}
	}
	return nil
}

func insertFieldMapping(ctx context.Context, tx *sql.Tx, mappingID string, ordinal int, fm migrate.FieldMapping) error {
	transformJSON, err := transform.MarshalTransform(fm.Transform)
	if err != nil {
		return fmt.Errorf("marshal transform for field %s: %w", fm.TargetField, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfer_field_mappings (id, entity_mapping_id, target_field, transform_json, ordinal)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), mappingID, fm.TargetField, string(transformJSON), ordinal)
	if err != nil {
		return fmt.Errorf("insert field mapping %s: %w", fm.TargetField, err)
	}
	return nil
}

type matchFieldWire struct {
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`
}

func resolverFallbackWire(f resolver.Fallback) string {
	switch f.Kind {
	case resolver.FallbackDefault:
		return "default:" + f.GUID.String()
	case resolver.FallbackNull:
		return "null"
	default:
		return "error"
	}
}

func parseResolverFallback(s string) (resolver.Fallback, error) {
	switch {
	case s == "error" || s == "":
		return resolver.FallbackErrorValue(), nil
	case s == "null":
		return resolver.FallbackNullValue(), nil
	case len(s) > 8 && s[:8] == "default:":
		id, err := uuid.Parse(s[8:])
		if err != nil {
			return resolver.Fallback{}, fmt.Errorf("resolver fallback guid: %w", err)
		}
		return resolver.FallbackDefaultValue(id), nil
	default:
		return resolver.Fallback{}, fmt.Errorf("unknown resolver fallback %q", s)
	}
}

func insertResolver(ctx context.Context, tx *sql.Tx, mappingID, name string, r resolver.Resolver) error {
	wire := make([]matchFieldWire, len(r.MatchFields))
	for i, m := range r.MatchFields {
		wire[i] = matchFieldWire{SourceField: m.SourceField, TargetField: m.TargetField}
	}
	matchFieldsJSON, err := value.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal resolver match fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfer_resolvers (id, entity_mapping_id, name, source_entity, match_fields_json, fallback)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), mappingID, name, r.RelatedSourceEntity, string(matchFieldsJSON), resolverFallbackWire(r.Fallback))
	if err != nil {
		return fmt.Errorf("insert resolver %s: %w", name, err)
	}
	return nil
}

func loadEntityMappings(ctx context.Context, db *sql.DB, configID string) ([]migrate.EntityMapping, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, source_entity, target_entity, priority,
		       allow_creates, allow_updates, allow_deletes, allow_deactivates,
		       source_pk_field, target_pk_field, source_filter_json, target_filter_json, validation_json
		FROM transfer_entity_mappings WHERE config_id = ? ORDER BY ordinal`, configID)
	if err != nil {
		return nil, fmt.Errorf("query entity mappings: %w", err)
	}
	defer rows.Close()

	var mappings []migrate.EntityMapping
	var mappingIDs []string
	for rows.Next() {
		var em migrate.EntityMapping
		var mappingID string
		var creates, updates, deletes, deactivates int
		var sourceFilterRaw, targetFilterRaw, validationRaw sql.NullString
		if err := rows.Scan(&mappingID, &em.SourceEntity, &em.TargetEntity, &em.Priority,
			&creates, &updates, &deletes, &deactivates,
			&em.SourcePKField, &em.TargetPKField, &sourceFilterRaw, &targetFilterRaw, &validationRaw); err != nil {
			return nil, fmt.Errorf("scan entity mapping: %w", err)
		}
		em.Operations = migrate.OperationFilter{
			Creates: creates != 0, Updates: updates != 0, Deletes: deletes != 0, Deactivates: deactivates != 0,
		}
		if em.SourceFilter, err = unmarshalRecordFilter(sourceFilterRaw); err != nil {
			return nil, err
		}
		if em.TargetFilter, err = unmarshalRecordFilter(targetFilterRaw); err != nil {
			return nil, err
		}
		if em.ValidationRules, err = unmarshalValidationRules(validationRaw); err != nil {
			return nil, err
		}
		mappings = append(mappings, em)
		mappingIDs = append(mappingIDs, mappingID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, mappingID := range mappingIDs {
		fields, err := loadFieldMappings(ctx, db, mappingID)
		if err != nil {
			return nil, err
		}
		mappings[i].Fields = fields

		resolvers, err := loadResolvers(ctx, db, mappingID)
		if err != nil {
			return nil, err
		}
		mappings[i].Resolvers = resolvers
	}
	return mappings, nil
}

func loadFieldMappings(ctx context.Context, db *sql.DB, mappingID string) ([]migrate.FieldMapping, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT target_field, transform_json FROM transfer_field_mappings
		WHERE entity_mapping_id = ? ORDER BY ordinal`, mappingID)
	if err != nil {
		return nil, fmt.Errorf("query field mappings: %w", err)
	}
	defer rows.Close()

	var fields []migrate.FieldMapping
	for rows.Next() {
		var targetField, transformJSON string
		if err := rows.Scan(&targetField, &transformJSON); err != nil {
			return nil, fmt.Errorf("scan field mapping: %w", err)
		}
		t, err := transform.UnmarshalTransform([]byte(transformJSON))
		if err != nil {
			return nil, fmt.Errorf("unmarshal transform for field %s: %w", targetField, err)
		}
		fields = append(fields, migrate.FieldMapping{TargetField: targetField, Transform: t})
	}
	return fields, rows.Err()
}

func loadResolvers(ctx context.Context, db *sql.DB, mappingID string) (map[string]resolver.Resolver, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, source_entity, match_fields_json, fallback FROM transfer_resolvers
		WHERE entity_mapping_id = ?`, mappingID)
	if err != nil {
		return nil, fmt.Errorf("query resolvers: %w", err)
	}
	defer rows.Close()

	resolvers := map[string]resolver.Resolver{}
	for rows.Next() {
		var name, sourceEntity, matchFieldsJSON, fallbackStr string
		if err := rows.Scan(&name, &sourceEntity, &matchFieldsJSON, &fallbackStr); err != nil {
			return nil, fmt.Errorf("scan resolver: %w", err)
		}
		var wire []matchFieldWire
		if err := value.Unmarshal([]byte(matchFieldsJSON), &wire); err != nil {
			return nil, fmt.Errorf("unmarshal resolver match fields: %w", err)
		}
		matchFields := make([]resolver.MatchField, len(wire))
		for i, w := range wire {
			matchFields[i] = resolver.MatchField{SourceField: w.SourceField, TargetField: w.TargetField}
		}
		fallback, err := parseResolverFallback(fallbackStr)
		if err != nil {
			return nil, err
		}
		resolvers[name] = resolver.Resolver{
			Name: name, RelatedSourceEntity: sourceEntity, MatchFields: matchFields, Fallback: fallback,
		}
	}
	return resolvers, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
