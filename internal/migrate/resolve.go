package migrate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"dynamics-transfer/internal/metadata"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
	"dynamics-transfer/internal/value"
)

// ResolveLookups runs the cross-environment resolver table against an
// already-transformed entity: every Create/Update record's fields that came
// from a Copy{Resolver: name} are replaced with the resolved target GUID
// (or dropped/defaulted per the resolver's fallback), using the original
// source record so the configured match fields are available. This is the
// step the lookup binder (internal/lookup.Bind) assumes already ran by the
// time it sees a Guid value in a lookup field.
//
// sourceByID indexes the entity mapping's source records by their parsed
// primary-key string, the same id RunEntityMapping assigns as
// ResolvedRecord.SourceID.
func ResolveLookups(ctx context.Context, mapping EntityMapping, meta metadata.Service, fetcher resolver.Fetcher, entity *ResolvedEntity, sourceByID map[string]map[string]any) error {
	resolverFields := fieldsByResolver(mapping)
	if len(resolverFields) == 0 {
		return nil
	}

	for i := range entity.Records {
		rec := &entity.Records[i]
		if rec.Action != ActionCreate && rec.Action != ActionUpdate {
			continue
		}
		src, ok := sourceByID[rec.SourceID.String()]
		if !ok {
			continue
		}

		for targetField, resolverName := range resolverFields {
			r, ok := mapping.Resolvers[resolverName]
			if !ok {
				rec.Action = ActionError
				rec.Error = ResolverMissError(mapping.TargetEntity, resolverName, "no resolver configured with this name")
				continue
			}

			resolved, err := resolveOne(ctx, r, meta, fetcher, src)
			if err != nil {
				rec.Action = ActionError
				rec.Error = ResolverMissError(mapping.TargetEntity, resolverName, err.Error())
				continue
			}
			if resolved.IsNull() {
				delete(rec.Fields, targetField)
				continue
			}
			rec.Fields[targetField] = resolved.ToJSON()
		}
	}
	return nil
}

// fieldsByResolver maps target field name -> resolver name for every field
// mapping whose transform is a direct Copy naming a resolver. Resolver
// substitution only applies to plain Copy transforms; a resolver named
// inside a Conditional/ValueMap branch is not supported.
func fieldsByResolver(mapping EntityMapping) map[string]string {
	out := map[string]string{}
	for _, fm := range mapping.Fields {
		if c, ok := fm.Transform.(transform.Copy); ok && c.Resolver != "" {
			out[fm.TargetField] = c.Resolver
		}
	}
	return out
}

func resolveOne(ctx context.Context, r resolver.Resolver, meta metadata.Service, fetcher resolver.Fetcher, src map[string]any) (value.Value, error) {
	related, err := meta.Entity(ctx, r.RelatedSourceEntity)
	if err != nil {
		return value.Value{}, fmt.Errorf("resolver %q: %w", r.Name, err)
	}
	pk, ok := related.PrimaryKeyField()
	if !ok {
		return value.Value{}, fmt.Errorf("resolver %q: entity %q has no primary key field", r.Name, r.RelatedSourceEntity)
	}
	return r.Resolve(ctx, fetcher, src, related.EntitySetName, pk.Name)
}

// indexSourceRecords keys source records by the same id RunEntityMapping
// derives for each ResolvedRecord, so a later ResolveLookups call can look
// the original record back up by ResolvedRecord.SourceID.
func indexSourceRecords(records []map[string]any, pkField string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(records))
	for _, r := range records {
		raw, ok := r[pkField]
		if !ok {
			continue
		}
		s, _ := raw.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out[id.String()] = r
	}
	return out
}

// IndexSourceRecords is the exported entry point callers use to build the
// sourceByID map ResolveLookups needs, keyed the same way
// RunEntityMapping/resolveOneRecord key ResolvedRecord.SourceID.
func IndexSourceRecords(mapping EntityMapping, sourceRecords []map[string]any) map[string]map[string]any {
	return indexSourceRecords(sourceRecords, mapping.SourcePKField)
}
