package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"dynamics-transfer/internal/expand"
	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/lookup"
	"dynamics-transfer/internal/metadata"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
)

// QueryClient is the read half of internal/platform.Client that DryRun needs:
// a single OData GET against one entity set, with the caller-built
// $select/$expand/$filter query string already assembled. Kept as an
// interface (rather than importing internal/platform directly) so this
// package stays a leaf the same way internal/resolver stays independent of
// its Fetcher's concrete transport.
type QueryClient interface {
	Query(ctx context.Context, entitySet, rawQuery string) ([]map[string]any, error)
}

// navigationMaps builds the NavigationMap/LookupFieldSet the expand planner
// needs by walking each path's lookup segments hop by hop: the first
// segment's navigation name and lookup status come from sourceEntity's
// metadata, but a second (or third) hop lands on whatever entity the prior
// hop's lookup field points at (FieldMetadata.RelatedEntity), so its
// navigation name and lookup status must be read from THAT entity's
// metadata, not the root's.
func navigationMaps(ctx context.Context, meta metadata.Service, sourceEntity string, paths []fieldpath.FieldPath) (expand.NavigationMap, expand.LookupFieldSet, error) {
	nav := expand.NavigationMap{}
	lookups := expand.LookupFieldSet{}
	entityCache := map[string]metadata.EntityMetadata{}

	entityByName := func(logicalName string) (metadata.EntityMetadata, error) {
		if e, ok := entityCache[logicalName]; ok {
			return e, nil
		}
		e, err := meta.Entity(ctx, logicalName)
		if err != nil {
			return metadata.EntityMetadata{}, err
		}
		entityCache[logicalName] = e
		return e, nil
	}

	for _, p := range paths {
		currentEntity := sourceEntity
		for _, seg := range p.LookupSegments() {
			ent, err := entityByName(currentEntity)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve entity %s for segment %q: %w", currentEntity, seg, err)
			}
			field := ent.GetField(seg)
			if field == nil {
				return nil, nil, fmt.Errorf("field %q not found on entity %s", seg, currentEntity)
			}
			lookups[strings.ToLower(field.Name)] = true
			if field.NavigationProperty != "" {
				nav[strings.ToLower(field.Name)] = field.NavigationProperty
			}
			currentEntity = field.RelatedEntity
		}
	}
	return nav, lookups, nil
}

// flatSelectFields collects the depth-0 (scalar, no lookup traversal)
// fields a mapping's transforms and filters reference, plus the source
// primary key, so the source $select includes everything the transform
// engine reads directly off the top-level record. Conditional branches and
// format templates are walked recursively: a depth-0 reference buried in a
// nested transform still has to be fetched.
func flatSelectFields(mapping EntityMapping) []string {
	seen := map[string]bool{mapping.SourcePKField: true}
	order := []string{mapping.SourcePKField}
	add := func(p fieldpath.FieldPath) {
		if p.Depth() != 0 {
			return
		}
		f := p.Segments[0]
		if !seen[f] {
			seen[f] = true
			order = append(order, f)
		}
	}
	var walk func(t transform.Transform)
	walk = func(t transform.Transform) {
		switch tt := t.(type) {
		case transform.Copy:
			add(tt.Path)
		case transform.Conditional:
			add(tt.Path)
			walk(tt.Then)
			walk(tt.Else)
		case transform.ValueMap:
			add(tt.Path)
		case transform.Replace:
			add(tt.Path)
		case transform.Format:
			for _, p := range tt.Template.FieldPaths() {
				add(p)
			}
		}
	}
	for _, fm := range mapping.Fields {
		walk(fm.Transform)
	}
	if mapping.SourceFilter != nil {
		add(mapping.SourceFilter.Path)
	}
	sort.Strings(order[1:])
	return order
}

// allLookupPaths gathers every lookup-traversal FieldPath a mapping's field
// transforms dereference, for the expand tree.
func allLookupPaths(mapping EntityMapping) []fieldpath.FieldPath {
	var out []fieldpath.FieldPath
	for _, fm := range mapping.Fields {
		out = append(out, fm.Transform.LookupPaths()...)
	}
	return out
}

// PlanSourceQuery builds the $select/$expand query string for a mapping's
// source-entity fetch: the expand tree covers every lookup-traversal field
// path the transforms reference, and $select covers every depth-0 field
// plus the primary key.
func PlanSourceQuery(ctx context.Context, mapping EntityMapping, meta metadata.Service) (string, error) {
	paths := allLookupPaths(mapping)
	nav, lookups, err := navigationMaps(ctx, meta, mapping.SourceEntity, paths)
	if err != nil {
		return "", fmt.Errorf("plan source query for %s: %w", mapping.SourceEntity, err)
	}
	tree := expand.NewTree(nav, lookups)
	tree.AddAll(paths)

	parts := []string{"$select=" + strings.Join(flatSelectFields(mapping), ",")}
	if clauses := tree.Clauses(); len(clauses) > 0 {
		parts = append(parts, "$expand="+strings.Join(clauses, ","))
	}
	return strings.Join(parts, "&"), nil
}

// PlanTargetQuery builds the $select query for a mapping's target-entity
// fetch: the declared field order plus the target primary key, with no
// $expand, since the transform engine diffs against the target's flat
// projection, not a re-expanded shape.
func PlanTargetQuery(mapping EntityMapping) string {
	seen := map[string]bool{mapping.TargetPKField: true}
	fields := []string{mapping.TargetPKField}
	for _, fm := range mapping.Fields {
		if !seen[fm.TargetField] {
			seen[fm.TargetField] = true
			fields = append(fields, fm.TargetField)
		}
	}
	sort.Strings(fields[1:])
	return "$select=" + strings.Join(fields, ",")
}

// BuildBindingContext merges every target entity's lookup fields across a
// whole TransferConfig into one lookup.BindingContext, the shape
// internal/queue.Build consumes when it hands resolved records to the
// lookup binder.
func BuildBindingContext(ctx context.Context, cfg TransferConfig, meta metadata.Service) (lookup.BindingContext, error) {
	out := lookup.BindingContext{}
	seen := map[string]bool{}
	for _, mapping := range cfg.EntityMappings {
		if seen[mapping.TargetEntity] {
			continue
		}
		seen[mapping.TargetEntity] = true
		ent, err := meta.Entity(ctx, mapping.TargetEntity)
		if err != nil {
			return nil, fmt.Errorf("binding context for %s: %w", mapping.TargetEntity, err)
		}
		for _, f := range ent.Fields {
			if f.Type != metadata.TypeLookup {
				continue
			}
			related, err := meta.Entity(ctx, f.RelatedEntity)
			if err != nil {
				return nil, fmt.Errorf("binding context: related entity %s for field %s: %w", f.RelatedEntity, f.Name, err)
			}
			out[f.Name] = lookup.Binding{
				NavigationName:  f.NavigationProperty,
				TargetEntitySet: related.EntitySetName,
			}
		}
	}
	return out, nil
}

// sortedMappings returns cfg's entity mappings in ascending Priority order,
// stable on ties so equal-priority mappings keep their configured order.
func sortedMappings(cfg TransferConfig) []EntityMapping {
	out := make([]EntityMapping, len(cfg.EntityMappings))
	copy(out, cfg.EntityMappings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// DryRun executes the read side of the pipeline for a whole
// TransferConfig: for each entity mapping, in ascending priority order, it
// plans and concurrently fetches source+target records, runs the transform-and-diff
// engine, resolves cross-environment lookups, and applies entity-level
// validation rules. The result is ready for internal/queue.Build; it
// performs no writes.
func DryRun(ctx context.Context, cfg TransferConfig, meta metadata.Service, source, target QueryClient, resolverFetcher resolver.Fetcher) (ResolvedTransfer, error) {
	transfer := ResolvedTransfer{
		ConfigName:        cfg.Name,
		SourceEnvironment: cfg.SourceEnvironment,
		TargetEnvironment: cfg.TargetEnvironment,
	}

	for _, mapping := range sortedMappings(cfg) {
		sourceMeta, err := meta.Entity(ctx, mapping.SourceEntity)
		if err != nil {
			return ResolvedTransfer{}, fmt.Errorf("entity mapping %s->%s: %w", mapping.SourceEntity, mapping.TargetEntity, err)
		}
		targetMeta, err := meta.Entity(ctx, mapping.TargetEntity)
		if err != nil {
			return ResolvedTransfer{}, fmt.Errorf("entity mapping %s->%s: %w", mapping.SourceEntity, mapping.TargetEntity, err)
		}

		sourceQuery, err := PlanSourceQuery(ctx, mapping, meta)
		if err != nil {
			return ResolvedTransfer{}, err
		}

		var sourceRecords, targetRecords []map[string]any
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			recs, err := source.Query(gctx, sourceMeta.EntitySetName, sourceQuery)
			if err != nil {
				return fmt.Errorf("fetch source %s: %w", sourceMeta.EntitySetName, err)
			}
			sourceRecords = recs
			return nil
		})
		g.Go(func() error {
			recs, err := target.Query(gctx, targetMeta.EntitySetName, PlanTargetQuery(mapping))
			if err != nil {
				return fmt.Errorf("fetch target %s: %w", targetMeta.EntitySetName, err)
			}
			targetRecords = recs
			return nil
		})
		if err := g.Wait(); err != nil {
			return ResolvedTransfer{}, err
		}

		entity := RunEntityMapping(mapping, sourceRecords, targetRecords)
		entity.EntitySetName = targetMeta.EntitySetName

		sourceByID := IndexSourceRecords(mapping, sourceRecords)
		if err := ResolveLookups(ctx, mapping, meta, resolverFetcher, &entity, sourceByID); err != nil {
			return ResolvedTransfer{}, fmt.Errorf("resolve lookups for %s: %w", mapping.TargetEntity, err)
		}
		ApplyValidationRules(mapping, &entity)

		transfer.Entities = append(transfer.Entities, entity)
	}

	return transfer, nil
}
