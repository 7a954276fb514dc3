// Package queue builds priority-ordered, size-bounded batches of API
// operations from a ResolvedTransfer.
package queue

import (
	"fmt"

	"github.com/google/uuid"

	"dynamics-transfer/internal/lookup"
	"dynamics-transfer/internal/migrate"
)

// OperationKind is the HTTP verb-shaped action an Operation performs.
type OperationKind string

const (
	OpCreate     OperationKind = "create"
	OpUpdate     OperationKind = "update"
	OpDelete     OperationKind = "delete"
	OpDeactivate OperationKind = "deactivate"
)

// Operation is one API call: a POST (create), PATCH (update/deactivate), or
// DELETE against an entity set.
type Operation struct {
	Kind      OperationKind
	EntitySet string
	ID        uuid.UUID // required for update/delete/deactivate
	Body      map[string]any
}

// OrphanHandling controls how a TargetOnly record (present in target, not
// in source) is treated.
type OrphanHandling string

const (
	OrphanIgnore     OrphanHandling = "ignore"
	OrphanDelete     OrphanHandling = "delete"
	OrphanDeactivate OrphanHandling = "deactivate"
)

// QueueItem is one batch of operations against a single entity set, tagged
// with a priority (lower runs first) and display metadata: a human label, a
// source tag naming what produced the item, the environment the operations
// run against, and an optional row number for items that originated from a
// tabular import rather than a transfer.
type QueueItem struct {
	Operations  []Operation
	Priority    int
	Label       string
	SourceTag   string
	Environment string
	RowNumber   *int
}

// BuildOptions configures batching. BatchSize == 0 means one unbounded batch.
type BuildOptions struct {
	BatchSize      int
	OrphanHandling map[string]OrphanHandling // keyed by entity set name, default Ignore
	ConfigName     string
}

const (
	priorityBase          = 1
	priorityPerEntity     = 3
	phaseOffsetTargetOnly = 0
	phaseOffsetCreate     = 1
	phaseOffsetUpdate     = 2
	priorityMin           = 1
	priorityMax           = 127
)

// Priority computes the clamped "base + entity_priority*3 + phase_offset"
// encoding. Exposed as a widenable int rather than a byte (see DESIGN.md);
// the result is always passed through Clamp, so it lies in [1, 127].
func Priority(entityPriority, phaseOffset int) int {
	return Clamp(priorityBase + entityPriority*priorityPerEntity + phaseOffset)
}

// Clamp restricts a computed priority to [1, 127].
func Clamp(p int) int {
	if p < priorityMin {
		return priorityMin
	}
	if p > priorityMax {
		return priorityMax
	}
	return p
}

// Build partitions every resolved entity's records by action into
// TargetOnly/Create/Update phases (Error and NoChange are excluded), and
// emits priority-ordered, size-bounded QueueItems in ascending priority
// order across entities and phases.
func Build(transfer migrate.ResolvedTransfer, bindings lookup.BindingContext, opts BuildOptions) []QueueItem {
	var items []QueueItem
	for _, entity := range transfer.Entities {
		var targetOnly, creates, updates []migrate.ResolvedRecord
		for _, r := range entity.Records {
			switch r.Action {
			case migrate.ActionTargetOnly:
				targetOnly = append(targetOnly, r)
			case migrate.ActionCreate:
				creates = append(creates, r)
			case migrate.ActionUpdate:
				updates = append(updates, r)
			}
		}

		orphan := OrphanIgnore
		if opts.OrphanHandling != nil {
			if h, ok := opts.OrphanHandling[entity.EntitySetName]; ok {
				orphan = h
			}
		}
		if orphan != OrphanIgnore && len(targetOnly) > 0 {
			ops := make([]Operation, 0, len(targetOnly))
			kind := OpDelete
			if orphan == OrphanDeactivate {
				kind = OpDeactivate
			}
			for _, r := range targetOnly {
				op := Operation{Kind: kind, EntitySet: entity.EntitySetName, ID: r.SourceID}
				if kind == OpDeactivate {
					op.Body = map[string]any{"statecode": 1}
				}
				ops = append(ops, op)
			}
			priority := Priority(entity.Priority, phaseOffsetTargetOnly)
			items = append(items, chunk(ops, opts.BatchSize, priority, opts.ConfigName, entity.TargetEntity, "targetonly")...)
		}

		if len(creates) > 0 {
			ops := make([]Operation, 0, len(creates))
			for _, r := range creates {
				ops = append(ops, Operation{Kind: OpCreate, EntitySet: entity.EntitySetName, Body: lookup.Bind(bindings, r.Fields)})
			}
			priority := Priority(entity.Priority, phaseOffsetCreate)
			items = append(items, chunk(ops, opts.BatchSize, priority, opts.ConfigName, entity.TargetEntity, "create")...)
		}

		if len(updates) > 0 {
			ops := make([]Operation, 0, len(updates))
			for _, r := range updates {
				ops = append(ops, Operation{Kind: OpUpdate, EntitySet: entity.EntitySetName, ID: r.SourceID, Body: lookup.Bind(bindings, r.Fields)})
			}
			priority := Priority(entity.Priority, phaseOffsetUpdate)
			items = append(items, chunk(ops, opts.BatchSize, priority, opts.ConfigName, entity.TargetEntity, "update")...)
		}
	}
	for i := range items {
		items[i].SourceTag = "transfer"
		items[i].Environment = transfer.TargetEnvironment
	}
	return items
}

// chunk splits ops into batches of at most size (0 means one batch holding
// everything), labeling each with the config/entity/phase and an "i/N"
// suffix when there's more than one batch.
func chunk(ops []Operation, size int, priority int, configName, entity, phase string) []QueueItem {
	if size <= 0 {
		return []QueueItem{{
			Operations: ops,
			Priority:   priority,
			Label:      fmt.Sprintf("%s: %s %s", configName, entity, phase),
		}}
	}

	total := (len(ops) + size - 1) / size
	items := make([]QueueItem, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		label := fmt.Sprintf("%s: %s %s", configName, entity, phase)
		if total > 1 {
			label = fmt.Sprintf("%s (%d/%d)", label, i+1, total)
		}
		items = append(items, QueueItem{
			Operations: ops[start:end],
			Priority:   priority,
			Label:      label,
		})
	}
	return items
}
