package migrate

import (
	"github.com/google/uuid"

	"dynamics-transfer/internal/fieldpath"
	"dynamics-transfer/internal/resolver"
	"dynamics-transfer/internal/transform"
)

// OperationFilter controls which action kinds an entity mapping emits.
// Defaults to creates and updates, leaving deletes and deactivates opt-in.
type OperationFilter struct {
	Creates     bool
	Updates     bool
	Deletes     bool
	Deactivates bool
}

// DefaultOperationFilter allows creates and updates only.
func DefaultOperationFilter() OperationFilter {
	return OperationFilter{Creates: true, Updates: true}
}

// RecordFilter gates whether a record participates, based on a field's
// resolved Value matching a Condition.
type RecordFilter struct {
	Path      fieldpath.FieldPath
	Condition transform.Condition
}

// FieldMapping names one target field and the transform that produces it.
type FieldMapping struct {
	TargetField string
	Transform   transform.Transform
}

// ValidationRule is an entity-level guard: a boolean expr-lang expression
// evaluated against {record, old}. A true result means the rule is
// violated.
type ValidationRule struct {
	Name       string
	Expression string
	Message    string
	// Compiled caches the expr-lang program across evaluations, set lazily
	// by EvaluateValidationRules the first time the rule runs.
	Compiled any
}

// EntityMapping is one source->target entity migration unit.
type EntityMapping struct {
	SourceEntity    string
	TargetEntity    string
	Priority        int
	Operations      OperationFilter
	SourceFilter    *RecordFilter
	TargetFilter    *RecordFilter
	Resolvers       map[string]resolver.Resolver
	Fields          []FieldMapping
	ValidationRules []ValidationRule

	SourcePKField string
	TargetPKField string
}

// TransferMode is kept as a tagged enum rather than collapsed to a single
// declarative shape: script mode (embedded Lua body + source path) is
// never executed by this engine, but the config type keeps the variant so
// round-tripping a config authored in script mode doesn't lose data.
type TransferMode string

const (
	ModeDeclarative TransferMode = "declarative"
	ModeScript      TransferMode = "script"
)

// TransferConfig is the top-level configuration: one named migration plan
// across a source and target environment.
type TransferConfig struct {
	Name              string
	SourceEnvironment string
	TargetEnvironment string
	Mode              TransferMode
	EntityMappings    []EntityMapping

	// ScriptBody/ScriptSourcePath are meaningful only when Mode ==
	// ModeScript; the engine never executes them, it only preserves them
	// across load/save.
	ScriptBody       string
	ScriptSourcePath string
}

// RecordAction classifies what the transform engine decided for one record.
type RecordAction string

const (
	ActionCreate     RecordAction = "create"
	ActionUpdate     RecordAction = "update"
	ActionNoChange   RecordAction = "no_change"
	ActionTargetOnly RecordAction = "target_only"
	ActionSkip       RecordAction = "skip"
	ActionError      RecordAction = "error"
)

// ResolvedRecord is the transform engine's per-record output.
// Invariant: Action == ActionError iff Error != nil.
type ResolvedRecord struct {
	SourceID uuid.UUID
	Action   RecordAction
	Fields   map[string]any
	Error    *AppError
}

// ResolvedEntity is one entity mapping's worth of resolved records, plus
// enough display metadata for a UI to render a tabular diff.
type ResolvedEntity struct {
	TargetEntity  string
	Priority      int
	PKField       string
	FieldOrder    []string
	Records       []ResolvedRecord
	DirtyRecords  map[uuid.UUID]bool
	EntitySetName string
}

// MarkDirty records that a record was edited after the dry-run, so a later
// refresh knows to preserve the edit rather than overwrite it.
func (e *ResolvedEntity) MarkDirty(id uuid.UUID) {
	if e.DirtyRecords == nil {
		e.DirtyRecords = map[uuid.UUID]bool{}
	}
	e.DirtyRecords[id] = true
}

// IsDirty reports whether a record was edited since the dry-run.
func (e *ResolvedEntity) IsDirty(id uuid.UUID) bool {
	return e.DirtyRecords[id]
}

// ResetDirty clears all edit tracking, typically after a fresh dry-run
// replaced the records wholesale.
func (e *ResolvedEntity) ResetDirty() {
	e.DirtyRecords = map[uuid.UUID]bool{}
}

// ResolvedTransfer is the full output of one dry-run: every resolved entity
// in mapping-priority order, ready for the queue builder.
type ResolvedTransfer struct {
	ConfigName        string
	SourceEnvironment string
	TargetEnvironment string
	Entities          []ResolvedEntity
}
