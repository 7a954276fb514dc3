// Package metadata describes the entity schema the migration engine
// consumes: per logical entity name, the field list (name, type, required
// flag, primary-key flag, related entity and navigation property for
// lookups), the entity-set name, and the primary-name attribute.
package metadata

import (
	"context"
	"fmt"
)

// FieldType enumerates the platform's field type taxonomy as the migration
// engine needs to see it: just enough to drive value coercion and lookup
// detection.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDateTime FieldType = "datetime"
	TypeGuid     FieldType = "guid"
	TypeLookup   FieldType = "lookup"
)

// FieldMetadata describes one field on an entity.
type FieldMetadata struct {
	Name               string
	Type               FieldType
	Required           bool
	IsPrimaryKey       bool
	RelatedEntity      string // logical name of the related entity; meaningful only for Type == TypeLookup
	NavigationProperty string // schema-cased nav property; meaningful only for Type == TypeLookup
}

// EntityMetadata describes one entity: its plural entity-set name, its
// primary-name attribute, and its full field list.
type EntityMetadata struct {
	LogicalName          string
	EntitySetName        string
	PrimaryNameAttribute string
	Fields               []FieldMetadata
}

// GetField returns the named field, or nil if the entity has none by that
// name.
func (e EntityMetadata) GetField(name string) *FieldMetadata {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// PrimaryKeyField returns the field flagged IsPrimaryKey, or the zero value
// and false if none is flagged (a metadata authoring error).
func (e EntityMetadata) PrimaryKeyField() (FieldMetadata, bool) {
	for _, f := range e.Fields {
		if f.IsPrimaryKey {
			return f, true
		}
	}
	return FieldMetadata{}, false
}

// ErrEntityNotFound is returned by Service.Entity when the logical name is
// unknown to the metadata source.
type ErrEntityNotFound struct {
	LogicalName string
}

func (e *ErrEntityNotFound) Error() string {
	return fmt.Sprintf("metadata: entity %q not found", e.LogicalName)
}

// Service is the metadata collaborator the pipeline consults.
// Implementations decide their own caching policy (StaticService has none;
// CachedHTTPService has a TTL cache); callers only ever call Entity.
type Service interface {
	Entity(ctx context.Context, logicalName string) (EntityMetadata, error)
}
