package platform

import (
	"context"
	"fmt"
	"net/url"

	"dynamics-transfer/internal/metadata"
)

// FetchEntityMetadata implements metadata.Fetcher against a live platform
// environment's EntityDefinitions endpoint. c should be the environment
// the records being migrated actually live in: the source environment for
// source-side field resolution, the target environment for resolver
// lookups against related entities.
func FetchEntityMetadata(ctx context.Context, c *Client, logicalName string) (metadata.EntityMetadata, error) {
	filter := url.QueryEscape(fmt.Sprintf("LogicalName eq '%s'", logicalName))
	query := "$filter=" + filter + "&$expand=Attributes($select=LogicalName,AttributeType,IsPrimaryId,RequiredLevel,Targets)"
	rows, err := c.Query(ctx, "EntityDefinitions", query)
	if err != nil {
		return metadata.EntityMetadata{}, fmt.Errorf("fetch entity metadata %q: %w", logicalName, err)
	}
	if len(rows) == 0 {
		return metadata.EntityMetadata{}, &metadata.ErrEntityNotFound{LogicalName: logicalName}
	}
	row := rows[0]

	entitySetName, _ := row["EntitySetName"].(string)
	primaryName, _ := row["PrimaryNameAttribute"].(string)

	var fields []metadata.FieldMetadata
	if rawAttrs, ok := row["Attributes"].([]any); ok {
		for _, rawAttr := range rawAttrs {
			attrMap, ok := rawAttr.(map[string]any)
			if !ok {
				continue
			}
			fields = append(fields, attributeToField(attrMap))
		}
	}

	return metadata.EntityMetadata{
		LogicalName:          logicalName,
		EntitySetName:        entitySetName,
		PrimaryNameAttribute: primaryName,
		Fields:               fields,
	}, nil
}

func attributeToField(attr map[string]any) metadata.FieldMetadata {
	name, _ := attr["LogicalName"].(string)
	attrType, _ := attr["AttributeType"].(string)
	isPrimary, _ := attr["IsPrimaryId"].(bool)
	requiredLevel, _ := attr["RequiredLevel"].(string)

	field := metadata.FieldMetadata{
		Name:         name,
		Type:         mapAttributeType(attrType),
		Required:     requiredLevel == "ApplicationRequired" || requiredLevel == "SystemRequired",
		IsPrimaryKey: isPrimary,
	}

	if targets, ok := attr["Targets"].([]any); ok && len(targets) > 0 {
		if related, ok := targets[0].(string); ok {
			field.RelatedEntity = related
			field.NavigationProperty = name
		}
	}
	return field
}

func mapAttributeType(t string) metadata.FieldType {
	switch t {
	case "String", "Memo":
		return metadata.TypeString
	case "Integer", "BigInt":
		return metadata.TypeInt
	case "Decimal", "Double", "Money":
		return metadata.TypeFloat
	case "Boolean":
		return metadata.TypeBoolean
	case "DateTime":
		return metadata.TypeDateTime
	case "Uniqueidentifier":
		return metadata.TypeGuid
	case "Lookup", "Customer", "Owner":
		return metadata.TypeLookup
	default:
		return metadata.TypeString
	}
}
