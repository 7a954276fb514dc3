package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"dynamics-transfer/internal/metadata"
)

func TestFetchEntityMetadataMapsAttributes(t *testing.T) {
	page := map[string]any{
		"value": []map[string]any{
			{
				"EntitySetName":        "accounts",
				"PrimaryNameAttribute": "name",
				"Attributes": []map[string]any{
					{"LogicalName": "accountid", "AttributeType": "Uniqueidentifier", "IsPrimaryId": true, "RequiredLevel": "SystemRequired"},
					{"LogicalName": "name", "AttributeType": "String", "IsPrimaryId": false, "RequiredLevel": "ApplicationRequired"},
					{"LogicalName": "parentaccountid", "AttributeType": "Lookup", "IsPrimaryId": false, "RequiredLevel": "None", "Targets": []string{"account"}},
				},
			},
		},
	}

	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(page)
	})

	got, err := FetchEntityMetadata(context.Background(), c, "account")
	if err != nil {
		t.Fatalf("FetchEntityMetadata error: %v", err)
	}
	if got.EntitySetName != "accounts" || got.PrimaryNameAttribute != "name" {
		t.Fatalf("unexpected entity metadata: %+v", got)
	}
	pk, ok := got.PrimaryKeyField()
	if !ok || pk.Name != "accountid" {
		t.Fatalf("expected accountid primary key, got %+v (ok=%v)", pk, ok)
	}
	lookup := got.GetField("parentaccountid")
	if lookup == nil || lookup.Type != metadata.TypeLookup || lookup.RelatedEntity != "account" {
		t.Fatalf("expected parentaccountid lookup field, got %+v", lookup)
	}
}

func TestFetchEntityMetadataNotFound(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{}})
	})

	_, err := FetchEntityMetadata(context.Background(), c, "ghost")
	var notFound *metadata.ErrEntityNotFound
	if err == nil {
		t.Fatal("expected an error for an unknown entity")
	}
	if !isErrEntityNotFound(err, &notFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}

func isErrEntityNotFound(err error, target **metadata.ErrEntityNotFound) bool {
	if e, ok := err.(*metadata.ErrEntityNotFound); ok {
		*target = e
		return true
	}
	return false
}
