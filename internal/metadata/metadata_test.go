package metadata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func sampleEntity() EntityMetadata {
	return EntityMetadata{
		LogicalName:          "contact",
		EntitySetName:        "contacts",
		PrimaryNameAttribute: "fullname",
		Fields: []FieldMetadata{
			{Name: "contactid", Type: TypeGuid, IsPrimaryKey: true},
			{Name: "fullname", Type: TypeString, Required: true},
			{Name: "parentcustomerid", Type: TypeLookup, RelatedEntity: "account", NavigationProperty: "parentcustomerid_account"},
		},
	}
}

func TestStaticServiceReturnsKnownEntity(t *testing.T) {
	svc := NewStaticService([]EntityMetadata{sampleEntity()})
	e, err := svc.Entity(context.Background(), "contact")
	if err != nil {
		t.Fatalf("Entity() error: %v", err)
	}
	if e.EntitySetName != "contacts" {
		t.Errorf("EntitySetName = %q, want contacts", e.EntitySetName)
	}
	if f := e.GetField("parentcustomerid"); f == nil || f.RelatedEntity != "account" {
		t.Errorf("lookup field not found or wrong related entity: %+v", f)
	}
	if _, ok := e.PrimaryKeyField(); !ok {
		t.Error("expected a primary key field")
	}
}

func TestStaticServiceUnknownEntity(t *testing.T) {
	svc := NewStaticService(nil)
	_, err := svc.Entity(context.Background(), "ghost")
	var notFound *ErrEntityNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Entity() error = %v, want *ErrEntityNotFound", err)
	}
}

func TestCachedHTTPServiceCachesWithinTTL(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, name string) (EntityMetadata, error) {
		atomic.AddInt32(&calls, 1)
		return sampleEntity(), nil
	}
	svc := NewCachedHTTPService(fetch, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := svc.Entity(context.Background(), "contact"); err != nil {
			t.Fatalf("Entity() error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1 (cached)", calls)
	}
}

func TestCachedHTTPServiceRefetchesAfterTTL(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, name string) (EntityMetadata, error) {
		atomic.AddInt32(&calls, 1)
		return sampleEntity(), nil
	}
	svc := NewCachedHTTPService(fetch, time.Nanosecond)

	svc.Entity(context.Background(), "contact")
	time.Sleep(time.Millisecond)
	svc.Entity(context.Background(), "contact")

	if calls != 2 {
		t.Errorf("fetch called %d times, want 2 (TTL expired between calls)", calls)
	}
}
