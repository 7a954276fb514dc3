package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"dynamics-transfer/internal/queue"
	"dynamics-transfer/internal/value"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: 3600})
	}))
	t.Cleanup(tokenSrv.Close)

	ts := NewTokenSource(OAuthConfig{TokenURL: tokenSrv.URL, ClientID: "id", ClientSecret: "secret"}, srv.Client())
	client := New(srv.URL, ts, srv.Client())
	return srv, client
}

func TestQueryFollowsNextLink(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"value":            []map[string]any{{"accountid": "1"}},
				"@odata.nextLink":  "http://" + r.Host + "/accounts?page=2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{{"accountid": "2"}}})
	})

	records, err := client.Query(context.Background(), "accounts", "$select=accountid")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records across pages, got %d", len(records))
	}
	if calls != 2 {
		t.Errorf("expected 2 requests (following nextLink once), got %d", calls)
	}
}

func TestFetchMatchingBuildsFilterAndReturnsCandidates(t *testing.T) {
	var gotFilter string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("$filter")
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{{"systemuserid": "abc"}}})
	})

	matches := map[string]value.Value{"internalemailaddress": value.String("a@b.com")}
	records, err := client.FetchMatching(context.Background(), "systemusers", matches)
	if err != nil {
		t.Fatalf("FetchMatching() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(records))
	}
	if gotFilter != "internalemailaddress eq 'a@b.com'" {
		t.Errorf("filter = %q", gotFilter)
	}
}

func TestDoCreateSendsPostWithBody(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})

	op := queue.Operation{Kind: queue.OpCreate, EntitySet: "accounts", Body: map[string]any{"name": "Acme"}}
	status, _, _, err := client.Do(context.Background(), op, map[string]string{"MSCRM.BypassCustomPluginExecution": "CustomSync"})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if status != http.StatusCreated {
		t.Errorf("status = %d, want 201", status)
	}
	if gotMethod != http.MethodPost || gotPath != "/accounts" {
		t.Errorf("method/path = %s %s", gotMethod, gotPath)
	}
	if gotBody["name"] != "Acme" {
		t.Errorf("body not sent: %v", gotBody)
	}
}

func TestDoUpdateSendsPatchWithID(t *testing.T) {
	id := uuid.New()
	var gotPath string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	op := queue.Operation{Kind: queue.OpUpdate, EntitySet: "accounts", ID: id, Body: map[string]any{"name": "Acme 2"}}
	status, _, _, err := client.Do(context.Background(), op, nil)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if status != http.StatusNoContent {
		t.Errorf("status = %d, want 204", status)
	}
	want := "/accounts(" + id.String() + ")"
	if gotPath != want {
		t.Errorf("path = %s, want %s", gotPath, want)
	}
}

func TestDoRetryAfterHeaderSurfacedToCaller(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	op := queue.Operation{Kind: queue.OpCreate, EntitySet: "accounts", Body: map[string]any{}}
	status, _, headers, err := client.Do(context.Background(), op, nil)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if headers.Get("Retry-After") != "5" {
		t.Errorf("Retry-After header not surfaced: %v", headers)
	}
}
