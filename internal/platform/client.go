package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dynamics-transfer/internal/queue"
	"dynamics-transfer/internal/value"
)

// Client is the OData v4 Web API client. It implements resolver.Fetcher (so
// the resolver package can run real lookups) and executor.Transport (so the
// executor can send real write requests) without either package depending
// on platform directly, mirroring the decoupling already used between
// resolver and its Fetcher interface.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenSource
}

// New constructs a Client against baseURL (the environment's Web API root,
// e.g. "https://org.crm.dynamics.com/api/data/v9.2"). The caller's client
// is copied and its transport wrapped in a BearerTransport, so every
// request this Client sends carries credentials.
func New(baseURL string, tokens *TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	authed := *httpClient
	authed.Transport = &BearerTransport{Base: httpClient.Transport, Tokens: tokens}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &authed, tokens: tokens}
}

// TokenSource exposes the client's token cache, for callers that want to
// inspect token lifetime (see TokenExpiry).
func (c *Client) TokenSource() *TokenSource { return c.tokens }

func setODataHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
}

// oDataPage is the envelope every OData v4 collection response wraps its
// rows in.
type oDataPage struct {
	Value    []map[string]any `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// Query performs a GET against entitySet with the given raw OData query
// string (already containing $select/$expand/$filter/... as needed),
// following @odata.nextLink until the platform stops returning one.
func (c *Client) Query(ctx context.Context, entitySet, rawQuery string) ([]map[string]any, error) {
	next := c.baseURL + "/" + entitySet
	if rawQuery != "" {
		next += "?" + rawQuery
	}

	var all []map[string]any
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("build query request: %w", err)
		}
		setODataHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", entitySet, err)
		}
		page, err := decodePage(resp)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Value...)
		next = page.NextLink
	}
	return all, nil
}

func decodePage(resp *http.Response) (oDataPage, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return oDataPage{}, fmt.Errorf("query: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oDataPage{}, fmt.Errorf("read page: %w", err)
	}
	var page oDataPage
	if err := value.Unmarshal(body, &page); err != nil {
		return oDataPage{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// FetchMatching implements resolver.Fetcher: fetch candidate records from
// entitySet whose fields exactly equal matches.
func (c *Client) FetchMatching(ctx context.Context, entitySet string, matches map[string]value.Value) ([]map[string]any, error) {
	var clauses []string
	for field, v := range matches {
		clauses = append(clauses, filterClause(field, v))
	}
	filter := strings.Join(clauses, " and ")
	q := "$filter=" + url.QueryEscape(filter)
	return c.Query(ctx, entitySet, q)
}

func filterClause(field string, v value.Value) string {
	j := v.ToJSON()
	switch t := j.(type) {
	case string:
		return fmt.Sprintf("%s eq '%s'", field, strings.ReplaceAll(t, "'", "''"))
	case bool:
		return fmt.Sprintf("%s eq %t", field, t)
	case nil:
		return fmt.Sprintf("%s eq null", field)
	default:
		return fmt.Sprintf("%s eq %v", field, t)
	}
}

// Do implements executor.Transport: sends one queue.Operation as an HTTP
// write request (POST for creates, PATCH for updates and deactivates,
// DELETE for deletes) with the given resilience headers attached, and
// reports the response for the executor to classify.
func (c *Client) Do(ctx context.Context, op queue.Operation, headers map[string]string) (int, []byte, http.Header, error) {
	method, target, body, err := requestShape(c.baseURL, op)
	if err != nil {
		return 0, nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build %s request: %w", op.Kind, err)
	}
	setODataHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s: %w", op.Kind, op.EntitySet, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

// maxResponseBodyBytes bounds how much of a write response this client
// ever buffers; error payloads fit well within it.
const maxResponseBodyBytes = 64 * 1024

func requestShape(baseURL string, op queue.Operation) (method, target string, body *bytes.Reader, err error) {
	switch op.Kind {
	case queue.OpCreate:
		b, err := value.Marshal(op.Body)
		if err != nil {
			return "", "", nil, fmt.Errorf("marshal create body: %w", err)
		}
		return http.MethodPost, fmt.Sprintf("%s/%s", baseURL, op.EntitySet), bytes.NewReader(b), nil
	case queue.OpUpdate, queue.OpDeactivate:
		b, err := value.Marshal(op.Body)
		if err != nil {
			return "", "", nil, fmt.Errorf("marshal update body: %w", err)
		}
		return http.MethodPatch, fmt.Sprintf("%s/%s(%s)", baseURL, op.EntitySet, op.ID), bytes.NewReader(b), nil
	case queue.OpDelete:
		return http.MethodDelete, fmt.Sprintf("%s/%s(%s)", baseURL, op.EntitySet, op.ID), nil, nil
	default:
		return "", "", nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
