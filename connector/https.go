package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
)

// HTTPSConnector posts JSON payloads to a second or third party endpoint,
// e.g. a webhook notified before or after a privacy request. It takes no
// part in traversals.
type HTTPSConnector struct {
	key           string
	url           string
	authorization string
	client        *http.Client
	logger        *slog.Logger
}

var _ Connector = (*HTTPSConnector)(nil)

// NewHTTPSConnector returns the connector of an https sink configured by
// the "url" and "authorization" secrets.
func NewHTTPSConnector(c ConnectionConfig, opts ...Option) (*HTTPSConnector, error) {
	o := newOptions(opts)
	return &HTTPSConnector{
		key:           c.Key,
		url:           c.Secret("url"),
		authorization: c.Secret("authorization"),
		client:        o.httpClient,
		logger:        o.logger,
	}, nil
}

// Execute posts body with the authorization header and any additional
// headers. When a response is expected, a non-2xx status is a ClientError
// and the JSON response is decoded into the returned map; otherwise the
// response is discarded. A request that receives no response at all is a
// ClientError with status 500.
func (c *HTTPSConnector) Execute(ctx context.Context, body any, responseExpected bool, headers map[string]string) (map[string]any, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("connector: %s: encode body: %w", c.key, err)
	}
	h := http.Header{}
	h.Set("Authorization", c.authorization)
	for k, v := range headers {
		h.Set(k, v)
	}
	status, resp, err := send(ctx, c.client, http.MethodPost, c.url, h, b)
	if err != nil {
		c.logger.InfoContext(ctx, "requests connection error received", "connection", c.key)
		return nil, dsr.NewClientError(http.StatusInternalServerError, c.url, err)
	}
	if !responseExpected {
		return map[string]any{}, nil
	}
	if status < 200 || status > 299 {
		c.logger.ErrorContext(ctx, "invalid response received from webhook", "connection", c.key, "status", status)
		return nil, dsr.NewClientError(status, c.url, nil)
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(resp)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, dsr.NewClientError(status, c.url, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// TestConnection is skipped for https sinks.
func (c *HTTPSConnector) TestConnection(context.Context) (TestStatus, error) {
	return StatusSkipped, nil
}

// RetrieveData returns no rows.
func (c *HTTPSConnector) RetrieveData(context.Context, *graph.Node, *privacy.Policy, *dsr.Request, map[string][]any) ([]graph.Row, error) {
	return nil, nil
}

// MaskData masks nothing.
func (c *HTTPSConnector) MaskData(context.Context, *graph.Node, *privacy.Policy, *dsr.Request, []graph.Row) (int, error) {
	return 0, nil
}

// DryRunQuery renders nothing.
func (c *HTTPSConnector) DryRunQuery(*graph.Node) (string, error) {
	return "", nil
}

// Close is a no-op; the http client is shared.
func (c *HTTPSConnector) Close() error { return nil }

// send performs one request and reads the whole response body. An error is
// returned only when no response was received.
func send(ctx context.Context, client *http.Client, method, url string, header http.Header, body []byte) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}
