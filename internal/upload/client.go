// Package upload sends source maps to the ingestion service, retrying and
// aggregating failures across every pair of a build.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBody caps how much of a response body is kept for error messages.
const maxResponseBody = 64 << 10

// Doer is the HTTP capability the client needs. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Form is the multipart payload for one source map.
type Form struct {
	AccessToken   string
	Version       string
	MinifiedURL   string
	SourceMapName string
	SourceMap     []byte
}

// Response is what came back from one submission.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client posts source map forms to a fixed endpoint.
type Client struct {
	endpoint string
	http     Doer
}

// NewHTTPClient returns an HTTP client with tracing on its transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewClient creates a client for endpoint. A nil httpClient gets NewHTTPClient
// with a 30 second timeout.
func NewClient(endpoint string, httpClient Doer) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Endpoint returns the URL forms are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send performs one multipart POST. A non-nil error means the request never
// produced a response; any status code is returned as a Response.
func (c *Client) Send(ctx context.Context, form Form) (*Response, error) {
	body, contentType, err := encodeForm(form)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func encodeForm(form Form) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"access_token", form.AccessToken},
		{"version", form.Version},
		{"minified_url", form.MinifiedURL},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f.name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="source_map"; filename=%q`, form.SourceMapName))
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating source_map part: %w", err)
	}
	if _, err := part.Write(form.SourceMap); err != nil {
		return nil, "", fmt.Errorf("writing source_map part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
