package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ftmgraph/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Streams newline-delimited entity JSON from an HTTP endpoint, such
// as a published dataset export.

type httpSource struct {
	client *http.Client
}

func init() { etl.RegisterSource(&httpSource{client: &http.Client{}}) }

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "http",
		Label: "HTTP Entity Stream",
		ConfigFields: []etl.ConfigField{
			{Key: "url", Label: "URL", Type: "string", Required: true, Help: "URL serving newline-delimited entity JSON"},
			{Key: "method", Label: "Method", Type: "select", Required: false, Options: []string{"GET", "POST"}, Default: "GET"},
			{Key: "headers", Label: "Headers", Type: "textarea", Required: false, Help: "JSON object of headers (e.g., {\"Authorization\": \"Bearer xxx\"})"},
			{Key: "body", Label: "Body", Type: "textarea", Required: false, Help: "Request body (for POST)"},
			{Key: "connectTimeout", Label: "Response Timeout (s)", Type: "string", Required: false, Default: "30"},
		},
	}
}

func (s *httpSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Summary, error) {
	return etl.Sample(ctx, s, cfg, 100)
}

func (s *httpSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		body, err := s.open(ctx, cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer body.Close()

		if err := streamLines(ctx, body, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// open issues the request and returns the response body. The body is
// streamed, so only the wait for response headers is bounded.
func (s *httpSource) open(ctx context.Context, cfg etl.SourceConfig) (io.ReadCloser, error) {
	url := cfg.String("url", "")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := strings.ToUpper(cfg.String("method", http.MethodGet))

	var bodyReader io.Reader
	if body := cfg.String("body", ""); body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson, application/json")

	if headersStr := cfg.String("headers", ""); headersStr != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return nil, fmt.Errorf("parse headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	timeout := time.Duration(cfg.Int("connectTimeout", 30)) * time.Second
	reqCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeout, cancel)
	resp, err := s.client.Do(req.WithContext(reqCtx))
	if !timer.Stop() && err != nil {
		cancel()
		return nil, fmt.Errorf("http request: no response within %s", timeout)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &responseBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// responseBody releases the request context once the body is closed.
type responseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *responseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
