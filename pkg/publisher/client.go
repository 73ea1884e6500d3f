// Package publisher talks to the workspace service that hosts published
// reports. The assembler step publishes through the generator's tool
// surface; this client covers the direct REST path used by the validator
// (content corrections) and by operators.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/version"
)

// Tool names exposed to the assembler in tool mode. The server key in
// ToolServers() is "workspace", so the CLI addresses them with the
// mcp__workspace__ prefix.
const (
	ToolCreatePage = "mcp__workspace__create_page"
	ToolUpdatePage = "mcp__workspace__update_page"
)

const maxAttempts = 3

// retryDelays is the wait schedule between attempts. Only transient
// failures (5xx, network, request timeout) are retried; 4xx responses
// are schema or auth defects and retrying cannot fix them.
var retryDelays = [...]time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// StatusError is a non-2xx response from the workspace service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workspace returned HTTP %d: %s", e.Code, e.Body)
}

// Client provides page create/update against the workspace REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is swapped in tests to observe the retry schedule without
	// real waiting.
	sleep func(time.Duration)
}

// NewClient creates a workspace client from resolved configuration.
func NewClient(cfg *config.PublisherConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With(slog.String("component", "publisher")),
		sleep:      time.Sleep,
	}
}

// CreatePage publishes a new page under parentID and returns its URL.
func (c *Client) CreatePage(ctx context.Context, title, content, parentID string) (string, error) {
	body := map[string]any{
		"pages": []any{
			map[string]any{
				"properties": map[string]any{"title": title},
				"content":    content,
			},
		},
	}
	if parentID != "" {
		body["parent"] = map[string]any{"page_id": parentID}
	}

	result, err := c.do(ctx, http.MethodPost, c.baseURL+"/pages", body)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	return PageURL(result)
}

// UpdatePageContent replaces the full body of an existing page.
func (c *Client) UpdatePageContent(ctx context.Context, pageID, content string) error {
	body := map[string]any{
		"command": "replace_content",
		"new_str": content,
	}
	if _, err := c.do(ctx, http.MethodPatch, c.pageURL(pageID), body); err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	return nil
}

// UpdatePageProperties updates page metadata without touching the body.
func (c *Client) UpdatePageProperties(ctx context.Context, pageID string, properties map[string]any) error {
	body := map[string]any{
		"command":    "update_properties",
		"properties": properties,
	}
	if _, err := c.do(ctx, http.MethodPatch, c.pageURL(pageID), body); err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	return nil
}

func (c *Client) pageURL(pageID string) string {
	return c.baseURL + "/pages/" + pageID
}

// do executes one workspace request with the bounded retry policy.
func (c *Client) do(ctx context.Context, method, url string, body map[string]any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelays[attempt-1]
			c.logger.Warn("workspace call failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(delay)
		}

		result, err := c.doOnce(ctx, method, url, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !transient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 300)}
	}

	var result any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return result, nil
}

// transient reports whether a failed attempt is worth retrying.
// Server-side errors and network faults are; 4xx and cancellation
// are not.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	// Anything else from http.Client.Do is a network fault or a
	// per-request timeout.
	return true
}

// PageURL extracts the page URL from a create response. The service
// answers with a page record or a {pages: [...]} wrapper; when the
// record carries only an id, the URL is synthesized deterministically.
func PageURL(result any) (string, error) {
	page := firstPage(result)
	if page == nil {
		return "", fmt.Errorf("no page record in publish response")
	}

	if url := page.Str("url", "page_url", "public_url"); url != "" {
		return url, nil
	}
	if id := page.Str("id"); id != "" {
		return "https://notion.so/" + strings.ReplaceAll(id, "-", ""), nil
	}
	return "", fmt.Errorf("publish response carries no url or id")
}

func firstPage(result any) models.Record {
	switch v := result.(type) {
	case []any:
		if len(v) == 0 {
			return nil
		}
		return firstPage(v[0])
	case map[string]any:
		rec := models.Record(v)
		if pages := rec.List("pages"); len(pages) > 0 {
			return pages[0]
		}
		if _, hasPages := v["pages"]; hasPages {
			return nil
		}
		return rec
	case string:
		if strings.HasPrefix(v, "http") {
			return models.Record{"url": v}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
