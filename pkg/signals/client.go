// Package signals is the HTTP client for the procurement signals
// provider. Every pipeline search, buyer lookup, and buyer chat goes
// through it.
//
// Provider apps answer with a layered envelope, any layer optionally
// absent:
//
//	{success, error?, data: {output_vars: {output: <payload>}}}
//
// unwrapOutput peels the layers in order and surfaces embedded
// {error, status_code} payloads as errors. Long-running apps use the
// async endpoint: submit returns a run id which is then polled until
// the provider stops answering 202 Accepted.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/version"
)

// Per-request deadlines. Sync apps can run long provider-side; async
// submit and poll requests return quickly.
const (
	syncCallTimeout    = 300 * time.Second
	asyncSubmitTimeout = 30 * time.Second
	pollRequestTimeout = 15 * time.Second
)

// PollTimeoutError reports that an async run produced no output within
// its polling budget.
type PollTimeoutError struct {
	App  string
	Wait time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s async polling timed out after %ds", e.App, int(e.Wait.Seconds()))
}

// Client calls provider apps over the sync and async REST endpoints.
type Client struct {
	cfg        *config.SignalsConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client. Request deadlines are applied
// per call, so the underlying http.Client carries no global timeout.
func NewClient(cfg *config.SignalsConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default().With(slog.String("component", "signals")),
	}
}

// appURL resolves the configured slug for a logical app name.
func (c *Client) appURL(app string) (string, error) {
	slug, ok := c.cfg.Apps[app]
	if !ok || slug == "" {
		return "", fmt.Errorf("no app slug configured for %q", app)
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), slug), nil
}

// callSync executes an app on the synchronous endpoint and unwraps the
// response envelope. Each call carries a fresh correlation id so provider
// support tickets can be matched to our log lines.
func (c *Client) callSync(ctx context.Context, app string, params map[string]any) (any, error) {
	url, err := c.appURL(app)
	if err != nil {
		return nil, err
	}
	callID := uuid.NewString()
	c.logger.Debug("provider call",
		slog.String("app", app), slog.String("call_id", callID))

	payload, err := c.postJSON(ctx, url, params, callID, syncCallTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", app, err)
	}
	return unwrapOutput(app, "failed", payload)
}

// callAsync submits an app run on the async endpoint and polls for its
// output. interval is the pause between polls, maxWait the total
// polling budget.
func (c *Client) callAsync(ctx context.Context, app string, params map[string]any, interval, maxWait time.Duration) (any, error) {
	url, err := c.appURL(app)
	if err != nil {
		return nil, err
	}
	callID := uuid.NewString()
	c.logger.Debug("provider call",
		slog.String("app", app), slog.Bool("async", true), slog.String("call_id", callID))

	payload, err := c.postJSON(ctx, url+"/async", params, callID, asyncSubmitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s async submit: %w", app, err)
	}
	runID := submittedRunID(payload)
	if runID == "" {
		return nil, fmt.Errorf("%s async submit failed: no run_id in response", app)
	}
	c.logger.Info("provider async run submitted",
		slog.String("app", app), slog.String("run_id", runID), slog.String("call_id", callID))

	return c.pollOutput(ctx, app, runID, callID, interval, maxWait)
}

// submittedRunID digs the run id out of an async submit response. The
// provider has answered with run_id and run_uuid, at the top level and
// under data, depending on app version.
func submittedRunID(payload any) string {
	env, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if id := models.Record(env).Str("run_id", "run_uuid"); id != "" {
		return id
	}
	if inner, ok := env["data"].(map[string]any); ok {
		return models.Record(inner).Str("run_id", "run_uuid")
	}
	return ""
}

// pollOutput polls the run output endpoint until the provider stops
// answering 202 Accepted or maxWait elapses. The budget is checked
// before each pause, so at least one poll happens whenever maxWait is
// positive.
func (c *Client) pollOutput(ctx context.Context, app, runID, callID string, interval, maxWait time.Duration) (any, error) {
	pollURL := fmt.Sprintf("%s/run/%s/output", strings.TrimRight(c.cfg.BaseURL, "/"), runID)
	start := time.Now()

	for time.Since(start) < maxWait {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		payload, status, err := c.getJSON(ctx, pollURL, callID)
		if err != nil {
			return nil, fmt.Errorf("%s poll: %w", app, err)
		}
		if status == http.StatusAccepted {
			continue
		}

		out, err := unwrapOutput(app, "async failed", payload)
		if err != nil {
			return nil, err
		}
		c.logger.Info("provider async run complete",
			slog.String("app", app),
			slog.Duration("elapsed", time.Since(start).Round(100*time.Millisecond)))
		return out, nil
	}

	return nil, &PollTimeoutError{App: app, Wait: maxWait}
}

// postJSON posts {"input_vars": params} and decodes the JSON body. The
// provider reports failures inside the envelope, so the HTTP status is
// not checked here; it only annotates decode errors.
func (c *Client) postJSON(ctx context.Context, url string, params map[string]any, callID string, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"input_vars": params})
	if err != nil {
		return nil, fmt.Errorf("encode input_vars: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set("x-request-id", callID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeBody(resp)
}

// getJSON fetches a poll URL. A 202 body is drained and discarded, not
// decoded; the provider sends no payload while a run is in flight.
func (c *Client) getJSON(ctx context.Context, url, callID string) (any, int, error) {
	ctx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set("x-request-id", callID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	payload, err := decodeBody(resp)
	return payload, resp.StatusCode, err
}

func decodeBody(resp *http.Response) (any, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return payload, nil
}

// unwrapOutput peels the provider envelope down to the app payload.
// verb distinguishes sync and async failure messages.
func unwrapOutput(app, verb string, payload any) (any, error) {
	if env, ok := payload.(map[string]any); ok {
		if _, present := env["success"]; present && !models.Record(env).Truthy("success") {
			return nil, fmt.Errorf("%s %s: %v", app, verb, failureMessage(env["error"]))
		}
		if inner, ok := env["data"].(map[string]any); ok {
			env = inner
		}
		if v, present := env["output_vars"]; present {
			payload = v
		} else {
			payload = env
		}
	}
	if m, ok := payload.(map[string]any); ok {
		if v, present := m["output"]; present {
			payload = v
		}
	}
	// Some apps double-encode the payload as a JSON string.
	if s, ok := payload.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			payload = parsed
		}
	}
	if m, ok := payload.(map[string]any); ok && models.Record(m).Truthy("error") {
		status := any("unknown")
		if v, present := m["status_code"]; present {
			status = v
		}
		return nil, fmt.Errorf("%s: API error %v", app, status)
	}
	return payload, nil
}

// failureMessage prefers the message field of a structured error body.
func failureMessage(v any) any {
	if m, ok := v.(map[string]any); ok {
		if msg, present := m["message"]; present {
			return msg
		}
	}
	if v == nil {
		return "unknown error"
	}
	return v
}
