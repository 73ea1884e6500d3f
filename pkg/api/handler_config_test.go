package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigHandler(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, 3)

	rec := ts.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	values, ok := body["values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), values["MAX_CONCURRENT_RUNS"])

	metadata, ok := body["metadata"].(map[string]any)
	require.True(t, ok)
	llmMeta, ok := metadata["LLM_MODEL"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "str", llmMeta["type"])
}

func TestUpdateConfigHandler(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, 3)

	rec := ts.do(t, http.MethodPatch, "/api/config", map[string]any{
		"MAX_CONCURRENT_RUNS": 7,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	changed, ok := body["changed"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"MAX_CONCURRENT_RUNS"}, changed)
	assert.Empty(t, body["errors"])

	values, ok := body["values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), values["MAX_CONCURRENT_RUNS"])
}

func TestUpdateConfigHandlerAllInvalid(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, 3)

	rec := ts.do(t, http.MethodPatch, "/api/config", map[string]any{
		"NOPE": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown config key: NOPE")
}

func TestUpdateConfigHandlerPartialFailure(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, 3)

	rec := ts.do(t, http.MethodPatch, "/api/config", map[string]any{
		"MAX_SECONDARY_BUYERS": 2,
		"NOPE":                 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	changed, ok := body["changed"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"MAX_SECONDARY_BUYERS"}, changed)

	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Unknown config key: NOPE")
}

func TestResetConfigHandler(t *testing.T) {
	ts := newTestServer(t, &stubExecutor{}, 3)

	rec := ts.do(t, http.MethodPatch, "/api/config", map[string]any{
		"MAX_CONCURRENT_RUNS": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/config/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "reset", body["status"])

	values, ok := body["values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), values["MAX_CONCURRENT_RUNS"])
}
