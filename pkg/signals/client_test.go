package signals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/config"
)

func newTestClient(server *httptest.Server) *Client {
	cfg := config.DefaultSignalsConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "test-key-123"
	return NewClient(cfg)
}

func TestClient_OpportunitySearch(t *testing.T) {
	t.Run("sends input_vars and unwraps layered envelope", func(t *testing.T) {
		var gotPath, gotKey string
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-api-key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": map[string]any{
					"output_vars": map[string]any{
						"output": map[string]any{
							"opportunities": []any{
								map[string]any{"id": "opp-1", "title": "Network refresh RFP"},
								map[string]any{"id": "opp-2", "title": "Board meeting agenda"},
							},
						},
					},
				},
			})
		}))
		defer server.Close()

		client := newTestClient(server)
		raw, err := client.OpportunitySearch(context.Background(), OpportunityQuery{
			SearchQuery: "network refresh",
			Types:       []string{"rfp"},
			PageSize:    40,
			SortField:   "SearchRelevancy",
		})
		require.NoError(t, err)

		assert.Equal(t, "/opportunity-search", gotPath)
		assert.Equal(t, "test-key-123", gotKey)

		inputVars, ok := gotBody["input_vars"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "network refresh", inputVars["search_query"])
		assert.Equal(t, float64(40), inputVars["page_size"])
		assert.Equal(t, "SearchRelevancy", inputVars["sort_field"])
		assert.Equal(t, []any{"rfp"}, inputVars["types"])
		assert.NotContains(t, inputVars, "buyer_ids")

		opps := Opportunities(raw)
		require.Len(t, opps, 2)
		assert.Equal(t, "opp-1", opps[0].Str("id"))
	})

	t.Run("double-encoded output string is parsed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"output_vars": map[string]any{
					"output": `{"opportunities": [{"id": "opp-9"}]}`,
				},
			})
		}))
		defer server.Close()

		client := newTestClient(server)
		raw, err := client.OpportunitySearch(context.Background(), OpportunityQuery{SearchQuery: "x", PageSize: 5})
		require.NoError(t, err)

		opps := Opportunities(raw)
		require.Len(t, opps, 1)
		assert.Equal(t, "opp-9", opps[0].Str("id"))
	})

	t.Run("envelope failure uses error message field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   map[string]any{"message": "quota exceeded"},
			})
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.OpportunitySearch(context.Background(), OpportunityQuery{SearchQuery: "x", PageSize: 5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("embedded error payload reports status code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"output_vars": map[string]any{
					"output": map[string]any{"error": "upstream unavailable", "status_code": 502},
				},
			})
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.OpportunitySearch(context.Background(), OpportunityQuery{SearchQuery: "x", PageSize: 5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error 502")
	})

	t.Run("non-JSON body returns decode error with status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.OpportunitySearch(context.Background(), OpportunityQuery{SearchQuery: "x", PageSize: 5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestClient_BuyerSearch(t *testing.T) {
	t.Run("optional params omitted when empty", func(t *testing.T) {
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "buyers": []any{}})
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.BuyerSearch(context.Background(), BuyerQuery{
			BuyerTypes: []string{"City", "County"},
			PageSize:   25,
		})
		require.NoError(t, err)

		inputVars, ok := gotBody["input_vars"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []any{"City", "County"}, inputVars["buyer_types"])
		assert.NotContains(t, inputVars, "query")
		assert.NotContains(t, inputVars, "states")
	})
}

func TestClient_BuyerChat(t *testing.T) {
	t.Run("submits async run and polls through 202", func(t *testing.T) {
		polls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/buyer-chat/async":
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"run_uuid": "run-77"},
				})
			case "/run/run-77/output":
				polls++
				if polls < 3 {
					w.WriteHeader(http.StatusAccepted)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success":     true,
					"output_vars": map[string]any{"ai_response": "They fund broadband."},
				})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		client := newTestClient(server)
		raw, err := client.BuyerChat(context.Background(), "b-1", "what are their priorities?",
			10*time.Millisecond, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 3, polls)

		out, ok := raw.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "They fund broadband.", out["ai_response"])
	})

	t.Run("polling budget exhaustion returns PollTimeoutError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/buyer-chat/async" {
				_ = json.NewEncoder(w).Encode(map[string]any{"run_id": "run-slow"})
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.BuyerChat(context.Background(), "b-1", "q",
			10*time.Millisecond, 50*time.Millisecond)
		require.Error(t, err)

		var timeoutErr *PollTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("submit response without run id fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "queued"})
		}))
		defer server.Close()

		client := newTestClient(server)
		_, err := client.BuyerChat(context.Background(), "b-1", "q", time.Millisecond, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no run_id")
	})

	t.Run("context cancellation stops polling", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/buyer-chat/async" {
				_ = json.NewEncoder(w).Encode(map[string]any{"run_id": "run-cancel"})
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		client := newTestClient(server)
		_, err := client.BuyerChat(ctx, "b-1", "q", 500*time.Millisecond, 10*time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestUnwrapOutput(t *testing.T) {
	t.Run("bare list passes through", func(t *testing.T) {
		out, err := unwrapOutput("app", "failed", []any{map[string]any{"id": "x"}})
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("data layer without output_vars is returned directly", func(t *testing.T) {
		out, err := unwrapOutput("app", "failed", map[string]any{
			"success": true,
			"data":    map[string]any{"buyers": []any{}},
		})
		require.NoError(t, err)
		m, ok := out.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, m, "buyers")
	})

	t.Run("unparseable output string is kept verbatim", func(t *testing.T) {
		out, err := unwrapOutput("app", "failed", map[string]any{
			"output_vars": map[string]any{"output": "plain text answer"},
		})
		require.NoError(t, err)
		assert.Equal(t, "plain text answer", out)
	})

	t.Run("missing error message falls back to raw error value", func(t *testing.T) {
		_, err := unwrapOutput("app", "async failed", map[string]any{
			"success": false,
			"error":   "rate limited",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "app async failed: rate limited")
	})
}

func TestSubmittedRunID(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		want    string
	}{
		{"top-level run_id", map[string]any{"run_id": "a"}, "a"},
		{"top-level run_uuid", map[string]any{"run_uuid": "b"}, "b"},
		{"nested under data", map[string]any{"data": map[string]any{"run_id": "c"}}, "c"},
		{"numeric run id", map[string]any{"run_id": float64(42)}, "42"},
		{"missing", map[string]any{"ok": true}, ""},
		{"non-object payload", []any{"x"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, submittedRunID(tc.payload))
		})
	}
}

func TestNormalizers(t *testing.T) {
	t.Run("empty preferred key falls through to results", func(t *testing.T) {
		raw := map[string]any{
			"opportunities": []any{},
			"results":       []any{map[string]any{"id": "r-1"}},
		}
		opps := Opportunities(raw)
		require.Len(t, opps, 1)
		assert.Equal(t, "r-1", opps[0].Str("id"))
	})

	t.Run("non-map entries are skipped", func(t *testing.T) {
		raw := []any{map[string]any{"id": "a"}, "junk", float64(3)}
		assert.Len(t, Buyers(raw), 1)
	})

	t.Run("scalar payload yields nothing", func(t *testing.T) {
		assert.Empty(t, Contacts("no contacts found"))
	})
}
