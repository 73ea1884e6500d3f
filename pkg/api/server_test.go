package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/database"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/pipeline"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/services"
	"github.com/govsignal/scout/pkg/store"
)

// stubExecutor replaces the pipeline behind the run pool. The default
// behavior completes immediately with success.
type stubExecutor struct {
	mu    sync.Mutex
	runFn func(ctx context.Context, in pipeline.Input) pipeline.Outcome
}

func (s *stubExecutor) Run(ctx context.Context, in pipeline.Input) pipeline.Outcome {
	s.mu.Lock()
	fn := s.runFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, in)
	}
	return pipeline.Outcome{Status: pipeline.StatusSuccess}
}

// blockingExecutor parks every worker until its run context is
// cancelled, reporting entries on a channel.
func blockingExecutor(entered chan int64) *stubExecutor {
	return &stubExecutor{
		runFn: func(ctx context.Context, in pipeline.Input) pipeline.Outcome {
			entered <- in.RunID
			<-ctx.Done()
			return pipeline.Outcome{Status: pipeline.StatusCancelled, Err: ctx.Err()}
		},
	}
}

type testServer struct {
	*Server
	store *store.Store
	db    *database.Client
}

func newTestServer(t *testing.T, exec runner.Executor, maxRuns int) *testServer {
	t.Helper()
	client, err := database.NewClient(context.Background(),
		database.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	st := store.New(client)
	tun := config.DefaultTunables()
	tun.MaxConcurrentRuns = maxRuns
	registry := config.NewRegistry(tun)

	pool := runner.New(st, exec, registry)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)

	srv := NewServer(client, pool,
		services.NewRunService(st, pool),
		services.NewBatchService(st, pool),
		services.NewConfigService(registry))
	return &testServer{Server: srv, store: st, db: client}
}

// do performs one request against the server's router.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func testWebhook() models.WebhookPayload {
	return models.WebhookPayload{
		TargetCompany: "Acme Water",
		TargetDomain:  "acmewater.com",
	}
}

func ptr(s string) *string {
	return &s
}
