package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/database"
	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/pipeline"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	client, err := database.NewClient(context.Background(),
		database.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return store.New(client)
}

// stubExecutor replaces the pipeline behind the run pool. The default
// behavior completes immediately with success.
type stubExecutor struct {
	mu    sync.Mutex
	runFn func(ctx context.Context, in pipeline.Input) pipeline.Outcome
	runs  []int64
}

func (s *stubExecutor) Run(ctx context.Context, in pipeline.Input) pipeline.Outcome {
	s.mu.Lock()
	s.runs = append(s.runs, in.RunID)
	s.mu.Unlock()
	if s.runFn != nil {
		return s.runFn(ctx, in)
	}
	return pipeline.Outcome{Status: pipeline.StatusSuccess}
}

func newTestPool(t *testing.T, st *store.Store, exec runner.Executor, maxRuns int) *runner.Pool {
	t.Helper()
	tun := config.DefaultTunables()
	tun.MaxConcurrentRuns = maxRuns
	pool := runner.New(st, exec, config.NewRegistry(tun))
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)
	return pool
}

func serviceWebhook() models.WebhookPayload {
	return models.WebhookPayload{
		TargetCompany: "Acme Water",
		TargetDomain:  "acmewater.com",
	}
}

func strPtr(s string) *string {
	return &s
}
