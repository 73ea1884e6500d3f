package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsignal/scout/pkg/database"
	"github.com/govsignal/scout/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client, err := database.NewClient(context.Background(),
		database.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return New(client)
}

func storeWebhook() models.WebhookPayload {
	return models.WebhookPayload{
		TargetCompany: "Acme Water",
		TargetDomain:  "acmewater.com",
	}
}

func str(s string) *string {
	return &s
}
