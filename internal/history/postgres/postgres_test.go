package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/interpctl/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := New(connStr)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now(), ProjectID: 3, Project: "gamma", SettingID: "pg-1", Group: "python", Running: true, Duration: time.Second},
		{Type: history.EventStop, OccurredAt: time.Now(), ProjectID: 3, Project: "gamma", SettingID: "pg-1", Group: "python"},
		{Type: history.EventError, OccurredAt: time.Now(), ProjectID: 3, Project: "gamma", SettingID: "pg-2", Group: "md", Err: "restart rejected"},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}
	n, err := sink.Count(ctx, "pg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
