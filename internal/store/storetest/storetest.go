// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/interpctl/internal/project"
	"github.com/loykin/interpctl/internal/store"
)

// Run exercises s against a freshly created schema.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	// schema creation must be repeatable
	require.NoError(t, s.EnsureSchema(ctx))

	alpha, err := s.CreateProject(ctx, "alpha")
	require.NoError(t, err)
	beta, err := s.CreateProject(ctx, "beta")
	require.NoError(t, err)
	assert.NotEqual(t, alpha.ID, beta.ID)

	_, err = s.CreateProject(ctx, "alpha")
	assert.Error(t, err, "duplicate project name")

	got, err := s.GetProject(ctx, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	_, err = s.GetProject(ctx, alpha.ID+beta.ID+100)
	assert.ErrorIs(t, err, project.ErrNotFound)

	all, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	now := time.Now().UTC().Truncate(time.Second)
	py := store.SettingRecord{
		ID: "py-1", ProjectID: alpha.ID, Name: "python", Group: "python", Remote: true,
		Properties: map[string]string{"zeppelin.python": "python3"}, UpdatedAt: now,
	}
	sp := store.SettingRecord{
		ID: "sp-1", ProjectID: alpha.ID, Name: "spark", Group: "spark", Remote: true,
		UpdatedAt: now.Add(time.Second),
	}
	require.NoError(t, s.UpsertSetting(ctx, py))
	require.NoError(t, s.UpsertSetting(ctx, sp))

	list, err := s.ListSettings(ctx, alpha.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "py-1", list[0].ID)
	assert.Equal(t, "python3", list[0].Properties["zeppelin.python"])
	assert.NotNil(t, list[1].Properties)

	other, err := s.ListSettings(ctx, beta.ID)
	require.NoError(t, err)
	assert.Empty(t, other)

	// settings are scoped to their project
	_, err = s.GetSetting(ctx, beta.ID, "py-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	py.Properties = map[string]string{"zeppelin.python": "python3.12"}
	py.UpdatedAt = now.Add(2 * time.Second)
	require.NoError(t, s.UpsertSetting(ctx, py))
	updated, err := s.GetSetting(ctx, alpha.ID, "py-1")
	require.NoError(t, err)
	assert.Equal(t, "python3.12", updated.Properties["zeppelin.python"])
	assert.True(t, updated.Remote)

	require.NoError(t, s.DeleteSetting(ctx, alpha.ID, "sp-1"))
	assert.ErrorIs(t, s.DeleteSetting(ctx, alpha.ID, "sp-1"), store.ErrNotFound)
	_, err = s.GetSetting(ctx, alpha.ID, "sp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
