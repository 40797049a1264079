package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

func TestEventLogRepo_AppendAndRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventLogRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []string{model.EventPlayerJoin, model.EventPlayerChat, model.EventPlayerQuit} {
		err := repo.Append(ctx, model.EventLog{
			EventType: typ,
			NodeName:  "Survival1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Data:      json.RawMessage(`{"player":"steve"}`),
		})
		require.NoError(t, err)
	}

	events, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, model.EventPlayerQuit, events[0].EventType)
	assert.Equal(t, model.EventPlayerChat, events[1].EventType)
	assert.JSONEq(t, `{"player":"steve"}`, string(events[0].Data))
}

func TestEventLogRepo_Recent_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventLogRepo(db)

	events, err := repo.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestConfigRepo_PanelPassword(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConfigRepo(db)
	ctx := context.Background()

	has, err := repo.HasPanelPassword(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	ok, err := repo.VerifyPanelPassword(ctx, "hunter2")
	require.NoError(t, err)
	assert.False(t, ok, "verification against an unset password must fail")

	require.NoError(t, repo.SetPanelPassword(ctx, "hunter2"))

	has, err = repo.HasPanelPassword(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	ok, err = repo.VerifyPanelPassword(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.VerifyPanelPassword(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Setting again replaces the previous hash.
	require.NoError(t, repo.SetPanelPassword(ctx, "correct horse"))

	ok, err = repo.VerifyPanelPassword(ctx, "hunter2")
	require.NoError(t, err)
	assert.False(t, ok)
}
