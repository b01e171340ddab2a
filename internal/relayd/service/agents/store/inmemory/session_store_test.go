package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

func newSession(id, app string) *entity.EngineSession {
	return &entity.EngineSession{
		ID:        id,
		AppName:   app,
		UserID:    "u-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestSessionStoreCRUD(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("sess-1", "relay")))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)

	got.AppendHistory(entity.NewUserMessage("hi"))
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got.History, 1)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)
}

func TestSessionStoreMissing(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)
	assert.ErrorIs(t, store.Update(ctx, newSession("nope", "relay")), errno.ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "nope"), errno.ErrSessionNotFound)
}

func TestSessionStoreListByApp(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("sess-1", "relay")))
	require.NoError(t, store.Create(ctx, newSession("sess-2", "relay")))
	require.NoError(t, store.Create(ctx, newSession("sess-3", "other")))

	sessions, err := store.ListByApp(ctx, "relay")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	sessions, err = store.ListByApp(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
