package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_UpsertRefreshes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	sessions := NewSessionRepository(clock)

	s, err := domain.NewSession("u1", "Ghost#0001", "pk1", clock.Now())
	require.NoError(t, err)

	stored, created, err := sessions.Upsert(ctx, s)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, clock.Now(), stored.LastSeen)

	clock.Advance(time.Minute)
	s.PublicKey = "pk2"
	stored, created, err = sessions.Upsert(ctx, s)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "pk2", stored.PublicKey)
	assert.Equal(t, clock.Now(), stored.LastSeen)
}

func TestSessionRepository_SetTypingTransitions(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionRepository(clockwork.NewFakeClock())

	_, err := sessions.SetTyping(ctx, "ghost", true)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, _, err = sessions.Upsert(ctx, &domain.Session{ID: "u1", Username: "Ghost#0001"})
	require.NoError(t, err)

	changed, err := sessions.SetTyping(ctx, "u1", true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = sessions.SetTyping(ctx, "u1", true)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = sessions.SetTyping(ctx, "u1", false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSessionRepository_GetManyAndDelete(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionRepository(nil)

	for _, id := range []string{"u1", "u2"} {
		_, _, err := sessions.Upsert(ctx, &domain.Session{ID: id, Username: "name-" + id})
		require.NoError(t, err)
	}
	require.NoError(t, sessions.SetRoom(ctx, "u2", "main"))

	many := sessions.GetMany(ctx, []string{"u2", "missing", "u1"})
	require.Len(t, many, 2)
	assert.Equal(t, "u2", many[0].ID)
	assert.Equal(t, "main", many[0].RoomID)
	assert.Equal(t, "u1", many[1].ID)

	assert.True(t, sessions.Delete(ctx, "u1"))
	assert.False(t, sessions.Delete(ctx, "u1"))
	_, err := sessions.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
