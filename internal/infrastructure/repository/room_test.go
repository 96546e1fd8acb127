package repository

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestRooms(t *testing.T, capacity uint) (domain.RoomRepository, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rooms := NewRoomRepository(RoomRepositoryOptions{
		Capacity:   capacity,
		IdleExpiry: time.Minute,
		Clock:      clock,
	})
	return rooms, clock
}

func TestRoomRepository_DefaultRoom(t *testing.T) {
	rooms, _ := newTestRooms(t, 10)

	room, err := rooms.GetByID(context.Background(), domain.DefaultRoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRoomName, room.Name)
	assert.Empty(t, room.Members)
	assert.Empty(t, room.MessageIDs)
}

func TestRoomRepository_JoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 10)

	first, err := rooms.Join(ctx, "lobby", "alice")
	require.NoError(t, err)
	second, err := rooms.Join(ctx, "lobby", "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, first.Members)
	assert.Equal(t, first.Members, second.Members)
	assert.Equal(t, "lobby", second.Name)
}

func TestRoomRepository_Leave(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 10)

	_, err := rooms.Join(ctx, "main", "alice")
	require.NoError(t, err)
	_, err = rooms.Join(ctx, "main", "bob")
	require.NoError(t, err)

	assert.True(t, rooms.Leave(ctx, "main", "alice"))
	assert.False(t, rooms.Leave(ctx, "main", "alice"))
	assert.False(t, rooms.Leave(ctx, "nowhere", "bob"))

	snap, ok := rooms.Snapshot(ctx, "main")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, snap.Members)
}

func TestRoomRepository_LeaveAll(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 10)

	for _, id := range []string{"b", "a", "main"} {
		_, err := rooms.Join(ctx, id, "alice")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "main"}, rooms.LeaveAll(ctx, "alice"))
	assert.Empty(t, rooms.LeaveAll(ctx, "alice"))
}

func TestRoomRepository_RemoveMessageKeepsOrder(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 10)

	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, rooms.AppendMessage(ctx, "main", id))
	}

	rooms.RemoveMessage(ctx, "main", "m2")
	rooms.RemoveMessage(ctx, "main", "m2")
	rooms.RemoveMessage(ctx, "unknown", "m1")

	snap, ok := rooms.Snapshot(ctx, "main")
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m3", "m4"}, snap.MessageIDs)
}

func TestRoomRepository_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 10)
	require.NoError(t, rooms.AppendMessage(ctx, "main", "m1"))

	snap, _ := rooms.Snapshot(ctx, "main")
	snap.MessageIDs[0] = "tampered"

	again, _ := rooms.Snapshot(ctx, "main")
	assert.Equal(t, []string{"m1"}, again.MessageIDs)
}

func TestRoomRepository_Capacity(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newTestRooms(t, 2)

	idle, err := rooms.Create(ctx, "idle")
	require.NoError(t, err)

	// The idle room makes way for an occupied one.
	_, err = rooms.Join(ctx, "busy", "alice")
	require.NoError(t, err)
	_, err = rooms.GetByID(ctx, idle.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = rooms.Join(ctx, "full", "bob")
	assert.ErrorIs(t, err, domain.ErrRoomLimitReached)
}

func TestRoomRepository_CreateValidatesName(t *testing.T) {
	rooms, _ := newTestRooms(t, 10)

	_, err := rooms.Create(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	room, err := rooms.Create(context.Background(), " ops ")
	require.NoError(t, err)
	assert.Equal(t, "ops", room.Name)
	assert.NotEmpty(t, room.ID)
}

func TestRoomRepository_EvictIdle(t *testing.T) {
	ctx := context.Background()
	rooms, clock := newTestRooms(t, 10)

	idle, err := rooms.Create(ctx, "idle")
	require.NoError(t, err)
	_, err = rooms.Join(ctx, "occupied", "alice")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, rooms.EvictIdle(ctx))

	_, err = rooms.GetByID(ctx, idle.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = rooms.GetByID(ctx, "occupied")
	assert.NoError(t, err)
	_, err = rooms.GetByID(ctx, domain.DefaultRoomID)
	assert.NoError(t, err)
}

// TestRoomRepository_SequenceModel checks appends and removals against a plain slice.
func TestRoomRepository_SequenceModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		rooms := NewRoomRepository(RoomRepositoryOptions{Clock: clockwork.NewFakeClock()})
		var model []string

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(model) > 0 && rapid.Bool().Draw(t, "remove") {
				victim := rapid.SampledFrom(model).Draw(t, "victim")
				rooms.RemoveMessage(ctx, "main", victim)
				idx := slices.Index(model, victim)
				model = slices.Delete(model, idx, idx+1)
				continue
			}
			id := fmt.Sprintf("m%d", i)
			if err := rooms.AppendMessage(ctx, "main", id); err != nil {
				t.Fatalf("append: %v", err)
			}
			model = append(model, id)
		}

		snap, _ := rooms.Snapshot(ctx, "main")
		if !slices.Equal(model, snap.MessageIDs) {
			t.Fatalf("sequence mismatch: got %v, want %v", snap.MessageIDs, model)
		}
	})
}
