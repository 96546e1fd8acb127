package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/repository"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySweepJob_RunOnce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	rooms := repository.NewRoomRepository(repository.RoomRepositoryOptions{Clock: clock, IdleExpiry: time.Minute})
	messages := repository.NewMessageRepository(rooms, 10, clock)

	expiresAt := clock.Now().Add(time.Second)
	_, err := messages.Create(ctx, &domain.Message{RoomID: "main", SenderID: "A", ExpiresAt: &expiresAt})
	require.NoError(t, err)
	_, err = rooms.Create(ctx, "idle")
	require.NoError(t, err)

	// Without timers the sweep is the only remover.
	messages.Close()
	clock.Advance(2 * time.Minute)

	job := NewExpirySweepJob(messages, rooms, logging.NewNop(), clock, time.Minute)
	expired, evicted := job.RunOnce(ctx)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, evicted)

	expired, evicted = job.RunOnce(ctx)
	assert.Zero(t, expired)
	assert.Zero(t, evicted)
}

func TestExpirySweepJob_StartStop(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	rooms := repository.NewRoomRepository(repository.RoomRepositoryOptions{Clock: clock})
	messages := repository.NewMessageRepository(rooms, 10, clock)
	defer messages.Close()

	job := NewExpirySweepJob(messages, rooms, logging.NewNop(), clock, time.Minute)
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	job.Stop()
	job.Stop()
	<-done
}
