package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/jonboulle/clockwork"
)

// ExpirySweepJob is the safety net behind the per-message timers. It also
// drops idle rooms from the directory.
type ExpirySweepJob struct {
	messages domain.MessageRepository
	rooms    domain.RoomRepository
	logger   logging.Logger
	clock    clockwork.Clock
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewExpirySweepJob(
	messages domain.MessageRepository,
	rooms domain.RoomRepository,
	logger logging.Logger,
	clock clockwork.Clock,
	interval time.Duration,
) *ExpirySweepJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweepJob{
		messages: messages,
		rooms:    rooms,
		logger:   logger,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (j *ExpirySweepJob) Start(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info(logging.Store, logging.Sweep, "Expiry sweep job started", map[logging.ExtraKey]any{
		"Interval": j.interval.String(),
	})

	for {
		select {
		case <-ticker.Chan():
			j.RunOnce(ctx)
		case <-j.stopChan:
			j.logger.Info(logging.Store, logging.Sweep, "Expiry sweep job stopped", nil)
			return
		case <-ctx.Done():
			j.logger.Info(logging.Store, logging.Sweep, "Expiry sweep job context cancelled", nil)
			return
		}
	}
}

func (j *ExpirySweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopChan)
	})
}

// RunOnce performs a single sweep and returns the messages and rooms it removed.
func (j *ExpirySweepJob) RunOnce(ctx context.Context) (int, int) {
	startTime := j.clock.Now()

	expired := j.messages.DeleteAllExpired(ctx)
	rooms := j.rooms.EvictIdle(ctx)

	if expired > 0 || rooms > 0 {
		j.logger.Info(logging.Store, logging.Sweep, "Expiry sweep removed stale entries", map[logging.ExtraKey]any{
			logging.Count:   expired,
			"RoomsEvicted":  rooms,
			logging.Latency: j.clock.Since(startTime).String(),
		})
	}
	return expired, rooms
}
