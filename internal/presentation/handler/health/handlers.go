package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/ghostline/internal/infrastructure/json"
	"github.com/jonboulle/clockwork"
)

type Handler struct {
	clock     clockwork.Clock
	startedAt time.Time
	healthy   atomic.Bool
}

func NewHandler(clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Handler{clock: clock, startedAt: clock.Now()}
	h.healthy.Store(true)
	return h
}

// SetHealthy flips the reported status; the server marks itself unhealthy
// while draining on shutdown.
func (h *Handler) SetHealthy(ok bool) {
	h.healthy.Store(ok)
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: now.UnixMilli(),
		Uptime:    now.Sub(h.startedAt).Round(time.Second).String(),
	}

	status := http.StatusOK
	if !h.healthy.Load() {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	_ = json.Write(w, status, resp)
}
