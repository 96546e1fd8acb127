package rooms

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/json"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/ghostline/internal/infrastructure/validate"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
)

type Handler struct {
	roomRepository domain.RoomRepository
	core           *ws.Core
	logger         logging.Logger
	upgrader       websocket.Upgrader
	upgradeLimiter *ratelimiter.FixedWindow
	clientOptions  ws.ClientOptions
}

type Options struct {
	AllowedOrigins []string
	UpgradeLimiter *ratelimiter.FixedWindow
	Client         ws.ClientOptions
}

func NewHandler(
	roomRepository domain.RoomRepository,
	core *ws.Core,
	logger logging.Logger,
	opts Options,
) *Handler {
	return &Handler{
		roomRepository: roomRepository,
		core:           core,
		logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(opts.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		upgradeLimiter: opts.UpgradeLimiter,
		clientOptions:  opts.Client,
	}
}

// checkOrigin accepts requests without an Origin header (native clients) and
// browser requests whose origin is listed. "*" accepts everything.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.Read(w, r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := validate.Struct(req); err != nil {
		json.WriteValidationError(w, errors.New(strings.Join(validate.Messages(err), "\n")))
		return
	}

	room, err := h.roomRepository.Create(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			json.WriteValidationError(w, err)
		case errors.Is(err, domain.ErrRoomLimitReached):
			json.WriteError(w, http.StatusServiceUnavailable, err, "Room limit reached, try again later")
		default:
			h.logger.Error(logging.Internal, logging.ExternalService, "failed to create room", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			json.WriteInternalError(w, err)
		}
		return
	}

	_ = json.Write(w, http.StatusCreated, ws.ToRoomDTO(*room))
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	room, ok := h.roomRepository.Snapshot(r.Context(), roomID)
	if !ok {
		json.WriteNotFoundError(w, "Room not found")
		return
	}

	_ = json.Write(w, http.StatusOK, ws.ToRoomDTO(*room))
}

// JoinHandler upgrades the request to a websocket and hands the connection to
// the core. The session binds later, on the first join_room frame.
func (h *Handler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	ip := ratelimiter.ClientIP(r)
	if h.upgradeLimiter != nil {
		if ok, wait := h.upgradeLimiter.Allow(ip); !ok {
			h.logger.Warn(logging.WebSocket, logging.RateLimiting, "websocket upgrade limited", map[logging.ExtraKey]any{
				logging.ClientIp: ip,
			})
			json.WriteRateLimitError(w, int(wait.Seconds())+1)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn(logging.WebSocket, logging.Connect, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     ip,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	client := ws.NewClient(conn, h.clientOptions, h.logger)
	h.core.Attach(client)

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(r.Context())
	go client.WritePump()
	go client.ReadPump(ctx, h.core)

	h.logger.Info(logging.WebSocket, logging.Connect, "websocket connected", map[logging.ExtraKey]any{
		logging.ClientIp: ip,
	})
}
