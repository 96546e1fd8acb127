package messages

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/ghostline/internal/domain"
	"github.com/hilthontt/ghostline/internal/infrastructure/json"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
)

type Handler struct {
	messageRepository domain.MessageRepository
}

func NewHandler(messageRepository domain.MessageRepository) *Handler {
	return &Handler{messageRepository: messageRepository}
}

// ListRoomMessagesHandler returns the live messages of a room, oldest first.
// Unknown rooms yield an empty array.
func (h *Handler) ListRoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteBadRequestError(w, "room ID is missing")
		return
	}

	messages := h.messageRepository.ListByRoom(r.Context(), roomID)
	_ = json.Write(w, http.StatusOK, ws.ToMessageDTOs(messages))
}
