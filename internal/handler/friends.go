package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/darry-Jnr/codemap-server-go/internal/middleware"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/service"
)

type FriendsHandler struct {
	sessionService *service.SessionService
}

func NewFriendsHandler(sessionService *service.SessionService) *FriendsHandler {
	return &FriendsHandler{sessionService: sessionService}
}

func (h *FriendsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}

// GET /v1/friends
func (h *FriendsHandler) List(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	friends, err := h.sessionService.Friends(r.Context(), participant.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	if friends == nil {
		friends = []model.Friend{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"friends": friends})
}
