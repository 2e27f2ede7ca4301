package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/middleware"
)

// POST /v1/sessions/group
func (h *SessionHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	session, err := h.sessionService.CreateGroup(r.Context(), participant.ID, participant.Name)
	if err != nil {
		log.Error().Err(err).Msg("failed to create group session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type joinGroupRequest struct {
	Code string `json:"code"`
}

// POST /v1/sessions/group/join
func (h *SessionHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	var req joinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	session, err := h.sessionService.JoinGroup(r.Context(), req.Code, participant.ID, participant.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
