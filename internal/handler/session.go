package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/middleware"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	rateLimit      func(http.Handler) http.Handler
}

func NewSessionHandler(sessionService *service.SessionService, rateLimit func(http.Handler) http.Handler) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		rateLimit:      rateLimit,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/", h.CreateSolo)
		r.Post("/find", h.SubmitCode)
		r.Post("/group", h.CreateGroup)
		r.Post("/group/join", h.JoinGroup)
	})

	r.Get("/{sessionID}", h.GetSession)
	r.Get("/{sessionID}/arrivals", h.Arrivals)
	r.Post("/{sessionID}/accept", h.Accept)
	r.Post("/{sessionID}/decline", h.Decline)
	r.Post("/{sessionID}/cancel", h.Cancel)
	r.Post("/{sessionID}/cancel-request", h.CancelRequest)
	r.Post("/{sessionID}/arrived", h.Arrived)

	return r
}

type createSoloRequest struct {
	Variant string `json:"variant"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSolo(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	var req createSoloRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	variant := model.SoloVariantQuick
	switch req.Variant {
	case "", string(model.SoloVariantQuick):
	case string(model.SoloVariantHangout):
		variant = model.SoloVariantHangout
	default:
		writeError(w, apperrors.InvalidInput("variant", "must be quick or hangout"))
		return
	}

	session, err := h.sessionService.CreateSolo(r.Context(), participant.ID, participant.Name, variant)
	if err != nil {
		log.Error().Err(err).Msg("failed to create solo session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

// POST /v1/sessions/find
func (h *SessionHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	var req submitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	session, err := h.sessionService.SubmitCode(r.Context(), req.Code, participant.ID, participant.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snapshot, err := h.sessionService.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// GET /v1/sessions/{sessionID}/arrivals
func (h *SessionHandler) Arrivals(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	arrivals, err := h.sessionService.ArrivalLog(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if arrivals == nil {
		arrivals = []model.Arrival{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Arrival{"arrivals": arrivals})
}

// POST /v1/sessions/{sessionID}/accept
func (h *SessionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessionService.Accept(r.Context(), sessionID, participant.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// POST /v1/sessions/{sessionID}/decline
func (h *SessionHandler) Decline(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessionService.Decline(r.Context(), sessionID, participant.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

// POST /v1/sessions/{sessionID}/cancel
//
// Solo sessions are cancelled by their owner; group sessions are ended by
// their leader. The handler dispatches on the stored session kind.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	snapshot, err := h.sessionService.Snapshot(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if snapshot.Kind == model.SessionKindGroup {
		err = h.sessionService.EndGroup(ctx, sessionID, participant.ID)
	} else {
		err = h.sessionService.Cancel(ctx, sessionID, participant.ID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// POST /v1/sessions/{sessionID}/cancel-request
func (h *SessionHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessionService.CancelRequest(r.Context(), sessionID, participant.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// POST /v1/sessions/{sessionID}/arrived
func (h *SessionHandler) Arrived(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessionService.SignalArrival(r.Context(), sessionID, participant.Name); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "arrived"})
}
