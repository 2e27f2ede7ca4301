package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/service"
)

type EventsHandler struct {
	broker         *feed.Broker
	sessionService *service.SessionService
}

func NewEventsHandler(broker *feed.Broker, sessionService *service.SessionService) *EventsHandler {
	return &EventsHandler{
		broker:         broker,
		sessionService: sessionService,
	}
}

// GET /v1/sessions/{sessionID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Reject streams for sessions that do not exist; an initial snapshot
	// doubles as the first event so late subscribers never start blind.
	snapshot, err := h.sessionService.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(sessionID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("sessionId", sessionID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, feed.TypeSnapshot, snapshot); err != nil {
		log.Error().Err(err).Msg("failed to send initial snapshot")
		return
	}

	ctx := r.Context()

	heartbeat := time.NewTicker(feed.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("sessionId", sessionID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("sessionId", sessionID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("sessionId", sessionID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, feed.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event feed.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
