package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/middleware"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/service"
)

const (
	channelWriteWait      = 10 * time.Second
	channelPongWait       = 60 * time.Second
	channelPingPeriod     = (channelPongWait * 9) / 10
	channelMaxMessageSize = 4 * 1024
)

var channelUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// channelMessage is the client-to-server frame on the location channel.
type channelMessage struct {
	Type string  `json:"type"` // "location" or "arrived"
	Lat  float64 `json:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty"`
}

type ChannelHandler struct {
	broker         *feed.Broker
	sessionService *service.SessionService
}

func NewChannelHandler(broker *feed.Broker, sessionService *service.SessionService) *ChannelHandler {
	return &ChannelHandler{
		broker:         broker,
		sessionService: sessionService,
	}
}

// GET /v1/sessions/{sessionID}/channel
//
// Bidirectional location channel: the client pushes throttled location fixes
// and arrival confirmations up, the server streams feed events down.
func (h *ChannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	snapshot, err := h.sessionService.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	role, ok := participantRole(snapshot, participant.ID)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Not a participant of this session"})
		return
	}

	conn, err := channelUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participant.ID).
		Str("role", string(role)).
		Msg("location channel opened")

	conn.EnableWriteCompression(false)

	client := h.broker.Subscribe(sessionID)

	c := &channelConn{
		handler:   h,
		conn:      conn,
		client:    client,
		sessionID: sessionID,
		selfID:    participant.ID,
		selfName:  participant.Name,
		role:      role,
	}

	go c.writePump()
	c.readPump()
}

// participantRole resolves which location slot the connecting participant
// owns. Unknown participants get no slot and no channel.
func participantRole(snap model.Snapshot, participantID string) (model.Role, bool) {
	switch {
	case snap.Solo != nil:
		if snap.Solo.OwnerID == participantID {
			return model.RoleOwner, true
		}
		if snap.Solo.FinderID != nil && *snap.Solo.FinderID == participantID {
			return model.RoleFinder, true
		}
	case snap.Group != nil:
		if snap.Group.OwnerID == participantID {
			return model.RoleOwner, true
		}
		if snap.Group.Members.Contains(participantID) {
			return model.RoleMember, true
		}
	}
	return "", false
}

type channelConn struct {
	handler   *ChannelHandler
	conn      *websocket.Conn
	client    *feed.Client
	sessionID string
	selfID    string
	selfName  string
	role      model.Role
}

func (c *channelConn) readPump() {
	defer func() {
		c.handler.broker.Unsubscribe(c.client)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(channelMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(channelPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(channelPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("sessionId", c.sessionID).Msg("location channel read error")
			}
			return
		}

		var msg channelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("sessionId", c.sessionID).Msg("malformed channel message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *channelConn) handleMessage(msg *channelMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch msg.Type {
	case "location":
		point := model.GeoPoint{Latitude: msg.Lat, Longitude: msg.Lng}
		if err := c.handler.sessionService.PublishLocation(ctx, c.sessionID, c.role, c.selfID, point); err != nil {
			log.Debug().Err(err).
				Str("sessionId", c.sessionID).
				Str("participantId", c.selfID).
				Msg("location write rejected")
		}

	case "arrived":
		if err := c.handler.sessionService.SignalArrival(ctx, c.sessionID, c.selfName); err != nil {
			log.Debug().Err(err).
				Str("sessionId", c.sessionID).
				Msg("arrival signal rejected")
		}

	default:
		log.Debug().
			Str("type", msg.Type).
			Str("sessionId", c.sessionID).
			Msg("unknown channel message type")
	}
}

func (c *channelConn) writePump() {
	ticker := time.NewTicker(channelPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.client.Events:
			c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal feed event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.client.Done:
			c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
