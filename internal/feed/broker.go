// Package feed delivers the session change feed: every mutation of a session
// document is published as an event carrying the full current snapshot, and
// every subscribed device receives it. Redis pub/sub carries events across
// server instances; the broker fans them out to local subscribers.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/darry-Jnr/codemap-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	// Event types
	TypeSnapshot = "snapshot"
	TypeArrival  = "arrival"
	TypeEnded    = "ended"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	SessionID string
	Events    chan Event
	Done      chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // sessionID -> set of clients
	stops   map[string]chan struct{}    // sessionID -> redis subscriber stop
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Events:    make(chan Event, 100),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[*Client]bool)
		stop := make(chan struct{})
		b.stops[sessionID] = stop
		go b.subscribeToRedis(sessionID, stop)
	}
	b.clients[sessionID][client] = true
	clientCount := len(b.clients[sessionID])
	b.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Int("clientCount", clientCount).
		Msg("feed client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.SessionID]; ok {
		delete(clients, client)
		close(client.Done)

		// Sessions are short-lived, so the redis subscription goes down with
		// the last local client rather than lingering until broker close.
		if len(clients) == 0 {
			delete(b.clients, client.SessionID)
			if stop, ok := b.stops[client.SessionID]; ok {
				close(stop)
				delete(b.stops, client.SessionID)
			}
		}

		log.Info().
			Str("sessionId", client.SessionID).
			Int("clientCount", len(clients)).
			Msg("feed client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, sessionID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(sessionID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(sessionID string, stop <-chan struct{}) {
	channel := redisclient.SessionChannel(sessionID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case <-stop:
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal feed event")
				continue
			}

			b.broadcast(sessionID, event)
		}
	}
}

func (b *Broker) broadcast(sessionID string, event Event) {
	b.mu.RLock()
	clients := b.clients[sessionID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("sessionId", sessionID).
				Msg("feed client buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.stops = make(map[string]chan struct{})
}

// TotalClients reports the number of connected feed clients across all
// sessions, for the health endpoint.
func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
