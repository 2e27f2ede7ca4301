package feed

import (
	"context"
	"encoding/json"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// Publisher is the write side of the change feed. Broker implements it; tests
// substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, event Event) error
}

// EndedPayload tells subscribers why a session stopped being live.
type EndedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"` // cancelled, declined, expired
}

func SnapshotEvent(snap model.Snapshot) Event {
	data, _ := json.Marshal(snap)
	return Event{Type: TypeSnapshot, Data: data}
}

func ArrivalEvent(arrival model.Arrival) Event {
	data, _ := json.Marshal(arrival)
	return Event{Type: TypeArrival, Data: data}
}

func EndedEvent(sessionID, reason string) Event {
	data, _ := json.Marshal(EndedPayload{SessionID: sessionID, Reason: reason})
	return Event{Type: TypeEnded, Data: data}
}
