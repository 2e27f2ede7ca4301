package model

import "time"

// Friend is a reconnection shortcut written symmetrically to both parties
// when a solo session goes active. Derived data only; it has no bearing on
// session semantics.
type Friend struct {
	UserID          string    `db:"user_id" json:"-"`
	CounterpartID   string    `db:"counterpart_id" json:"counterpartId"`
	DisplayName     string    `db:"display_name" json:"displayName"`
	LastConnectedAt time.Time `db:"last_connected_at" json:"lastConnectedAt"`
}

// Arrival is one entry in the append-only arrival log. The session doc also
// carries a write-once arrived_name/arrived_at pair for point reads; the log
// is what the feed publishes so consumers never re-derive one-shot events
// from a sticky field.
type Arrival struct {
	SessionID string    `db:"session_id" json:"sessionId"`
	Name      string    `db:"name" json:"name"`
	At        time.Time `db:"at" json:"at"`
}
