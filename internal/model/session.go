package model

import (
	"time"
)

// SessionDoc is the stored shape of a session: one row per sharing session,
// solo and group variants share the table and are discriminated by kind.
// Use Solo()/Group() to get the typed variant instead of reading the
// conditionally-present columns directly.
type SessionDoc struct {
	ID              string       `db:"id" json:"id"`
	Code            string       `db:"code" json:"code"`
	Kind            SessionKind  `db:"kind" json:"kind"`
	Status          string       `db:"status" json:"status"`
	OwnerID         string       `db:"owner_id" json:"ownerId"`
	OwnerName       string       `db:"owner_name" json:"ownerName"`
	Variant         *SoloVariant `db:"variant" json:"variant,omitempty"`
	FinderID        *string      `db:"finder_id" json:"finderId,omitempty"`
	FinderName      *string      `db:"finder_name" json:"finderName,omitempty"`
	Members         MemberList   `db:"members" json:"members,omitempty"`
	MaxMembers      int          `db:"max_members" json:"maxMembers,omitempty"`
	OwnerLocation   NullGeoPoint `db:"owner_location" json:"ownerLocation,omitempty"`
	FinderLocation  NullGeoPoint `db:"finder_location" json:"finderLocation,omitempty"`
	MemberLocations LocationMap  `db:"member_locations" json:"memberLocations,omitempty"`
	ArrivedName     *string      `db:"arrived_name" json:"arrivedName,omitempty"`
	ArrivedAt       *time.Time   `db:"arrived_at" json:"arrivedAt,omitempty"`
	ExpiresAt       time.Time    `db:"expires_at" json:"expiresAt"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the session's TTL has passed. The store does not
// auto-delete, so every read site must apply this check itself.
func (d *SessionDoc) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Live reports whether the session should still be treated as an active
// sharing unit: not terminal and not expired.
func (d *SessionDoc) Live(now time.Time) bool {
	if d.Expired(now) {
		return false
	}
	switch d.Kind {
	case SessionKindSolo:
		return !SoloStatus(d.Status).Terminal()
	case SessionKindGroup:
		return !GroupStatus(d.Status).Terminal()
	}
	return false
}

// SessionBase carries the fields common to both variants.
type SessionBase struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	OwnerID     string     `json:"ownerId"`
	OwnerName   string     `json:"ownerName"`
	ArrivedName *string    `json:"arrivedName,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (b SessionBase) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// SoloSession is the two-party pairing variant.
type SoloSession struct {
	SessionBase
	Variant        SoloVariant  `json:"variant"`
	Status         SoloStatus   `json:"status"`
	FinderID       *string      `json:"finderId,omitempty"`
	FinderName     *string      `json:"finderName,omitempty"`
	OwnerLocation  NullGeoPoint `json:"ownerLocation"`
	FinderLocation NullGeoPoint `json:"finderLocation"`
}

// EffectiveStatus folds implicit TTL expiry into the stored status: an
// expired session reads as cancelled even when the stored column disagrees.
func (s *SoloSession) EffectiveStatus(now time.Time) SoloStatus {
	if s.Status.Terminal() {
		return s.Status
	}
	if s.Expired(now) {
		return SoloStatusCancelled
	}
	return s.Status
}

// GroupSession is the hub-and-spoke variant: one leader, up to MaxMembers
// members. Members never see each other's locations, only the leader's.
type GroupSession struct {
	SessionBase
	Status          GroupStatus  `json:"status"`
	Members         MemberList   `json:"members"`
	MaxMembers      int          `json:"maxMembers"`
	OwnerLocation   NullGeoPoint `json:"ownerLocation"`
	MemberLocations LocationMap  `json:"memberLocations"`
}

func (g *GroupSession) EffectiveStatus(now time.Time) GroupStatus {
	if g.Status.Terminal() {
		return g.Status
	}
	if g.Expired(now) {
		return GroupStatusCancelled
	}
	return g.Status
}

func (g *GroupSession) Full() bool {
	return len(g.Members) >= g.MaxMembers
}

func (d *SessionDoc) base() SessionBase {
	return SessionBase{
		ID:          d.ID,
		Code:        d.Code,
		OwnerID:     d.OwnerID,
		OwnerName:   d.OwnerName,
		ArrivedName: d.ArrivedName,
		ArrivedAt:   d.ArrivedAt,
		ExpiresAt:   d.ExpiresAt,
		CreatedAt:   d.CreatedAt,
	}
}

// Solo converts the doc to its solo variant. Returns false when the doc is
// not a solo session.
func (d *SessionDoc) Solo() (*SoloSession, bool) {
	if d.Kind != SessionKindSolo {
		return nil, false
	}
	variant := SoloVariantQuick
	if d.Variant != nil {
		variant = *d.Variant
	}
	return &SoloSession{
		SessionBase:    d.base(),
		Variant:        variant,
		Status:         SoloStatus(d.Status),
		FinderID:       d.FinderID,
		FinderName:     d.FinderName,
		OwnerLocation:  d.OwnerLocation,
		FinderLocation: d.FinderLocation,
	}, true
}

// Group converts the doc to its group variant. Returns false when the doc is
// not a group session.
func (d *SessionDoc) Group() (*GroupSession, bool) {
	if d.Kind != SessionKindGroup {
		return nil, false
	}
	return &GroupSession{
		SessionBase:     d.base(),
		Status:          GroupStatus(d.Status),
		Members:         d.Members,
		MaxMembers:      d.MaxMembers,
		OwnerLocation:   d.OwnerLocation,
		MemberLocations: d.MemberLocations,
	}, true
}

// Snapshot is the tagged union delivered on the change feed: exactly one of
// Solo or Group is set, matching Kind.
type Snapshot struct {
	Kind  SessionKind   `json:"kind"`
	Solo  *SoloSession  `json:"solo,omitempty"`
	Group *GroupSession `json:"group,omitempty"`
}

// Snapshot builds the feed view of the doc with expiry folded into status.
func (d *SessionDoc) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{Kind: d.Kind}
	switch d.Kind {
	case SessionKindSolo:
		if solo, ok := d.Solo(); ok {
			solo.Status = solo.EffectiveStatus(now)
			snap.Solo = solo
		}
	case SessionKindGroup:
		if group, ok := d.Group(); ok {
			group.Status = group.EffectiveStatus(now)
			snap.Group = group
		}
	}
	return snap
}

// Live reports whether the snapshot still represents an ongoing session.
func (s Snapshot) Live() bool {
	switch {
	case s.Solo != nil:
		return !s.Solo.Status.Terminal()
	case s.Group != nil:
		return !s.Group.Status.Terminal()
	}
	return false
}

// SessionID returns the underlying session id regardless of variant.
func (s Snapshot) SessionID() string {
	switch {
	case s.Solo != nil:
		return s.Solo.ID
	case s.Group != nil:
		return s.Group.ID
	}
	return ""
}

type CreateSessionParams struct {
	Code       string
	Kind       SessionKind
	Status     string
	OwnerID    string
	OwnerName  string
	Variant    *SoloVariant
	MaxMembers int
	ExpiresAt  time.Time
}
