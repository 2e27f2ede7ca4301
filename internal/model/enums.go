package model

type SessionKind string

const (
	SessionKindSolo  SessionKind = "solo"
	SessionKindGroup SessionKind = "group"
)

// SoloVariant selects the TTL for a solo session.
type SoloVariant string

const (
	SoloVariantQuick   SoloVariant = "quick"   // 30 minutes
	SoloVariantHangout SoloVariant = "hangout" // 120 minutes
)

type SoloStatus string

const (
	SoloStatusWaiting   SoloStatus = "waiting"
	SoloStatusPending   SoloStatus = "pending"
	SoloStatusActive    SoloStatus = "active"
	SoloStatusDeclined  SoloStatus = "declined"
	SoloStatusCancelled SoloStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s SoloStatus) Terminal() bool {
	return s == SoloStatusDeclined || s == SoloStatusCancelled
}

type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCancelled GroupStatus = "cancelled"
)

func (s GroupStatus) Terminal() bool {
	return s == GroupStatusCancelled
}

// Role is a participant's relationship to a session. It lives only in the
// device's local state, never in the store.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleFinder Role = "finder"
	RoleMember Role = "member"
)
