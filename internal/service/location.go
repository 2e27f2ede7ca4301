package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// PublishLocation writes one participant's latest fix to their own key on
// the session document. Each role writes only its own field, so concurrent
// participants never conflict. The store rejects the write once the session
// is expired or terminal.
func (s *SessionService) PublishLocation(ctx context.Context, sessionID string, role model.Role, selfID string, point model.GeoPoint) error {
	if !point.Valid() {
		return apperrors.InvalidInput("location", "coordinates out of range")
	}

	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if doc == nil {
		return apperrors.SessionNotFound()
	}

	var accepted bool
	switch {
	case role == model.RoleOwner && doc.OwnerID == selfID:
		accepted, err = s.sessions.SetOwnerLocation(ctx, doc.ID, point)
	case role == model.RoleFinder && doc.Kind == model.SessionKindSolo:
		if doc.FinderID == nil || *doc.FinderID != selfID {
			return apperrors.InvalidState("Not the finder of this session")
		}
		accepted, err = s.sessions.SetFinderLocation(ctx, doc.ID, point)
	case role == model.RoleMember && doc.Kind == model.SessionKindGroup:
		if !doc.Members.Contains(selfID) {
			return apperrors.InvalidState("Not a member of this session")
		}
		accepted, err = s.sessions.SetMemberLocation(ctx, doc.ID, selfID, point)
	default:
		return apperrors.InvalidState("Role does not match session")
	}
	if err != nil {
		return apperrors.Database(err)
	}
	if !accepted {
		// Expired or terminal. Location is best-effort telemetry, so the
		// caller logs this rather than surfacing it.
		return apperrors.SessionTerminal()
	}

	s.publishSnapshot(ctx, sessionID)
	return nil
}

// SignalArrival records the one-shot arrival: write-once on the session doc,
// appended to the arrival log, and published as a distinct feed event so
// subscribers never have to debounce the sticky field.
func (s *SessionService) SignalArrival(ctx context.Context, sessionID, name string) error {
	if name == "" {
		return apperrors.MissingRequired("name")
	}

	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if doc == nil {
		return apperrors.SessionNotFound()
	}
	if doc.ArrivedName != nil {
		return apperrors.AlreadyArrived()
	}

	now := time.Now()
	var recorded bool
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)
		arrivals := s.arrivals.WithTx(tx)

		var err error
		recorded, err = sessions.RecordArrival(ctx, doc.ID, name, now)
		if err != nil {
			return err
		}
		if !recorded {
			return nil
		}
		return arrivals.Append(ctx, doc.ID, name, now)
	})
	if err != nil {
		return apperrors.Database(err)
	}
	if !recorded {
		// Another participant won the write-once race.
		return apperrors.AlreadyArrived()
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("name", name).
		Msg("arrival signalled")

	if err := s.publisher.Publish(ctx, doc.ID, feed.ArrivalEvent(model.Arrival{
		SessionID: doc.ID,
		Name:      name,
		At:        now,
	})); err != nil {
		log.Error().Err(err).Str("sessionId", doc.ID).Msg("failed to publish arrival event")
	}
	s.publishSnapshot(ctx, doc.ID)
	return nil
}

// ArrivalLog returns the session's arrival history, oldest first.
func (s *SessionService) ArrivalLog(ctx context.Context, sessionID string) ([]model.Arrival, error) {
	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if doc == nil {
		return nil, apperrors.SessionNotFound()
	}

	arrivals, err := s.arrivals.ListBySession(ctx, doc.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return arrivals, nil
}
