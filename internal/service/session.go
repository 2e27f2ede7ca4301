package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
	"github.com/darry-Jnr/codemap-server-go/internal/repository"
)

// TxRunner runs a function inside a database transaction. *database.DB
// implements it; tests substitute a pass-through.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// SessionService owns the session state machine for both variants. Every
// mutation publishes the full session snapshot to the change feed, so
// subscribers always converge on current state regardless of which update
// they observe.
type SessionService struct {
	db        TxRunner
	sessions  repository.SessionRepository
	friends   repository.FriendRepository
	arrivals  repository.ArrivalRepository
	publisher feed.Publisher
}

func NewSessionService(
	db TxRunner,
	sessions repository.SessionRepository,
	friends repository.FriendRepository,
	arrivals repository.ArrivalRepository,
	publisher feed.Publisher,
) *SessionService {
	return &SessionService{
		db:        db,
		sessions:  sessions,
		friends:   friends,
		arrivals:  arrivals,
		publisher: publisher,
	}
}

// CreateSolo opens a waiting solo session and returns it with its share code.
func (s *SessionService) CreateSolo(ctx context.Context, ownerID, ownerName string, variant model.SoloVariant) (*model.SoloSession, error) {
	if ownerID == "" || ownerName == "" {
		return nil, apperrors.MissingRequired("owner identity")
	}

	ttl := config.QuickSessionTTL
	switch variant {
	case model.SoloVariantQuick:
	case model.SoloVariantHangout:
		ttl = config.HangoutSessionTTL
	default:
		return nil, apperrors.InvalidInput("variant", "must be quick or hangout")
	}

	code, err := s.freshCode(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	doc, err := s.sessions.Create(ctx, model.CreateSessionParams{
		Code:      code,
		Kind:      model.SessionKindSolo,
		Status:    string(model.SoloStatusWaiting),
		OwnerID:   ownerID,
		OwnerName: ownerName,
		Variant:   &variant,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("code", code).
		Str("variant", string(variant)).
		Time("expiresAt", doc.ExpiresAt).
		Msg("solo session created")

	solo, _ := doc.Solo()
	return solo, nil
}

// SubmitCode is the finder side of pairing: resolve a code to a live waiting
// session and claim the finder slot. Validation failures never touch the
// store; lookup failures mutate nothing.
func (s *SessionService) SubmitCode(ctx context.Context, code, finderID, finderName string) (*model.SoloSession, error) {
	if finderID == "" || finderName == "" {
		return nil, apperrors.MissingRequired("finder identity")
	}

	normalized, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	doc, err := s.sessions.FindSoloByCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if doc == nil {
		log.Warn().Str("code", normalized).Msg("code not found")
		return nil, apperrors.CodeNotFound()
	}
	if doc.Expired(time.Now()) {
		return nil, apperrors.CodeExpired()
	}
	if doc.OwnerID == finderID {
		return nil, apperrors.SelfJoinRejected()
	}

	if err := s.sessions.MarkPending(ctx, doc.ID, finderID, finderName); err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("finderId", finderID).
		Msg("finder request pending")

	return s.publishSolo(ctx, doc.ID)
}

// Accept transitions pending -> active and records the friendship both ways
// in one transaction, keyed by the opposite party's identity.
func (s *SessionService) Accept(ctx context.Context, sessionID, requesterID string) (*model.SoloSession, error) {
	doc, err := s.fetchSolo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != requesterID {
		return nil, apperrors.NotTheOwner()
	}
	if model.SoloStatus(doc.Status) != model.SoloStatusPending || doc.FinderID == nil {
		return nil, apperrors.InvalidState("No pending request to accept")
	}
	if doc.Expired(time.Now()) {
		return nil, apperrors.SessionExpired()
	}

	finderID := *doc.FinderID
	finderName := ""
	if doc.FinderName != nil {
		finderName = *doc.FinderName
	}
	now := time.Now()

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)
		friends := s.friends.WithTx(tx)

		if err := sessions.MarkActive(ctx, doc.ID); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
		if err := friends.Upsert(ctx, doc.OwnerID, finderID, finderName, now); err != nil {
			return fmt.Errorf("upsert owner friend: %w", err)
		}
		if err := friends.Upsert(ctx, finderID, doc.OwnerID, doc.OwnerName, now); err != nil {
			return fmt.Errorf("upsert finder friend: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("ownerId", doc.OwnerID).
		Str("finderId", finderID).
		Msg("session accepted")

	return s.publishSolo(ctx, doc.ID)
}

// Decline rejects the pending finder. Terminal for this session.
func (s *SessionService) Decline(ctx context.Context, sessionID, requesterID string) error {
	doc, err := s.fetchSolo(ctx, sessionID)
	if err != nil {
		return err
	}
	if doc.OwnerID != requesterID {
		return apperrors.NotTheOwner()
	}
	if model.SoloStatus(doc.Status) != model.SoloStatusPending {
		return apperrors.InvalidState("No pending request to decline")
	}

	if err := s.sessions.MarkDeclined(ctx, doc.ID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", doc.ID).Msg("session declined")

	s.publishSnapshot(ctx, doc.ID)
	s.publishEnded(ctx, doc.ID, "declined")
	return nil
}

// CancelRequest lets the finder withdraw their own pending request. The slot
// is cleared, not destroyed: the session re-opens to waiting and the code
// stays usable until expiry.
func (s *SessionService) CancelRequest(ctx context.Context, sessionID, requesterID string) error {
	doc, err := s.fetchSolo(ctx, sessionID)
	if err != nil {
		return err
	}
	if doc.FinderID == nil || *doc.FinderID != requesterID {
		return apperrors.InvalidState("No pending request from this participant")
	}
	if model.SoloStatus(doc.Status) != model.SoloStatusPending {
		return apperrors.InvalidState("Request is no longer pending")
	}

	if err := s.sessions.Reopen(ctx, doc.ID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", doc.ID).Msg("finder request withdrawn, session re-opened")

	s.publishSnapshot(ctx, doc.ID)
	return nil
}

// Cancel is the owner stopping the session. Non-owners have no cancel
// authority; they leave locally without touching the store.
func (s *SessionService) Cancel(ctx context.Context, sessionID, requesterID string) error {
	doc, err := s.fetchSolo(ctx, sessionID)
	if err != nil {
		return err
	}
	if doc.OwnerID != requesterID {
		return apperrors.NotTheOwner()
	}
	if model.SoloStatus(doc.Status).Terminal() {
		return apperrors.SessionTerminal()
	}

	if err := s.sessions.MarkCancelled(ctx, doc.ID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", doc.ID).Msg("session cancelled by owner")

	s.publishSnapshot(ctx, doc.ID)
	s.publishEnded(ctx, doc.ID, "cancelled")
	return nil
}

// Snapshot returns the current feed view of a session, with expiry folded
// into the status.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (model.Snapshot, error) {
	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return model.Snapshot{}, apperrors.Database(err)
	}
	if doc == nil {
		return model.Snapshot{}, apperrors.SessionNotFound()
	}
	return doc.Snapshot(time.Now()), nil
}

// Friends lists reconnection shortcuts, most recent first.
func (s *SessionService) Friends(ctx context.Context, userID string) ([]model.Friend, error) {
	friends, err := s.friends.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return friends, nil
}

func (s *SessionService) fetchSolo(ctx context.Context, sessionID string) (*model.SessionDoc, error) {
	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if doc == nil || doc.Kind != model.SessionKindSolo {
		return nil, apperrors.SessionNotFound()
	}
	return doc, nil
}

func (s *SessionService) fetchGroup(ctx context.Context, sessionID string) (*model.SessionDoc, error) {
	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if doc == nil || doc.Kind != model.SessionKindGroup {
		return nil, apperrors.SessionNotFound()
	}
	return doc, nil
}

// publishSnapshot re-reads the doc and publishes its full current state.
// Feed delivery is best-effort: a publish failure never fails the mutation
// that triggered it.
func (s *SessionService) publishSnapshot(ctx context.Context, sessionID string) *model.SessionDoc {
	doc, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil || doc == nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to load session for feed publish")
		return nil
	}
	if err := s.publisher.Publish(ctx, sessionID, feed.SnapshotEvent(doc.Snapshot(time.Now()))); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish snapshot")
	}
	return doc
}

func (s *SessionService) publishEnded(ctx context.Context, sessionID, reason string) {
	if err := s.publisher.Publish(ctx, sessionID, feed.EndedEvent(sessionID, reason)); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to publish ended event")
	}
}

func (s *SessionService) publishSolo(ctx context.Context, sessionID string) (*model.SoloSession, error) {
	doc := s.publishSnapshot(ctx, sessionID)
	if doc == nil {
		return nil, apperrors.SessionNotFound()
	}
	solo, ok := doc.Solo()
	if !ok {
		return nil, apperrors.SessionNotFound()
	}
	return solo, nil
}
