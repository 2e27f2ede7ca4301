package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// CreateGroup opens a group session. Unlike solo pairing there is no
// per-member approval step: the session starts active and empty, and members
// join unilaterally with the code.
func (s *SessionService) CreateGroup(ctx context.Context, leaderID, leaderName string) (*model.GroupSession, error) {
	if leaderID == "" || leaderName == "" {
		return nil, apperrors.MissingRequired("leader identity")
	}

	code, err := s.freshCode(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	doc, err := s.sessions.Create(ctx, model.CreateSessionParams{
		Code:       code,
		Kind:       model.SessionKindGroup,
		Status:     string(model.GroupStatusActive),
		OwnerID:    leaderID,
		OwnerName:  leaderName,
		MaxMembers: config.MaxGroupMembers,
		ExpiresAt:  time.Now().Add(config.GroupSessionTTL),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("code", code).
		Str("leaderId", leaderID).
		Msg("group session created")

	group, _ := doc.Group()
	return group, nil
}

// JoinGroup resolves a code to a live group and appends the joiner to the
// member list. Rejoining is an idempotent success; capacity overruns are
// rejected, never queued.
func (s *SessionService) JoinGroup(ctx context.Context, code, userID, userName string) (*model.GroupSession, error) {
	if userID == "" || userName == "" {
		return nil, apperrors.MissingRequired("member identity")
	}

	normalized, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	doc, err := s.sessions.FindGroupByCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if doc == nil {
		log.Warn().Str("code", normalized).Msg("group code not found")
		return nil, apperrors.CodeNotFound()
	}
	if doc.Expired(time.Now()) {
		return nil, apperrors.CodeExpired()
	}
	if doc.OwnerID == userID {
		return nil, apperrors.SelfJoinRejected()
	}
	if doc.Members.Contains(userID) {
		// Already joined: idempotent success, no mutation.
		group, _ := doc.Group()
		return group, nil
	}
	if len(doc.Members) >= doc.MaxMembers {
		return nil, apperrors.GroupFull()
	}

	joined, err := s.sessions.AppendMember(ctx, doc.ID, model.Member{
		ID:       userID,
		Name:     userName,
		JoinedAt: time.Now(),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !joined {
		// Lost the race to the last slot, or the session just ended.
		return nil, apperrors.GroupFull()
	}

	log.Info().
		Str("sessionId", doc.ID).
		Str("memberId", userID).
		Msg("member joined group")

	return s.publishGroup(ctx, doc.ID)
}

// EndGroup is leader-only and terminal. All members observe the cancelled
// snapshot via the feed and tear down client-side.
func (s *SessionService) EndGroup(ctx context.Context, sessionID, requesterID string) error {
	doc, err := s.fetchGroup(ctx, sessionID)
	if err != nil {
		return err
	}
	if doc.OwnerID != requesterID {
		return apperrors.NotTheLeader()
	}
	if model.GroupStatus(doc.Status).Terminal() {
		return apperrors.SessionTerminal()
	}

	if err := s.sessions.MarkCancelled(ctx, doc.ID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", doc.ID).Msg("group session ended by leader")

	s.publishSnapshot(ctx, doc.ID)
	s.publishEnded(ctx, doc.ID, "cancelled")
	return nil
}

func (s *SessionService) publishGroup(ctx context.Context, sessionID string) (*model.GroupSession, error) {
	doc := s.publishSnapshot(ctx, sessionID)
	if doc == nil {
		return nil, apperrors.SessionNotFound()
	}
	group, ok := doc.Group()
	if !ok {
		return nil, apperrors.SessionNotFound()
	}
	return group, nil
}
