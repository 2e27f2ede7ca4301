package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// FriendRepository stores reconnection shortcuts. Symmetric writes for both
// parties happen in the service layer inside one transaction.
type FriendRepository interface {
	Upsert(ctx context.Context, userID, counterpartID, displayName string, connectedAt time.Time) error
	ListByUser(ctx context.Context, userID string) ([]model.Friend, error)
	WithTx(tx *sqlx.Tx) FriendRepository
}

type friendRepo struct {
	db sessionDB
}

func NewFriendRepository(db *sqlx.DB) FriendRepository {
	return &friendRepo{db: db}
}

func (r *friendRepo) WithTx(tx *sqlx.Tx) FriendRepository {
	return &friendRepo{db: tx}
}

func (r *friendRepo) Upsert(ctx context.Context, userID, counterpartID, displayName string, connectedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friends (user_id, counterpart_id, display_name, last_connected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, counterpart_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			last_connected_at = EXCLUDED.last_connected_at
	`, userID, counterpartID, displayName, connectedAt)
	return err
}

func (r *friendRepo) ListByUser(ctx context.Context, userID string) ([]model.Friend, error) {
	var friends []model.Friend
	err := r.db.SelectContext(ctx, &friends, `
		SELECT user_id, counterpart_id, display_name, last_connected_at
		FROM friends
		WHERE user_id = $1
		ORDER BY last_connected_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return friends, nil
}
