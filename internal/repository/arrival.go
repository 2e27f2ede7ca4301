package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// ArrivalRepository is the append-only arrival log. The session doc carries
// the write-once arrived fields for point reads; the log backs the feed's
// one-shot arrival events.
type ArrivalRepository interface {
	Append(ctx context.Context, sessionID, name string, at time.Time) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Arrival, error)
	WithTx(tx *sqlx.Tx) ArrivalRepository
}

type arrivalRepo struct {
	db sessionDB
}

func NewArrivalRepository(db *sqlx.DB) ArrivalRepository {
	return &arrivalRepo{db: db}
}

func (r *arrivalRepo) WithTx(tx *sqlx.Tx) ArrivalRepository {
	return &arrivalRepo{db: tx}
}

func (r *arrivalRepo) Append(ctx context.Context, sessionID, name string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_arrivals (session_id, name, at)
		VALUES ($1, $2, $3)
	`, sessionID, name, at)
	return err
}

func (r *arrivalRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Arrival, error) {
	var arrivals []model.Arrival
	err := r.db.SelectContext(ctx, &arrivals, `
		SELECT session_id, name, at
		FROM session_arrivals
		WHERE session_id = $1
		ORDER BY at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return arrivals, nil
}
