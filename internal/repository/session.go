package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/darry-Jnr/codemap-server-go/internal/model"
)

// SessionRepository persists session documents. Mutations are partitioned by
// participant role: each writer touches only the columns its role owns, so
// concurrent writers never need locking beyond single-statement atomicity.
type SessionRepository interface {
	Create(ctx context.Context, params model.CreateSessionParams) (*model.SessionDoc, error)
	FindByID(ctx context.Context, id string) (*model.SessionDoc, error)
	// FindSoloByCode matches only waiting solo sessions; an expired match is
	// still returned so callers can distinguish CODE_EXPIRED from CODE_NOT_FOUND.
	FindSoloByCode(ctx context.Context, code string) (*model.SessionDoc, error)
	FindGroupByCode(ctx context.Context, code string) (*model.SessionDoc, error)

	MarkPending(ctx context.Context, id, finderID, finderName string) error
	// Reopen clears a rejected or withdrawn finder slot: pending -> waiting.
	Reopen(ctx context.Context, id string) error
	MarkActive(ctx context.Context, id string) error
	MarkDeclined(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string) error

	// AppendMember atomically joins a group while it is live and under
	// capacity and the member is not already present. Returns false when the
	// guard failed.
	AppendMember(ctx context.Context, id string, member model.Member) (bool, error)

	// Location writes return false once the session is no longer live; the
	// store rejects writes after expiry or a terminal status.
	SetOwnerLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error)
	SetFinderLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error)
	SetMemberLocation(ctx context.Context, id, memberID string, p model.GeoPoint) (bool, error)

	// RecordArrival is write-once per session. Returns false when an arrival
	// has already been recorded.
	RecordArrival(ctx context.Context, id, name string, at time.Time) (bool, error)

	// SweepExpired marks every expired non-terminal session cancelled and
	// returns the affected ids.
	SweepExpired(ctx context.Context) ([]string, error)

	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.SessionDoc, error) {
	var doc model.SessionDoc
	err := r.db.GetContext(ctx, &doc, `
		INSERT INTO sessions (
			id, code, kind, status, owner_id, owner_name, variant,
			members, max_members, member_locations, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, $8, '{}'::jsonb, $9)
		RETURNING *
	`, uuid.NewString(), params.Code, params.Kind, params.Status,
		params.OwnerID, params.OwnerName, params.Variant,
		params.MaxMembers, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.SessionDoc, error) {
	var doc model.SessionDoc
	err := r.db.GetContext(ctx, &doc, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *sessionRepo) FindSoloByCode(ctx context.Context, code string) (*model.SessionDoc, error) {
	var doc model.SessionDoc
	err := r.db.GetContext(ctx, &doc, `
		SELECT * FROM sessions
		WHERE code = $1
		AND kind = 'solo'
		AND status = 'waiting'
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *sessionRepo) FindGroupByCode(ctx context.Context, code string) (*model.SessionDoc, error) {
	var doc model.SessionDoc
	err := r.db.GetContext(ctx, &doc, `
		SELECT * FROM sessions
		WHERE code = $1
		AND kind = 'group'
		AND status = 'active'
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *sessionRepo) MarkPending(ctx context.Context, id, finderID, finderName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'pending',
			finder_id = $2,
			finder_name = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'waiting'
	`, id, finderID, finderName, time.Now())
	return err
}

func (r *sessionRepo) Reopen(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'waiting',
			finder_id = NULL,
			finder_name = NULL,
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, time.Now())
	return err
}

func (r *sessionRepo) MarkActive(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'active',
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, time.Now())
	return err
}

func (r *sessionRepo) MarkDeclined(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'declined',
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, time.Now())
	return err
}

func (r *sessionRepo) MarkCancelled(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'cancelled',
			updated_at = $2
		WHERE id = $1 AND status NOT IN ('declined', 'cancelled')
	`, id, time.Now())
	return err
}

func (r *sessionRepo) AppendMember(ctx context.Context, id string, member model.Member) (bool, error) {
	data, err := json.Marshal(member)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			members = members || $2::jsonb,
			updated_at = $3
		WHERE id = $1
		AND kind = 'group'
		AND status = 'active'
		AND expires_at > NOW()
		AND jsonb_array_length(members) < max_members
		AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(members) AS m
			WHERE m->>'id' = $4
		)
	`, id, data, time.Now(), member.ID)
	if err != nil {
		return false, err
	}
	return affected(result)
}

func (r *sessionRepo) SetOwnerLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error) {
	return r.setLocationColumn(ctx, "owner_location", id, p)
}

func (r *sessionRepo) SetFinderLocation(ctx context.Context, id string, p model.GeoPoint) (bool, error) {
	return r.setLocationColumn(ctx, "finder_location", id, p)
}

func (r *sessionRepo) setLocationColumn(ctx context.Context, column, id string, p model.GeoPoint) (bool, error) {
	point := model.NullGeoPoint{Point: p, Valid: true}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			`+column+` = $2,
			updated_at = $3
		WHERE id = $1
		AND status = 'active'
		AND expires_at > NOW()
	`, id, point, time.Now())
	if err != nil {
		return false, err
	}
	return affected(result)
}

func (r *sessionRepo) SetMemberLocation(ctx context.Context, id, memberID string, p model.GeoPoint) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			member_locations = jsonb_set(COALESCE(member_locations, '{}'::jsonb), ARRAY[$2], $3::jsonb, true),
			updated_at = $4
		WHERE id = $1
		AND kind = 'group'
		AND status = 'active'
		AND expires_at > NOW()
		AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(members) AS m
			WHERE m->>'id' = $2
		)
	`, id, memberID, data, time.Now())
	if err != nil {
		return false, err
	}
	return affected(result)
}

func (r *sessionRepo) RecordArrival(ctx context.Context, id, name string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			arrived_name = $2,
			arrived_at = $3,
			updated_at = $3
		WHERE id = $1
		AND arrived_name IS NULL
		AND status = 'active'
		AND expires_at > NOW()
	`, id, name, at)
	if err != nil {
		return false, err
	}
	return affected(result)
}

func (r *sessionRepo) SweepExpired(ctx context.Context) ([]string, error) {
	type row struct {
		ID string `db:"id"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		UPDATE sessions SET
			status = 'cancelled',
			updated_at = NOW()
		WHERE expires_at < NOW()
		AND status NOT IN ('declined', 'cancelled')
		RETURNING id
	`)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
