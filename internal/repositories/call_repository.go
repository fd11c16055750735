package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtc-service/internal/models"
)

var ErrCallNotFound = errors.New("call not found")

// CallRepository persists call records; the in-memory registry is only a cache
// over these rows.
type CallRepository interface {
	CreateCall(ctx context.Context, call models.Call) error
	SaveCall(ctx context.Context, call models.Call) error
	GetCall(ctx context.Context, callID uuid.UUID) (models.Call, error)
	GetCallByLinkToken(ctx context.Context, token string) (models.Call, error)
	ListCallsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error)
}

// CallRepo is a sqlx implementation of CallRepository.
type CallRepo struct {
	db *sqlx.DB
}

// NewCallRepo constructs a CallRepo.
func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

// CreateCall inserts a new call record.
func (r *CallRepo) CreateCall(ctx context.Context, call models.Call) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (id, caller_id, receiver_id, type, status, started_at, link_token)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		call.ID, call.CallerID, call.ReceiverID, call.Type, call.Status, call.StartedAt, call.LinkToken)
	return err
}

// SaveCall writes the mutable portion of a call record.
func (r *CallRepo) SaveCall(ctx context.Context, call models.Call) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status=$2, answered_at=$3, ended_at=$4, duration_seconds=$5,
            audio_muted=$6, video_muted=$7, recording=$8, active=$9 WHERE id=$1`,
		call.ID, call.Status, call.AnsweredAt, call.EndedAt, call.DurationSeconds,
		call.AudioMuted, call.VideoMuted, call.Recording, call.Active)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrCallNotFound
	}
	return nil
}

// GetCall fetches a call by id.
func (r *CallRepo) GetCall(ctx context.Context, callID uuid.UUID) (models.Call, error) {
	var call models.Call
	err := r.db.GetContext(ctx, &call, `SELECT * FROM calls WHERE id=$1`, callID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Call{}, ErrCallNotFound
	}
	return call, err
}

// GetCallByLinkToken resolves a shareable call link.
func (r *CallRepo) GetCallByLinkToken(ctx context.Context, token string) (models.Call, error) {
	var call models.Call
	err := r.db.GetContext(ctx, &call, `SELECT * FROM calls WHERE link_token=$1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Call{}, ErrCallNotFound
	}
	return call, err
}

// ListCallsForUser returns recent call history for either side of a call.
func (r *CallRepo) ListCallsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var calls []models.Call
	err := r.db.SelectContext(ctx, &calls,
		`SELECT * FROM calls WHERE (caller_id=$1 OR receiver_id=$1) AND active ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	return calls, err
}
