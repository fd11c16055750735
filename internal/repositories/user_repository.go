package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtc-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository exposes the account reads the realtime core needs plus the
// presence writes it owns.
type UserRepository interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	SetOnline(ctx context.Context, userID uuid.UUID, online bool) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, active, online, last_seen FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SetOnline flips presence state and stamps last_seen.
func (r *UserRepo) SetOnline(ctx context.Context, userID uuid.UUID, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET online=$2, last_seen=$3 WHERE id=$1`, userID, online, time.Now().UTC())
	return err
}
