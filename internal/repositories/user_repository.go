package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chatrelay/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence.
type UserRepository interface {
	Upsert(ctx context.Context, id, username, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetOnline(ctx context.Context, id string) error
	SetOffline(ctx context.Context, id string, lastSeen time.Time) error
	ListAll(ctx context.Context) ([]models.User, error)
}

// UserRepo is the sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, isonline, lastseen, created_at, updated_at`

// Upsert mirrors an identity-provider account into storage. Exactly one row
// per identity: a repeat registration refreshes username and email only.
func (r *UserRepo) Upsert(ctx context.Context, id, username, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `INSERT INTO users (id, username, email)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, updated_at = NOW()
        RETURNING `+userColumns, id, username, email)
	return user, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SetOnline marks the user online and clears lastseen. Online and lastseen are
// mutually exclusive in meaning.
func (r *UserRepo) SetOnline(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET isonline = TRUE, lastseen = NULL, updated_at = NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetOffline marks the user offline and stamps lastseen.
func (r *UserRepo) SetOffline(ctx context.Context, id string, lastSeen time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET isonline = FALSE, lastseen = $2, updated_at = NOW() WHERE id=$1`, id, lastSeen)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListAll returns every user row, ordered by username for stable snapshots.
func (r *UserRepo) ListAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username ASC, id ASC`)
	return users, err
}

func checkAffected(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
