package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

const userColumns = `id, display_name, email, avatar_url, stripe_account_id, onboarding_status,
	onboarding_completed_at, account_creation_started_at, version, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  email CITEXT NOT NULL UNIQUE,
  avatar_url TEXT,
  stripe_account_id TEXT,
  onboarding_status TEXT NOT NULL DEFAULT '',
  onboarding_completed_at TIMESTAMPTZ,
  account_creation_started_at TIMESTAMPTZ,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT users_onboarding_needs_account CHECK (onboarding_status = '' OR stripe_account_id IS NOT NULL),
  CONSTRAINT users_onboarding_status_known CHECK (onboarding_status IN ('', 'pending', 'completed', 'failed'))
);
CREATE INDEX IF NOT EXISTS idx_users_stripe_account_id ON users(stripe_account_id);
CREATE INDEX IF NOT EXISTS idx_users_account_creation_started_at ON users(account_creation_started_at)
  WHERE account_creation_started_at IS NOT NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row. ID must already be set.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, display_name, email, avatar_url, version)
		VALUES (:id, :display_name, :email, :avatar_url, 1)
		RETURNING version, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return errors.New("no row returned")
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// ReserveAccountCreation stamps the creation marker if the row is still at
// expectedVersion. false means another writer got there first.
func (r *UserRepo) ReserveAccountCreation(ctx context.Context, id string, expectedVersion int64, at time.Time) (bool, error) {
	const q = `UPDATE users SET account_creation_started_at=$3, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$2 RETURNING 1`
	return r.updateReturning(ctx, q, id, expectedVersion, at)
}

// ReleaseAccountCreation clears the marker after a failed provider call.
func (r *UserRepo) ReleaseAccountCreation(ctx context.Context, id string) error {
	const q = `UPDATE users SET account_creation_started_at=NULL, version=version+1, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// AttachAccount links a freshly created sub-account: status becomes pending and
// the creation marker is cleared.
func (r *UserRepo) AttachAccount(ctx context.Context, id, accountID string) error {
	const q = `UPDATE users SET stripe_account_id=$2, onboarding_status='pending', onboarding_completed_at=NULL,
		account_creation_started_at=NULL, version=version+1, updated_at=NOW() WHERE id=$1 RETURNING 1`
	ok, err := r.updateReturning(ctx, q, id, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionOnboarding moves onboarding_status from -> to. completed also
// records the completion time. false means the row was not in `from`.
func (r *UserRepo) TransitionOnboarding(ctx context.Context, id string, from, to entity.OnboardingStatus, at time.Time) (bool, error) {
	const q = `UPDATE users SET onboarding_status=$3,
		onboarding_completed_at = CASE WHEN $3 = 'completed' THEN $4::timestamptz ELSE onboarding_completed_at END,
		version=version+1, updated_at=NOW()
		WHERE id=$1 AND onboarding_status=$2 AND stripe_account_id IS NOT NULL RETURNING 1`
	return r.updateReturning(ctx, q, id, string(from), string(to), at)
}

// ListStaleReservations returns users whose creation marker is older than before.
func (r *UserRepo) ListStaleReservations(ctx context.Context, before time.Time) ([]*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users
		WHERE account_creation_started_at IS NOT NULL AND account_creation_started_at < $1
		ORDER BY account_creation_started_at`
	var out []*entity.User
	if err := r.db.SelectContext(ctx, &out, q, before); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks the database is reachable.
func (r *UserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *UserRepo) updateReturning(ctx context.Context, q string, args ...any) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, q, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
