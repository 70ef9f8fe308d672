package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/entity"
)

// Repo stores rate-limit windows in the rate_limits table.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable creates the rate_limits table if it does not already exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS rate_limits (
  key TEXT PRIMARY KEY,
  count INT NOT NULL,
  reset_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_reset_at ON rate_limits(reset_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Hit counts one request against key in a single statement: an absent or
// expired window restarts at 1 with reset_at = now+window, a live one is
// incremented. Concurrent hits on the same key serialize on the row.
func (r *Repo) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (entity.Record, error) {
	const q = `INSERT INTO rate_limits (key, count, reset_at) VALUES ($1, 1, $3)
ON CONFLICT (key) DO UPDATE SET
  count = CASE WHEN rate_limits.reset_at <= $2 THEN 1 ELSE rate_limits.count + 1 END,
  reset_at = CASE WHEN rate_limits.reset_at <= $2 THEN EXCLUDED.reset_at ELSE rate_limits.reset_at END
RETURNING key, count, reset_at`
	var rec entity.Record
	err := r.db.GetContext(ctx, &rec, q, key, now, now.Add(window))
	return rec, err
}

// Sweep deletes windows that ended at or before now and returns how many went.
func (r *Repo) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE reset_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
