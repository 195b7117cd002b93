package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// AnonymousUsageRepositoryPG stores per-session free-tier counters in PostgreSQL.
type AnonymousUsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAnonymousUsageRepository creates a new AnonymousUsageRepositoryPG.
func NewAnonymousUsageRepository(pool *pgxpool.Pool) *AnonymousUsageRepositoryPG {
	return &AnonymousUsageRepositoryPG{pool: pool}
}

// Get fetches the counter for a session+IP pair.
func (r *AnonymousUsageRepositoryPG) Get(ctx context.Context, sessionID, ip string) (*domain.AnonymousUsage, error) {
	row := r.pool.QueryRow(ctx, `
SELECT session_id, ip, request_count, created_at
FROM anonymous_usage
WHERE session_id = $1 AND ip = $2;
`, sessionID, ip)

	var u domain.AnonymousUsage
	if err := row.Scan(&u.SessionID, &u.IP, &u.Count, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Increment bumps the counter for a session+IP pair, creating the row
// lazily on first use.
func (r *AnonymousUsageRepositoryPG) Increment(ctx context.Context, sessionID, ip string) (int, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO anonymous_usage (session_id, ip, request_count, created_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (session_id, ip) DO UPDATE
SET request_count = anonymous_usage.request_count + 1
RETURNING request_count;
`, sessionID, ip)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
