package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// UsageEventRepositoryPG appends immutable usage-log entries.
type UsageEventRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageEventRepository creates a new UsageEventRepositoryPG.
func NewUsageEventRepository(pool *pgxpool.Pool) *UsageEventRepositoryPG {
	return &UsageEventRepositoryPG{pool: pool}
}

// Insert writes one usage event. The id is generated here when absent.
func (r *UsageEventRepositoryPG) Insert(ctx context.Context, ev domain.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO usage_events (id, user_id, session_id, provider, kind, success, latency_ms, country, fail_stage, created_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NOW());
`, ev.ID, ev.UserID, ev.SessionID, ev.Provider, string(ev.Kind), ev.Success, ev.LatencyMS, ev.Country, ev.FailStage)
	return err
}
