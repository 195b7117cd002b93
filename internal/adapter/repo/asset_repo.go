package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// TempAssetRepositoryPG tracks temporary asset metadata so the sweeper
// can find objects whose per-request cleanup never ran.
type TempAssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTempAssetRepository creates a new TempAssetRepositoryPG.
func NewTempAssetRepository(pool *pgxpool.Pool) *TempAssetRepositoryPG {
	return &TempAssetRepositoryPG{pool: pool}
}

// Insert records an uploaded asset.
func (r *TempAssetRepositoryPG) Insert(ctx context.Context, asset domain.TemporaryAsset) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO temp_assets (object_key, owner_tag, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (object_key) DO NOTHING;
`, asset.Key, asset.Owner)
	return err
}

// Delete removes the metadata row for an asset.
func (r *TempAssetRepositoryPG) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM temp_assets WHERE object_key = $1;`, key)
	return err
}

// ListOlderThan returns assets created before the horizon, oldest first.
func (r *TempAssetRepositoryPG) ListOlderThan(ctx context.Context, horizon time.Time, limit int) ([]domain.TemporaryAsset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT object_key, owner_tag, created_at
FROM temp_assets
WHERE created_at < $1
ORDER BY created_at
LIMIT $2;
`, horizon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.TemporaryAsset
	for rows.Next() {
		var a domain.TemporaryAsset
		if err := rows.Scan(&a.Key, &a.Owner, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
