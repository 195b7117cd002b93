package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcwells1879/veilpix-sub000/internal/adapter/repo"
	"github.com/rcwells1879/veilpix-sub000/internal/assetstore"
	"github.com/rcwells1879/veilpix-sub000/internal/infra"
)

// One-shot sweep of stale temporary uploads, intended to run as a cron
// job alongside the API's in-process sweeper.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := assetstore.NewStore(ctx, assetstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		URLTTL:    cfg.AssetTTL,
	}, repo.NewTempAssetRepository(dbpool), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect object store")
	}

	removed, err := store.SweepOlderThan(ctx, time.Now().Add(-cfg.AssetTTL))
	if err != nil {
		logger.Fatal().Err(err).Int("removed", removed).Msg("sweep failed")
	}
	logger.Info().Int("removed", removed).Msg("sweep complete")
}
