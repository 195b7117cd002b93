package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rcwells1879/veilpix-sub000/internal/adapter/repo"
	"github.com/rcwells1879/veilpix-sub000/internal/assetstore"
	"github.com/rcwells1879/veilpix-sub000/internal/http/handlers"
	"github.com/rcwells1879/veilpix-sub000/internal/http/httpapi"
	"github.com/rcwells1879/veilpix-sub000/internal/imagegen"
	"github.com/rcwells1879/veilpix-sub000/internal/infra"
	"github.com/rcwells1879/veilpix-sub000/internal/infra/geoip"
	"github.com/rcwells1879/veilpix-sub000/internal/jobclient"
	"github.com/rcwells1879/veilpix-sub000/internal/middleware"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/gemini"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/qwen"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/seedream"
	"github.com/rcwells1879/veilpix-sub000/internal/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	// Repositories
	anonRepo := repo.NewAnonymousUsageRepository(dbpool)
	creditRepo := repo.NewCreditRepository(dbpool)
	eventRepo := repo.NewUsageEventRepository(dbpool)
	assetRepo := repo.NewTempAssetRepository(dbpool)

	// Usage accounting
	gate := usage.NewGate(anonRepo, creditRepo, cfg.AnonymousQuota, cfg.StartingCredits, logger)
	ledger := usage.NewLedger(anonRepo, creditRepo, eventRepo, cfg.AnonymousQuota, logger)

	// Temporary asset store for URL-based providers
	assets, err := assetstore.NewStore(ctx, assetstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		URLTTL:    cfg.AssetTTL,
	}, assetRepo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect object store")
	}

	// Provider adapters
	geminiProvider := imagegen.NewGeminiProvider(gemini.NewClient(gemini.Options{
		BaseURL: cfg.Gemini.BaseURL,
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
	}), cfg.Gemini.CreditCost)

	seedreamJobs := jobclient.NewClient(jobclient.Config{
		Provider:    "seedream",
		Interval:    cfg.Seedream.PollInterval,
		MaxAttempts: cfg.Seedream.PollAttempts,
	}, logger)
	seedreamProvider := imagegen.NewSeedreamProvider(seedream.NewClient(seedream.Options{
		BaseURL: cfg.Seedream.BaseURL,
		APIKey:  cfg.Seedream.APIKey,
		Model:   cfg.Seedream.Model,
	}), seedreamJobs, cfg.Seedream.CreditCost)

	qwenJobs := jobclient.NewClient(jobclient.Config{
		Provider:    "qwen",
		Interval:    cfg.Qwen.PollInterval,
		MaxAttempts: cfg.Qwen.PollAttempts,
	}, logger)
	qwenProvider := imagegen.NewQwenProvider(qwen.NewClient(qwen.Options{
		BaseURL: cfg.Qwen.BaseURL,
		APIKey:  cfg.Qwen.APIKey,
		Model:   cfg.Qwen.Model,
	}), qwenJobs, cfg.Qwen.CreditCost)

	orchestrator := imagegen.NewOrchestrator(gate, ledger, assets, logger,
		geminiProvider, seedreamProvider, qwenProvider)

	// Country enrichment is optional; without a database usage events
	// simply have no country.
	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(orchestrator, gate, ledger, creditRepo, cfg, logger)
	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	// In-process sweep reclaims temporary uploads whose per-request
	// cleanup never ran.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go assetstore.NewSweeper(assets, cfg.AssetTTL, cfg.SweepInterval, logger).Run(sweepCtx)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
