package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shortreel/internal/adapter/repo"
	"shortreel/internal/assemble"
	"shortreel/internal/http/handlers"
	httpapi "shortreel/internal/http/httpapi"
	"shortreel/internal/infra"
	"shortreel/internal/media"
	"shortreel/internal/providers"
	"shortreel/internal/providers/image"
	videoprovider "shortreel/internal/providers/video"
	"shortreel/internal/service"
	"shortreel/internal/storage"
	"shortreel/internal/tasks"
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

	if err := infra.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}

	providerClient := &http.Client{Timeout: cfg.ProviderTimeout}
	localizer := media.NewLocalizer(store, cfg.FilesBaseURL, providerClient, logger)

	configRepo := repo.NewProviderConfigRepository(dbpool)
	resolver, err := providers.NewResolver(configRepo, cfg.ConfigCacheTTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init provider resolver")
	}
	defer resolver.Close()

	imageAdapter := image.NewAdapter(image.Options{
		HTTPClient: providerClient,
		Refs:       localizer,
		Logger:     logger,
	})
	videoAdapter := videoprovider.NewAdapter(videoprovider.Options{
		HTTPClient: providerClient,
		Images:     localizer,
		Logger:     logger,
	})
	merger := assemble.NewMerger(assemble.MergerOptions{
		Store:      store,
		Localizer:  localizer,
		Logger:     logger,
		FFmpegPath: cfg.FFmpegPath,
	})

	ledger := tasks.NewLedger(repo.NewTaskRepository(dbpool), logger)
	executor := tasks.NewExecutor(cfg.MaxWorkers, logger)

	imageService := service.NewImageService(
		repo.NewImageGenerationRepository(dbpool), ledger, executor, resolver, imageAdapter, localizer, logger)
	videoService := service.NewVideoService(
		repo.NewVideoGenerationRepository(dbpool), ledger, executor, resolver, videoAdapter, localizer, logger)
	mergeService := service.NewMergeService(
		repo.NewVideoMergeRepository(dbpool), ledger, executor, merger, localizer, logger)

	app := handlers.NewApp(imageService, videoService, mergeService, ledger, logger)
	router := httpapi.NewRouter(app, store.BasePath())
	server := infra.NewHTTPServer(cfg, router)

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
	// Let in-flight generations finish writing their terminal states.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := executor.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("background jobs did not drain in time")
	}
	logger.Info().Msg("server stopped")
}
