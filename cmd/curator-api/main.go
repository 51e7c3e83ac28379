package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"curator/internal/adapter/repo"
	"curator/internal/http/handlers"
	"curator/internal/http/httpapi"
	"curator/internal/infra"
	"curator/internal/jobs"
	"curator/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	jobRepo := repo.NewJobRepository(dbpool)
	captionRepo := repo.NewCaptionRepository(dbpool)
	setRepo := repo.NewCaptionSetRepository(dbpool)
	fileRepo := repo.NewFileRepository(dbpool)

	ollama, err := vision.NewClient(vision.BackendOllama, vision.Options{
		BaseURL:   cfg.OllamaBaseURL,
		Timeout:   cfg.VisionTimeout,
		MaxTokens: cfg.VisionMaxTokens,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build ollama client")
	}
	lmstudio, err := vision.NewClient(vision.BackendLMStudio, vision.Options{
		BaseURL:   cfg.LMStudioBaseURL,
		Timeout:   cfg.VisionTimeout,
		MaxTokens: cfg.VisionMaxTokens,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build lmstudio client")
	}
	clients := map[vision.Backend]vision.Client{
		vision.BackendOllama:   ollama,
		vision.BackendLMStudio: lmstudio,
	}
	defaultBackend := vision.Backend(cfg.VisionBackend)

	manager := jobs.NewManager(ctx, jobs.ManagerDeps{
		Jobs:        jobRepo,
		Captions:    captionRepo,
		CaptionSets: setRepo,
		Files:       fileRepo,
		Backends: map[vision.Backend]vision.Captioner{
			vision.BackendOllama:   ollama,
			vision.BackendLMStudio: lmstudio,
		},
		DefaultBackend: defaultBackend,
		DefaultModel:   cfg.VisionModel,
		Logger:         logger,
	}, jobs.Options{
		Workers:      cfg.CaptionWorkers,
		MaxAttempts:  cfg.VisionMaxRetries,
		RetryBackoff: cfg.CaptionRetryBackoff,
	})

	// Jobs cut short by the previous process stay parked until a human
	// resumes them.
	if parked, err := manager.RecoverInterrupted(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to recover interrupted jobs")
	} else if parked > 0 {
		logger.Warn().Int("parked", parked).Msg("interrupted caption jobs await resume")
	}

	models := func(ctx context.Context) []vision.ModelAvailability {
		return vision.AvailableModels(ctx, defaultBackend, clients[defaultBackend])
	}
	app := handlers.NewApp(manager, models, logger)
	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	stopSignals()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
