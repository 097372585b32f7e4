package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"propvid/internal/adapter/repo"
	"propvid/internal/http/handlers"
	httpapi "propvid/internal/http/httpapi"
	"propvid/internal/infra"
	"propvid/internal/infra/geoip"
	"propvid/internal/middleware"
	"propvid/internal/notify"
	"propvid/internal/render"
	"propvid/internal/storage"
	"propvid/internal/video"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply database schema")
	}

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	geoResolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	if geoResolver != nil {
		defer geoResolver.Close()
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	uploader := storage.NewImageUploader(store)

	renderClient, err := render.NewClient(render.Options{
		WebhookURL: cfg.RenderHookURL,
		HTTPClient: &http.Client{},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize render client")
	}

	svc := video.NewService(video.Options{
		Videos:          repo.NewVideoRepository(dbpool),
		Progress:        repo.NewGenerationRepository(dbpool),
		Renderer:        renderClient,
		Uploader:        uploader,
		Publisher:       notify.NewPublisher(redisClient, logger),
		Logger:          logger,
		CallbackBaseURL: cfg.PublicBaseURL,
		MaxRetries:      cfg.MaxRetries,
		AttemptTimeout:  cfg.AttemptTimeout,
	})

	app := handlers.NewApp(handlers.AppOptions{
		Service:      svc,
		Uploader:     uploader,
		Subscriber:   notify.NewSubscriber(redisClient),
		Logger:       logger,
		ProxyTimeout: cfg.ProxyTimeout,
	})

	var lookup middleware.CountryLookup
	if geoResolver != nil {
		lookup = geoResolver.CountryCode
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		App:             app,
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       cfg.StoragePath,
	})

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
	logger.Info().Msg("server stopped")
}
