package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	"github.com/darry-Jnr/codemap-server-go/internal/database"
	"github.com/darry-Jnr/codemap-server-go/internal/feed"
	"github.com/darry-Jnr/codemap-server-go/internal/handler"
	"github.com/darry-Jnr/codemap-server-go/internal/jobs"
	"github.com/darry-Jnr/codemap-server-go/internal/middleware"
	"github.com/darry-Jnr/codemap-server-go/internal/redis"
	"github.com/darry-Jnr/codemap-server-go/internal/repository"
	"github.com/darry-Jnr/codemap-server-go/internal/service"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	friendRepo := repository.NewFriendRepository(db.DB)
	arrivalRepo := repository.NewArrivalRepository(db.DB)

	broker := feed.NewBroker(redisClient)
	defer broker.Close()

	sessionService := service.NewSessionService(db, sessionRepo, friendRepo, arrivalRepo, broker)

	identityMiddleware := middleware.NewIdentityMiddleware()
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.LifecycleRateLimit)

	sessionHandler := handler.NewSessionHandler(sessionService, rateLimitMiddleware.Handler)
	eventsHandler := handler.NewEventsHandler(broker, sessionService)
	channelHandler := handler.NewChannelHandler(broker, sessionService)
	friendsHandler := handler.NewFriendsHandler(sessionService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"timestamp":   time.Now().UnixMilli(),
			"feedClients": broker.TotalClients(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)

		r.Route("/sessions", func(r chi.Router) {
			// Streaming endpoints sit outside the request timeout.
			r.Get("/{sessionID}/events", eventsHandler.ServeHTTP)
			r.Get("/{sessionID}/channel", channelHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
				r.Mount("/", sessionHandler.Routes())
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/friends", friendsHandler.Routes())
		})
	})

	sweepJob := jobs.NewSweepJob(sessionRepo, broker, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
