package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gameshowlab/podium/internal/config"
	"github.com/gameshowlab/podium/internal/events"
	"github.com/gameshowlab/podium/internal/game"
	"github.com/gameshowlab/podium/internal/httpapi"
	"github.com/gameshowlab/podium/internal/hub"
	"github.com/gameshowlab/podium/internal/store"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("PODIUM_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open session store")
	}
	defer st.Close()

	mirror, err := openMirror(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event mirror")
	}
	defer mirror.Close()

	h := hub.New(hub.DefaultConfig())

	coordCfg := game.DefaultConfig()
	coordCfg.UnlockAfter = cfg.Signal.UnlockAfter()
	coord := game.New(coordCfg, st, h, mirror)
	h.SetHandler(coord)

	go h.Start(ctx)

	// Re-adopt a current session persisted by a previous run, if any.
	if code, err := coord.RestoreSession(ctx); err == nil {
		log.Info().Str("code", code).Msg("restored previous session")
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	api := httpapi.New(coord, httpapi.AdminCreds{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
	})
	api.RegisterRoutes(mux)

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: allowedOrigins(cfg.Server.AllowedOrigins),
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: corsHandler.Handler(mux),
	}

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("store", cfg.Store.Backend).
			Bool("nats_mirror", cfg.NATS.Enabled).
			Msg("podium coordinator listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file", "":
		return store.NewFileStore(cfg.File.Path), nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Postgres.DSN())
	default:
		return nil, errors.New("unknown store backend: " + cfg.Backend)
	}
}

func openMirror(cfg config.NATSConfig) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	natsCfg := events.DefaultNATSConfig()
	natsCfg.URL = cfg.URL
	if cfg.SubjectPrefix != "" {
		natsCfg.SubjectPrefix = cfg.SubjectPrefix
	}
	return events.NewNATSPublisher(natsCfg)
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
