package main

import (
	"battle-arena/internal/cache"
	"battle-arena/internal/config"
	"battle-arena/internal/constants"
	fxmodules "battle-arena/internal/fx"
	"battle-arena/internal/identity"
	"battle-arena/internal/middleware"
	"battle-arena/internal/pubsub"
	"battle-arena/internal/server"
	"battle-arena/internal/service"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	flowServer *server.FlowServer,
	flow *service.Flow,
	bus *pubsub.Bus,
	store cache.Store,
	self identity.Identity,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID(logger))
	r.Use(c.Handler)
	r.Mount("/", flowServer.Routes())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: r,
	}

	runCtx, stopRun := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if self.Expired(time.Now()) {
				logger.Warn().Str("user_id", self.UserID).Time("expires_at", self.ExpiresAt).Msg("access token already expired")
			}

			go flow.Run(runCtx)
			go func() {
				if err := flow.Resume(runCtx); err != nil {
					logger.Error().Err(err).Msg("failed to resume tracked match")
				}
			}()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			stopRun()
			flow.Close()
			bus.Close()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing cache store")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
