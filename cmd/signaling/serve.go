package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mossy-p/meeting-signaling/config"
	"github.com/mossy-p/meeting-signaling/internal/handlers"
	"github.com/mossy-p/meeting-signaling/internal/redis"
	"github.com/mossy-p/meeting-signaling/internal/relay"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port (PORT)")
	_ = opts.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info().Str("module", "main").Str("redis", cfg.Redis.Addr()).Msg("Redis connection established")

	store := redis.NewMembershipStore(client, cfg.StoreTimeout, cfg.MembershipTTL)
	registry := relay.NewRegistry()
	router := relay.NewRouter(registry, store)
	lifecycle := relay.NewLifecycle(registry, store, router)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	signaling := handlers.NewSignalingHandler(lifecycle, router, cfg.WSConfig)
	rooms := handlers.NewRoomsHandler(router, cfg.ICEServers())
	engine := handlers.SetupRouter(cfg.AllowedOrigins, store, rooms, signaling)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("module", "main").Str("addr", srv.Addr).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Str("module", "main").Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
	}
	// Hijacked websocket connections are not covered by srv.Shutdown.
	if err := signaling.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("sessions did not drain in time")
	}
	log.Info().Str("module", "main").Int("registered", registry.Len()).Msg("Server exited")
	return nil
}
