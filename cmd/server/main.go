package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/mkrasov/huddle/internal/adapters/http"
	"github.com/mkrasov/huddle/internal/app"
	"github.com/mkrasov/huddle/internal/bridge"
	"github.com/mkrasov/huddle/internal/config"
	"github.com/mkrasov/huddle/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// No connections are accepted before the store answers a ping.
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	connectCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("store connection failed")
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = st.Close(closeCtx)
	}()
	log.Info().Msg("connected to store")

	hub := app.NewHub(st)

	var bm *bridge.Manager
	if cfg.BridgeEnabled {
		client := bridge.NewWhatsmeowClient(cfg.BridgeSessionDir)
		bm = bridge.NewManager(client, bridge.NewAdapter(hub.Router))
		if err := bm.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("bridge start failed")
		}
		defer bm.Close()
	}

	r := router.SetupRouter(ctx, cfg, hub, bm)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Presence and call state is memory-only; clients re-join on restart.
	log.Info().Msg("Server exited")
}
