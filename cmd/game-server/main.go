package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"holdem-casino/internal/config"
	"holdem-casino/internal/game"
	"holdem-casino/internal/hub"
	"holdem-casino/internal/ledger"
	"holdem-casino/internal/logging"
	"holdem-casino/internal/room"
	"holdem-casino/internal/store"
	"holdem-casino/internal/ws"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.EnsureDefaultRooms(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("ensure default rooms failed")
	}

	led := ledger.New(st, log.Logger)
	h := hub.New(led, st, log.Logger, room.Options{})
	rooms, err := st.ListRooms(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("list rooms failed")
	}
	for _, rm := range rooms {
		h.AddRoom(roomSpec(rm, cfg))
	}
	log.Info().Int("rooms", len(rooms)).Msg("rooms started")

	sock := ws.NewServer(h, led, log.Logger)
	r := newRouter(st, cfg, sock)
	logRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
		h.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func roomSpec(rm store.Room, cfg config.ServerConfig) hub.RoomSpec {
	return hub.RoomSpec{
		RoomID: rm.ID,
		Config: game.TableConfig{
			SmallBlind: rm.SmallBlindCC,
			BigBlind:   rm.BigBlindCC,
			MaxSeats:   rm.MaxSeats,
			TurnTime:   time.Duration(cfg.TurnTimeSecs) * time.Second,
			HandGap:    time.Duration(cfg.HandGapSecs) * time.Second,
		},
		MinBuyIn: rm.MinBuyinCC,
		MaxBuyIn: rm.MaxBuyinCC,
	}
}
