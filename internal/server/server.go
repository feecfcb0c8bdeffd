package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"freefall/internal/cache"
	"freefall/internal/database"
	"freefall/internal/game"
	"freefall/internal/prices"
)

type FiberServer struct {
	*fiber.App

	db     database.Service
	store  *database.Store
	cache  cache.Service
	prices *prices.Client
	engine *game.Engine
	hub    *game.Hub
	log    zerolog.Logger
}

func New(log zerolog.Logger) *FiberServer {
	db := database.New()
	store := database.NewStore(db.Pool(), log)

	cacheSvc := cache.New()
	if cacheSvc == nil {
		log.Warn().Msg("redis unavailable, snapshot and price caches disabled")
	}

	priceClient := prices.New(cacheSvc, log)
	hub := game.NewHub(log)

	var snapshots game.SnapshotCache
	if cacheSvc != nil {
		snapshots = cacheSvc
	}
	engine := game.NewEngine(store, priceClient, hub, snapshots, log, game.Config{})

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "freefall",
			AppName:       "freefall",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:     db,
		store:  store,
		cache:  cacheSvc,
		prices: priceClient,
		engine: engine,
		hub:    hub,
		log:    log.With().Str("component", "server").Logger(),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	if err := engine.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("engine start failed")
	}

	return server
}

// Shutdown stops the round engine first so no new events are produced, then
// closes the backing connections.
func (s *FiberServer) Shutdown() error {
	s.log.Info().Msg("shutting down")

	if s.engine != nil {
		s.engine.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
