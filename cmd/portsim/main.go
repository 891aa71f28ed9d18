// Package main runs the port town trade simulator: it loads cargo and town
// content, drives the town economies in real time, and optionally streams
// change notifications to display clients.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/config"
	"github.com/cory-johannsen/porttown/internal/feed"
	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/chance"
	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/town"
	"github.com/cory-johannsen/porttown/internal/game/trade"
	"github.com/cory-johannsen/porttown/internal/observability"
	"github.com/cory-johannsen/porttown/internal/server"
	"github.com/cory-johannsen/porttown/internal/sim"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := cargo.LoadCatalog(cfg.Content.CargoDir)
	if err != nil {
		logger.Fatal("loading cargo", zap.Error(err))
	}
	defs, err := town.LoadDefinitions(cfg.Content.TownsDir, catalog)
	if err != nil {
		logger.Fatal("loading towns", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("goods", catalog.Len()),
		zap.Int("towns", len(defs)),
	)

	src := chance.NewCryptoSource()
	if cfg.Simulation.Seed != 0 {
		src = chance.NewSeededSource(uint64(cfg.Simulation.Seed))
	}

	world, err := sim.Build(defs, catalog, src, logger)
	if err != nil {
		logger.Fatal("building world", zap.Error(err))
	}
	world.Subscribe(observability.NewEventLogger(logger))

	if cfg.Simulation.PlayerName != "" {
		if err := addPlayer(world, cfg.Simulation, logger); err != nil {
			logger.Fatal("adding player ship", zap.Error(err))
		}
	}

	lc := server.NewLifecycle(logger)
	driver := sim.NewDriver(world, cfg.Simulation.TickInterval, cfg.Simulation.TimeScale, logger)
	lc.Add("driver", driver)

	if cfg.Feed.Enabled {
		hub := feed.NewHub(logger)
		world.Subscribe(hub)
		lc.Add("feed", feed.NewServer(cfg.Feed, hub, world, logger))
	}

	logger.Info("port town simulator ready",
		zap.Duration("startup", time.Since(start)),
		zap.Strings("ports", world.PortNames()),
	)

	if err := lc.Run(context.Background()); err != nil {
		logger.Error("simulator stopped with error", zap.Error(err))
	}
}

// addPlayer registers the player's ship and docks it at the first port.
func addPlayer(world *sim.World, cfg config.SimulationConfig, logger *zap.Logger) error {
	account := ledger.New(cfg.PlayerName, cfg.PlayerBalance, logger)
	ship := trade.NewShip(cfg.PlayerName, account, world.Catalog(), logger)
	if err := world.AddShip(ship); err != nil {
		return err
	}
	ports := world.PortNames()
	if len(ports) == 0 {
		return nil
	}
	return world.Do(func(tx sim.Tx) error {
		p, _ := tx.Port(ports[0])
		ship.SetCurrentPort(p)
		logger.Info("player ship docked", zap.String("ship", ship.Name()), zap.String("port", p.Name()))
		return nil
	})
}
