package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/broadcast"
	"github.com/wfunc/tagserver/config"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/monitor"
	"github.com/wfunc/tagserver/persistence"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/rpc"
	"github.com/wfunc/tagserver/server"
	"github.com/wfunc/tagserver/services"
	"github.com/wfunc/tagserver/session"
	"github.com/wfunc/tagserver/tagging"
	"github.com/wfunc/tagserver/timer"
)

const shutdownTimeout = 10 * time.Second

func openDatabase(cfg *config.Config) (persistence.Database, error) {
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case config.DriverGorm:
		return persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case config.DriverPQ:
		return persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case config.DriverMemory:
		return persistence.NewMemoryDatabase(), nil
	default:
		return nil, nil
	}
}

func main() {
	// .env 可选，已有的环境变量优先
	envErr := godotenv.Load()

	logger.Init("info")
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Log.Warnf("Failed to load .env: %v", envErr)
	}

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	db, err := openDatabase(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	if db != nil {
		logger.Log.Infof("Archive database ready (%s).", cfg.Database.Driver)
	} else {
		logger.Log.Info("No archive database configured, game history disabled.")
	}

	loc, _ := cfg.Location()
	metrics := monitor.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	mon := anticheat.NewMonitor(cfg.AnticheatSettings())
	sessions := session.NewManager()
	broadcaster := broadcast.NewSessionBroadcaster(sessions, cfg.Broadcast.QueueSize)
	broadcaster.Start()

	opts := []services.Option{
		services.WithNotifier(broadcaster),
		services.WithMetrics(metrics),
	}
	var archiver *services.Archiver
	if db != nil {
		archiver = services.NewArchiver(db, cfg.Archive.QueueSize, cfg.Archive.MaxElapsed, services.WithArchiveMetrics(metrics))
		archiver.Start(context.Background())
		opts = append(opts, services.WithArchive(archiver), services.WithHistory(db))
	}
	game := services.NewGameService(room.NewRegistry(), mon, tagging.NewProtocol(mon, loc), opts...)

	timers := timer.NewTimerManager()
	janitor := services.NewJanitor(game, mon, timers, cfg.JanitorSettings())
	janitor.Start()

	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		rpcServer, err = rpc.NewServer(cfg.Server.RPCAddress, rpc.NewModerationService(game))
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(game, sessions, broadcaster, server.Options{
		Addr:      cfg.Server.HTTPAddress,
		JoinURL:   cfg.Server.JoinURL,
		Heartbeat: cfg.Server.Heartbeat,
		Defaults:  cfg.DefaultSettings(),
		Metrics:   metrics,
		RPCServer: rpcServer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
		errCh <- gameServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received.")
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("HTTP shutdown: %v", err)
	}
	janitor.Stop()
	timers.Stop()
	broadcaster.Stop()
	if archiver != nil {
		archiver.Stop()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Log.Errorf("Close database: %v", err)
		}
	}
	logger.Log.Info("Game server stopped.")
}
