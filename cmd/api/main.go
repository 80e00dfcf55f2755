// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"geochat/internal/adapter/storage"
	"geochat/internal/config"
	"geochat/internal/domain/item"
	"geochat/internal/server"
	"geochat/internal/server/handlers"
	"geochat/internal/service/cleanup"
	"geochat/internal/service/direct"
	"geochat/internal/service/feedcap"
	"geochat/internal/service/roam"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogger(cfg.Environment)
	log := logger.WithField("app", "geochat")

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, log)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	// Initialize storage adapters
	zoneStore := storage.NewZoneStore(db)
	shoutStore := storage.NewShoutStore(db)
	convoStore := storage.NewConversationStore(db)
	messageStore := storage.NewMessageStore(db)
	feedStore := storage.NewFeedStore(db)
	inventoryStore := storage.NewInventoryStore(db)
	changeFeed := storage.NewNATSChangeFeed(natsConn, log.WithField("component", "changefeed"))

	// Initialize services
	directService := direct.NewService(
		convoStore,
		messageStore,
		changeFeed,
		changeFeed.Notify,
		log.WithField("component", "direct"),
	)

	evictor := feedcap.NewEvictor(
		feedStore,
		cfg.Feed.MaxPosts,
		log.WithField("component", "feedcap"),
	)

	sweeper := cleanup.NewService(
		zoneStore,
		shoutStore,
		feedStore,
		convoStore,
		changeFeed.Notify,
		cfg.Cleanup.Schedule,
		log.WithField("component", "cleanup"),
	)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start cleanup sweeper: %v", err)
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, server.Deps{
		Zones:       zoneStore,
		ZoneGetter:  zoneStore,
		Shouts:      shoutStore,
		Feed:        feedStore,
		FeedCleaner: feedStore,
		Admitter:    evictor,
		Inventory:   inventoryStore,
		Convos:      convoStore,
		Direct:      directService,
		Notify:      changeFeed.Notify,
		NearbyDeps: handlers.NearbySessionDeps{
			Feed:                    changeFeed,
			ZoneQuerier:             zoneStore,
			ShoutQuerier:            shoutStore,
			Inventory:               inventoryStore,
			ZoneRadiusMeters:        cfg.Nearby.ZoneRadiusMeters,
			ShoutRadiusMeters:       cfg.Nearby.ShoutRadiusMeters,
			ShoutLifetime:           cfg.Nearby.ShoutLifetime,
			RecenterThresholdMeters: cfg.Nearby.RecenterThresholdMeters,
			RoamConfig:              roam.DefaultConfig(),
			RoamTable:               item.DefaultTable(),
			StateStore: func(userID string) (roam.StateStore, error) {
				return storage.NewRoamStateStore(cfg.Roam.StateDir, userID)
			},
			Log: log.WithField("component", "nearby"),
		},
		NearbyConfig: cfg.Nearby,
	})

	// Start HTTP server
	go func() {
		log.Infof("Starting HTTP server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	log.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	sweeper.Stop()

	log.Info("Shutdown complete")
}

// Initialize structured logging
func initLogger(environment string) *logrus.Logger {
	logger := logrus.New()
	if environment == "development" {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, log *logrus.Entry) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
