package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/bridge"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/eventbus"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level).With("instance_id", cfg.Instance.ID)
	log.Info("Starting auction engine", "config", cfg.GetConfigString())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	store, db := openStore(ctx, cfg, log)
	if db != nil {
		defer func(db *sql.DB) {
			if err := db.Close(); err != nil {
				log.Error("Failed to close MySQL connection", "error", err)
			}
		}(db)
	}

	// Model layer
	registry := eventbus.NewRegistry("auction-engine", log)
	auctionManager := services.NewAuctionManager(store, registry, domain.SystemClock{}, log)
	userManager := services.NewUserManager(store, auctionManager, log)

	scheduler := services.NewExpirationScheduler(domain.SystemClock{}, services.SchedulerOptions{
		TickInterval: cfg.Scheduler.TickInterval,
		RetryDelay:   cfg.Scheduler.RetryDelay,
	}, auctionManager.ExpireAuction, auctionManager.PublishCountdown, log)
	auctionManager.SetScheduler(scheduler)

	loaded, err := auctionManager.LoadOngoing(ctx)
	if err != nil {
		log.Fatal("Failed to load ongoing auctions", "error", err)
	}
	log.Info("Ongoing auctions loaded", "count", loaded)

	reconciler := services.NewReconciler(auctionManager, cfg.Scheduler.ReconcileInterval, log)

	// Remote event bridges, one per area
	bridgeOpts := bridge.Options{OutboxSize: cfg.Bridge.OutboxSize, DeliveryTimeout: cfg.Bridge.DeliveryTimeout}
	var bridges []*bridge.Bridge
	for _, area := range bridge.Areas() {
		b := bridge.New(area, bridgeOpts, log)
		b.Attach(registry)
		bridges = append(bridges, b)
	}

	// Redis relay and service registry
	var serviceRegistry *redis.ServiceRegistry
	if cfg.Redis.Enabled {
		rdb := redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		pingCancel()
		log.Info("Connected to Redis", "address", cfg.Redis.Address)

		for _, b := range bridges {
			relay := redis.NewEventRelay(rdb, b.Area().Name)
			if _, err := b.AddListener(relay, b.Area().Kinds...); err != nil {
				log.Fatal("Failed to attach Redis relay", "area", b.Area().Key, "error", err)
			}
			log.Info("Redis relay attached", "area", b.Area().Key, "channel", relay.Channel())
		}

		serviceRegistry = redis.NewServiceRegistry(rdb, cfg.Registry.TTL, log)
		for _, area := range bridge.Areas() {
			if err := serviceRegistry.Register(ctx, area.Name, cfg.Events.AdvertiseURL); err != nil {
				log.Fatal("Failed to register area", "area", area.Name, "error", err)
			}
		}
	}

	// Events server (WebSocket)
	connManager := websocket.NewConnectionManager(log)
	wsHandler := websocket.NewHandler(bridges, connManager, cfg.Bridge.WriteTimeout, log)
	eventsServer := &http.Server{
		Addr:              cfg.EventsAddr(),
		Handler:           handlers.NewEventsRouter(wsHandler, connManager, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// RPC server
	e := handlers.NewRouter(auctionManager, userManager, log)

	// Start background services
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", "error", err)
	}
	if err := reconciler.Start(ctx); err != nil {
		log.Fatal("Failed to start reconciler", "error", err)
	}

	go func() {
		log.Info("Starting events server", "address", eventsServer.Addr)
		if err := eventsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Events server failed", "error", err)
		}
	}()
	go func() {
		log.Info("Starting RPC server", "address", cfg.ServerAddr())
		if err := e.Start(cfg.ServerAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("RPC server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction engine...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("RPC server forced to shutdown", "error", err)
	}
	if serviceRegistry != nil {
		if err := serviceRegistry.Close(shutdownCtx); err != nil {
			log.Error("Failed to deregister areas", "error", err)
		}
	}
	if err := reconciler.Stop(); err != nil {
		log.Error("Failed to stop reconciler", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}

	connManager.CloseAll()
	if err := eventsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Events server forced to shutdown", "error", err)
	}
	for _, b := range bridges {
		b.Close()
	}
	cancel()

	log.Info("Auction engine stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (domain.Store, *sql.DB) {
	if cfg.Store.Driver != "mysql" {
		log.Info("Using in-memory store")
		return memory.NewStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := mysql.Open(connectCtx, cfg.MySQL.DSN, mysql.PoolOptions{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Failed to connect to MySQL", "error", err)
	}
	if cfg.MySQL.Migrate {
		if err := mysql.Migrate(connectCtx, db); err != nil {
			log.Fatal("Failed to migrate MySQL schema", "error", err)
		}
	}
	log.Info("Connected to MySQL")
	return mysql.NewStore(db), db
}
