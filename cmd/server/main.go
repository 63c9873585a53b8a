package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/checkout"
	"storefront/internal/client"
	"storefront/internal/mongostore"
	"storefront/internal/redisclient"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	pricing, err := checkout.ParsePricing(
		cfg.Business.ShippingRate,
		cfg.Business.FreeShippingThreshold,
		cfg.Business.TaxRate,
	)
	if err != nil {
		log.Fatalf("Invalid pricing: %v", err)
	}

	ctx := context.Background()

	backend, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer backend.store.Close()
	logger.Info("Storage ready", zap.String("driver", cfg.Storage.Driver))

	readyChecks := map[string]api.ReadyCheck{}
	if backend.ping != nil {
		readyChecks["storage"] = backend.ping
	}

	catalogClient := client.NewCatalogClient(cfg.Upstream.CatalogURL, cfg.Upstream.Timeout, logger)
	orderClient := client.NewOrderClient(cfg.Upstream.OrdersURL, cfg.Upstream.Timeout, logger)
	authClient := client.NewAuthClient(cfg.Upstream.AuthURL, cfg.Upstream.Timeout, logger)

	sessionCfg := session.Config{
		Storage:              backend.store,
		Orders:               orderClient,
		AuthClient:           authClient,
		ErrorLogger:          util.NewErrorReporter(logger),
		Pricing:              &pricing,
		NotificationDuration: cfg.Business.NotificationDuration,
		TTL:                  cfg.Business.SessionTTL,
		Logger:               logger,
	}
	if n := cfg.Business.AuthAttemptsPerMinute; n > 0 {
		sessionCfg.AuthRate = rate.Every(time.Minute / time.Duration(n))
		sessionCfg.AuthBurst = n
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		archiveWorker *worker.OrderArchiveWorker
		orderArchive  api.OrderArchive
	)
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.Topic))

		eventPublisher := broker.NewEventPublisher(producer)
		sessionCfg.OrderEvents = eventPublisher

		archive, closeArchive, err := openArchive(ctx, cfg, backend)
		if err != nil {
			log.Fatalf("Failed to open order archive: %v", err)
		}
		defer closeArchive()
		readyChecks["archive"] = archive.Ping
		orderArchive = archive

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup)
		archiveWorker = worker.NewOrderArchiveWorker(consumer, archive)
		go func() {
			if err := archiveWorker.Start(workerCtx); err != nil {
				logger.Error("Order archive worker error", zap.Error(err))
			}
		}()
	}

	sessions := session.NewManager(sessionCfg)
	defer sessions.Close()
	go sessions.Run(workerCtx, time.Minute)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Options{
		Sessions:       sessions,
		Catalog:        catalogClient,
		Archive:        orderArchive,
		Orders:         orderClient,
		CookieSecure:   cfg.Server.CookieSecure,
		AllowedOrigins: cfg.Server.CORSOrigins,
		ReadyChecks:    readyChecks,
		Logger:         logger,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: api.WithCORS(router, cfg.Server.CORSOrigins),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if archiveWorker != nil {
		if err := archiveWorker.Stop(); err != nil {
			logger.Warn("Failed to stop order archive worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// storageBackend is the opened snapshot store. pg is set when the driver
// is postgres so the order archive can share the connection.
type storageBackend struct {
	store storage.Store
	ping  api.ReadyCheck
	pg    *store.Store
}

func openStorage(ctx context.Context, cfg *config.Config) (storageBackend, error) {
	switch cfg.Storage.Driver {
	case "memory", "":
		return storageBackend{store: storage.NewMemory()}, nil

	case "redis":
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Storage.TTL)
		if err != nil {
			return storageBackend{}, err
		}
		return storageBackend{store: rc, ping: rc.Ping}, nil

	case "postgres":
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return storageBackend{}, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return storageBackend{}, err
		}
		return storageBackend{store: db, ping: db.Ping, pg: db}, nil

	case "mongo":
		ms, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return storageBackend{}, err
		}
		return storageBackend{store: ms, ping: ms.Ping}, nil

	default:
		return storageBackend{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openArchive returns the Postgres order archive, reusing the snapshot
// connection when storage already runs on Postgres
func openArchive(ctx context.Context, cfg *config.Config, backend storageBackend) (*store.Store, func(), error) {
	if backend.pg != nil {
		return backend.pg, func() {}, nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
