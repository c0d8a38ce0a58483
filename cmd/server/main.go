package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/notify"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/verification"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.ServiceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("env", cfg.Server.Env))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(cfg.Observ.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	repo, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer repo.Close()

	checks := map[string]api.Pinger{"store": repo}

	var (
		publisher service.EventPublisher
		sender    notify.Sender = notify.NewLogSender()
		shipments *worker.ShipmentWorker
	)

	ledger := service.NewStockLedger()

	if cfg.Kafka.Enabled {
		orderEvents := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
		defer orderEvents.Close()
		publisher = broker.NewEventPublisher(orderEvents)

		notifications := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notifications.Close()
		sender = notify.NewKafkaSender(notifications, notify.BreakerConfig{
			ConsecutiveFailures: cfg.Business.BreakerFailures,
			OpenTimeout:         cfg.Business.BreakerOpenTimeout,
			HalfOpenRequests:    notify.DefaultBreakerConfig().HalfOpenRequests,
		})
		logger.Info("Kafka producers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("Kafka disabled, events are not published and notifications are logged")
	}

	lifecycle := service.NewLifecycleService(repo, publisher)

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicShipments, cfg.Kafka.ConsumerGroup)
		shipments = worker.NewShipmentWorker(consumer, lifecycle)
	}

	var codes *verification.Service
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		checks["redis"] = redisClient
		codes = verification.NewService(redisClient, sender, cfg.Business.VerificationWindow)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog:      service.NewCatalogService(repo),
		Carts:        service.NewCartService(repo, repo),
		Checkout:     service.NewCheckoutService(repo, ledger, publisher, sender, cfg.Business.PublicBaseURL),
		Orders:       lifecycle,
		Accounts:     service.NewAccountService(repo),
		Verification: codes,
	}, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if shipments != nil {
		g.Go(func() error {
			return shipments.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if shipments != nil {
			if err := shipments.Stop(); err != nil {
				logger.Error("Failed to stop shipment worker", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openStore selects the backing store from configuration
func openStore(cfg *config.Config) (service.Repository, error) {
	logger := util.GetLogger()

	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemoryStore(cfg.Business.LockTimeout), nil
	case config.StoreDriverPostgres:
		db, err := store.NewStore(cfg.Database.URL, cfg.Business.LockTimeout)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to migrate: %w", err)
			}
		}
		logger.Info("Database connected")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}
}
