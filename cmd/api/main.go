package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storefront-api/internal/cache"
	"github.com/flicky/storefront-api/internal/config"
	"github.com/flicky/storefront-api/internal/event"
	"github.com/flicky/storefront-api/internal/handler"
	"github.com/flicky/storefront-api/internal/migrations"
	"github.com/flicky/storefront-api/internal/repository"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)})).
		With("service", cfg.Server.ServiceName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	if cfg.DB.AutoMigrate {
		if err := migrations.Up(cfg.DB.DSN(), log); err != nil {
			return err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	log.Info("connected to Redis")

	// RabbitMQ. Publishing and consuming use separate channels so a slow
	// consumer never blocks order creation.
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	defer consumeCh.Close()

	if err := event.DeclareTopology(consumeCh); err != nil {
		return fmt.Errorf("setup RabbitMQ: %w", err)
	}

	publishCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	defer publishCh.Close()
	log.Info("connected to RabbitMQ")

	publisher := event.NewAMQPPublisher(publishCh, event.BreakerConfig{
		Timeout:      cfg.RabbitMQ.BreakerTimeout,
		MinRequests:  cfg.RabbitMQ.BreakerMinRequests,
		FailureRatio: cfg.RabbitMQ.BreakerFailRatio,
	}, log)

	// Repositories
	txManager := repository.NewTxManager(dbPool, cfg.DB.TxMaxRetries, cfg.DB.TxRetryWait)
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	catalogRepo := repository.NewCatalogRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	productCache := cache.NewProductCache(redisClient, cfg.Cache.ProductTTL)

	// Services
	authSvc := service.NewAuthService(txManager, userRepo, cartRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.Auth.AdminEmails, log)
	catalogSvc := service.NewCatalogService(catalogRepo)
	productSvc := service.NewProductService(txManager, productRepo, cartRepo, productCache, log)
	cartSvc := service.NewCartService(txManager, cartRepo, productRepo, log)
	orderSvc := service.NewOrderService(txManager, cartRepo, orderRepo, publisher, log)

	// Worker
	orderWorker := worker.NewOrderWorker(consumeCh, txManager, orderRepo, productRepo, cartRepo, redisClient,
		productCache, cfg.Worker.IdempotencyTTL, log)
	if err := orderWorker.Start(ctx); err != nil {
		return fmt.Errorf("start order worker: %w", err)
	}

	router := handler.NewRouter(handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc, log),
		Catalog: handler.NewCatalogHandler(catalogSvc, log),
		Product: handler.NewProductHandler(productSvc, log),
		Cart:    handler.NewCartHandler(cartSvc, log),
		Order:   handler.NewOrderHandler(orderSvc, log),
		Health: handler.NewHealthHandler(
			handler.Check{Name: "postgres", Ping: dbPool.Ping},
			handler.Check{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			handler.Check{Name: "rabbitmq", Ping: func(context.Context) error {
				if amqpConn.IsClosed() {
					return amqp.ErrClosed
				}
				return nil
			}},
		),
	}, cfg.JWT.Secret, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			orderWorker.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	orderWorker.Stop()
	log.Info("server stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
