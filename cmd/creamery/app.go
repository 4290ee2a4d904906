package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/creamery"
	"goflare.io/creamery/address"
	"goflare.io/creamery/catalog"
	"goflare.io/creamery/config"
	"goflare.io/creamery/driver"
	"goflare.io/creamery/event"
	"goflare.io/creamery/order"
	"goflare.io/creamery/payment"
	"goflare.io/creamery/storage"
	"goflare.io/creamery/user"
)

// app holds the connections and the wired service for one command.
type app struct {
	db      *driver.DB
	redis   *redis.Client
	nats    *nats.Conn
	catalog *catalog.Catalog
	service creamery.Service
	logger  *zap.Logger
}

func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	// 1. 連線資料庫
	db, err := driver.ConnectSQL(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	// 2. 連線 Redis
	a.redis, err = driver.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 3. 連線 NATS
	a.nats, err = nats.Connect(cfg.NATS.URL, nats.Name("creamery"), nats.MaxReconnects(-1))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	ttl, err := cfg.GetCacheTTL()
	if err != nil {
		a.Close()
		return nil, err
	}
	cache := driver.NewCache(a.redis, cfg.Redis.CachePrefix, ttl)
	eventManager := creamery.NewEventManager(a.nats, logger)

	a.catalog = catalog.New(catalog.NewRepository(db.Pool, cache, logger), eventManager, logger)

	var gateway payment.Gateway
	if cfg.CardPaymentsEnabled() {
		gateway = payment.NewStripeGateway(cfg.Stripe.SecretKey, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, card payments are disabled")
	}

	a.service = creamery.NewService(creamery.Dependencies{
		Catalog:            a.catalog,
		Orders:             order.NewRepository(db.Pool, cache, logger),
		Addresses:          address.NewRepository(db.Pool, logger),
		Users:              user.NewRepository(db.Pool, cache, logger),
		Events:             event.NewRepository(db.Pool, logger),
		Gateway:            gateway,
		Objects:            storage.NewPostgresStore(db.Pool, cfg.Storage.CDNBaseURL, logger),
		TransactionManager: driver.NewTransactionManager(db.Pool, logger),
		EventManager:       eventManager,
		Currency:           cfg.Shop.Currency,
		Workers:            cfg.Shop.Workers,
	}, logger)

	return a, nil
}

// Close shuts the service down and releases every connection it holds.
func (a *app) Close() {
	if a.service != nil {
		a.service.Shutdown()
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.logger.Warn("Failed to drain nats connection", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Pool.Close()
	}
}
