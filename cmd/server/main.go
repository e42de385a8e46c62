package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/edusmart-auth/internal/config"
	"github.com/iliyamo/edusmart-auth/internal/database"
	"github.com/iliyamo/edusmart-auth/internal/handler"
	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/projection"
	"github.com/iliyamo/edusmart-auth/internal/router"
	"github.com/iliyamo/edusmart-auth/internal/rpc"
	"github.com/iliyamo/edusmart-auth/internal/service"
	"github.com/iliyamo/edusmart-auth/internal/telemetry"
	"github.com/iliyamo/edusmart-auth/internal/token"
	"github.com/iliyamo/edusmart-auth/internal/uow"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, "mysql"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	checks := []handler.Check{{Name: "mysql", Ping: db.PingContext}}

	var docs uow.DocumentStore
	if cfg.MongoURI == "" {
		logger.Warn(ctx, "MONGO_URI empty, using in-memory account projection")
		docs = projection.NewMemoryStore()
	} else {
		client, store, err := projection.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer disconnect(client)
		docs = store
		checks = append(checks, handler.Check{Name: "mongo", Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}})
	}

	codec, err := token.NewCodec(token.Config{Key: []byte(cfg.Token.Key), IV: []byte(cfg.Token.IV)})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	transport := rpc.NewAMQPTransport(cfg.Broker.URL, logger)
	gw := rpc.NewGateway(transport, cfg.Broker.RPCTimeout, logger)
	go func() {
		if err := transport.Run(ctx, gw.Resolve); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "rpc transport stopped", "err", err)
		}
	}()
	profiles := rpc.NewProfileClient(gw, cfg.Broker.ProfileCreateQueue, cfg.Broker.ProfileLoginQueue)
	publisher := service.NewPublisher(cfg.Broker.URL, cfg.Broker.SendKeyQueue, logger)

	accounts := service.NewAccountService(uow.New(db, docs), codec, profiles, publisher, logger, service.Options{
		BcryptCost:         cfg.BcryptCost,
		PasswordMinEntropy: cfg.PasswordMinEntropy,
		MaskConflicts:      cfg.MaskRegistrationConflicts,
		Actor:              cfg.Actor,
	})
	n, err := accounts.SeedRoles(ctx)
	if err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	logger.Info(ctx, "roles seeded", "created", n)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn(ctx, "redis unavailable, rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		Auth:      handler.NewAuthHandler(accounts, cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute),
		Checks:    checks,
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "tracing shutdown", "err", err)
	}
}

func disconnect(c *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.Disconnect(ctx)
}
