// Package main runs the ZippyCoin trust engine: the scoring API, the
// delegation graph, the base-score ledger, and the score stream behind one
// HTTP server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/config"
	"github.com/zippycoin-network/trust_engine/internal/delegation"
	"github.com/zippycoin-network/trust_engine/internal/engine"
	"github.com/zippycoin-network/trust_engine/internal/httpapi"
	"github.com/zippycoin-network/trust_engine/internal/ledger"
	"github.com/zippycoin-network/trust_engine/internal/middleware"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/storage/memory"
	"github.com/zippycoin-network/trust_engine/internal/storage/postgres"
	"github.com/zippycoin-network/trust_engine/internal/stream"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

type stores struct {
	engine engine.Stores
	ledger storage.LedgerStore
	deleg  storage.DelegationStore
	closer func() error
}

func main() {
	configPath := flag.String("config", "config/trustd.yaml", "Path to configuration file")
	flag.Parse()

	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("trustd").WithError(err).Error("configuration load failed")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "trustd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("storage initialization failed")
		os.Exit(1)
	}
	defer func() {
		if err := st.closer(); err != nil {
			log.WithError(err).Warn("storage close failed")
		}
	}()

	scoreCache := buildCache(ctx, cfg, log)

	eng := engine.New(st.engine, scoreCache, &http.Client{Timeout: 10 * time.Second}, log)
	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("engine startup failed")
		os.Exit(1)
	}

	led := ledger.NewService(st.ledger, log)
	del := delegation.NewService(st.deleg, led, log)
	del.MinDelegatorScore = cfg.Delegation.MinDelegatorScore

	router := httpapi.NewRouter(httpapi.Deps{
		Engine:      eng,
		Ledger:      led,
		Delegations: del,
		Streamer:    stream.NewStreamer(eng, log),
		StreamOpts: stream.Options{
			Interval:  cfg.Stream.Interval.Std(),
			Heartbeat: cfg.Stream.Heartbeat.Std(),
		},
		Log: log,
	})

	var handler http.Handler = router
	if cfg.Auth.Enabled {
		handler = middleware.NewAuth(cfg.Auth.Secret, []string{"/healthz", "/metrics"}, log).Handler(handler)
	}
	handler = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log).Handler(handler)
	handler = middleware.NewCORS([]string{"*"}).Handler(handler)

	srv := httpapi.NewServer(cfg.Server, handler, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
}

func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (stores, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return stores{}, err
		}
		log.Info("using postgres storage")
		return stores{
			engine: engine.Stores{CoreMetrics: pg, Configs: pg, FieldValues: pg, Composites: pg},
			ledger: pg,
			deleg:  pg,
			closer: pg.Close,
		}, nil
	default:
		mem := memory.New()
		log.Info("using in-memory storage")
		return stores{
			engine: engine.Stores{CoreMetrics: mem, Configs: mem, FieldValues: mem, Composites: mem},
			ledger: mem,
			deleg:  mem,
			closer: func() error { return nil },
		}, nil
	}
}

// buildCache prefers Redis when configured and reachable, falling back to the
// in-process cache: the cache tier is an optimization, never a hard
// dependency.
func buildCache(ctx context.Context, cfg config.Config, log *logger.Logger) cache.Cache {
	if !cfg.Redis.Enabled {
		return cache.NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, using in-process cache")
		return cache.NewMemory()
	}

	log.WithField("addr", cfg.Redis.Addr).Info("using redis cache")
	return cache.NewRedis(client, log)
}
