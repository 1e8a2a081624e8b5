// Command timeline starts the lane layout HTTP service.
//
// The service packs subjects stored in PostgreSQL into non-overlapping lanes
// and pages, serving them via GET /api/v1/subjects/layout. Layouts are cached
// in Redis when it is reachable. Subject imports arrive on a Kafka topic and
// are applied to PostgreSQL by an in-process consumer.
//
// Usage:
//
//	go run ./cmd/timeline [-config configs/development.yaml] [-consume=false]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/cache"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/handler"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/service"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/store"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/validator"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	consume := flag.Bool("consume", true, "apply subject imports from kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting timeline service", "port", cfg.Server.Port, "lane_max", cfg.Lanes.LaneMax)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	subjects := store.NewPostgres(db)
	if err := subjects.EnsureSchema(context.Background()); err != nil {
		slog.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	var layoutCache *cache.LayoutCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, layout caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		layoutCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("layout cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if *consume {
		applier := importer.NewApplier(subjects, m)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SubjectImport, applier.Handle)
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				slog.Error("import consumer error", "error", err)
			}
		}()
		if layoutCache != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applier.RunInvalidator(ctx, layoutCache, cfg.Timeline.CacheFlushInterval)
			}()
		}
		slog.Info("import consumer started", "topic", cfg.Kafka.Topics.SubjectImport)
	}

	engine := lanes.NewEngine(lanes.Options{
		LaneMax:         cfg.Lanes.LaneMax,
		LegacyPageIndex: cfg.Lanes.LegacyPageIndex,
	})
	svc := service.New(subjects, engine, service.OptionsFromConfig(cfg.Timeline), m)
	h := handler.New(svc, layoutCache, validator.Defaults{
		From: cfg.Timeline.DefaultFrom,
		To:   cfg.Timeline.DefaultTo,
	}, m)

	checker := health.NewChecker()
	checker.Register("postgres", health.Pinger(db.Ping, true))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.Pinger(redisClient.Ping, false)(ctx)
	})
	checker.Register("store-circuit", func(ctx context.Context) health.ComponentHealth {
		return breakerHealth(svc.BreakerSnapshot())
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		go limiter.RunSweeper(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
		slog.Info("rate limiting enabled",
			"limit", cfg.Server.RateLimit,
			"window", cfg.Server.RateLimitWindow,
		)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("timeline service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	slog.Info("timeline service stopped")
}

// breakerHealth reports the store breaker as degraded unless it is closed.
func breakerHealth(snap resilience.Snapshot) health.ComponentHealth {
	if snap.State == resilience.StateClosed {
		return health.ComponentHealth{Status: health.StatusUp}
	}
	msg := fmt.Sprintf("circuit %s: %d consecutive failures, %d calls rejected", snap.State, snap.ConsecutiveFailures, snap.Rejected)
	if !snap.OpenedAt.IsZero() {
		msg += ", opened " + snap.OpenedAt.UTC().Format(time.RFC3339)
	}
	return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
}
