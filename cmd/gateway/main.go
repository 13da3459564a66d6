package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"tauben-gateway/internal/config"
	"tauben-gateway/internal/logger"
	"tauben-gateway/middleware/ratelimit"
	"tauben-gateway/middleware/ratelimit/domain"
	"tauben-gateway/middleware/ratelimit/infra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("config error", logger.Error(err))
		return err
	}

	log, syncLog, err := logger.New(logger.Options{
		Production: cfg.Production(),
		Level:      cfg.LogLevel,
		Service:    "tauben-gateway",
	})
	if err != nil {
		slog.Error("logger error", logger.Error(err))
		return err
	}
	defer func() { _ = syncLog() }()
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target, _ := url.Parse(cfg.UpstreamURL) // já validado em config.Load
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("proxy error", logger.Component("proxy"), logger.Path(r.URL.Path), logger.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	// métricas
	var (
		metricsHandler http.Handler
		promStats      *infra.PrometheusStats
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promStats, err = infra.NewPrometheusStats(reg)
		if err != nil {
			log.Error("metrics setup failed", logger.Error(err))
			return err
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// stats
	counters := infra.NewMemoryStatsStore()
	sinks := infra.MultiStatsStore{counters}
	if promStats != nil {
		sinks = append(sinks, promStats)
	}
	if cfg.Stats.Enabled {
		redisStats, closeRedis, err := newRedisStats(ctx, cfg.Stats, log)
		if err != nil {
			log.Error("redis stats setup failed", logger.Error(err))
			return err
		}
		defer closeRedis()
		sinks = append(sinks, redisStats)
	}

	// um store por policy; o sweeper varre todos
	policies := ratelimit.DefaultPolicies()
	stores := make(map[string]*infra.WindowStore, len(policies))

	sweeperOpts := []infra.SweeperOption{
		infra.WithSweepInterval(cfg.SweepInterval),
		infra.WithSweepLogger(log.With(logger.Component("sweeper"))),
	}
	if promStats != nil {
		sweeperOpts = append(sweeperOpts, infra.WithSweepObserver(promStats))
	}
	sweeper := infra.NewSweeper(sweeperOpts...)
	for name := range policies {
		stores[name] = infra.NewWindowStore()
		sweeper.Register(name, stores[name])
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	h := newRouter(routerDeps{
		Policies:    policies,
		Stores:      stores,
		Upstream:    proxy,
		Metrics:     metricsHandler,
		Stats:       sinks,
		Counters:    counters,
		Logger:      log,
		RateEnabled: cfg.RateEnabled,
		TrustXFF:    cfg.TrustXFF,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
			Logger:         log,
		},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", target.String()),
		slog.Bool("rate_enabled", cfg.RateEnabled),
		slog.Bool("trust_xff", cfg.TrustXFF),
		slog.Duration("sweep_interval", sweeper.Interval()),
		slog.Int("concurrency_max", cfg.ConcurrencyMax),
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.Bool("redis_stats", cfg.Stats.Enabled),
	)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error("listen failed", logger.Error(err))
		return err
	}
	if err := serve(ctx, srv, ln, log); err != nil {
		log.Error("server error", logger.Error(err))
		return err
	}
	log.Info("gateway stopped")
	return nil
}

// serve atende em ln até ctx encerrar e só retorna depois que Shutdown
// terminou de esperar os requests em voo (ou estourou o prazo).
func serve(ctx context.Context, srv *http.Server, ln net.Listener, log *slog.Logger) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown did not drain in time", logger.Error(err))
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}

// newRedisStats monta Redis -> circuit breaker -> fila assíncrona, para que
// o request nunca espere pelo Redis.
func newRedisStats(ctx context.Context, sc config.StatsConfig, log *slog.Logger) (domain.StatsStore, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     sc.RedisAddr,
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	rs := infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(sc.Prefix),
		infra.WithStatsTTL(sc.TTL),
		infra.WithStatsBucket(sc.Bucket),
		infra.WithStatsTrackKeys(sc.TrackKeys),
	)
	breaker := infra.NewBreakerStatsStore("redis-stats", rs, sc.BreakerReset, sc.BreakerAfter)
	async := infra.NewAsyncStatsStore(breaker, sc.Buffer, log.With(logger.Component("stats")))

	closeFn := func() {
		_ = async.Close()
		if n := async.Dropped(); n > 0 {
			log.Warn("stats events dropped", slog.Int64("dropped", n))
		}
		_ = rdb.Close()
	}
	return async, closeFn, nil
}
