package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tauben-gateway/middleware/ratelimit"
	"tauben-gateway/middleware/ratelimit/domain"
	"tauben-gateway/middleware/ratelimit/infra"
)

// routerDeps reúne o que o roteador precisa; main monta, os testes também.
type routerDeps struct {
	Policies map[string]ratelimit.Policy
	// Stores tem um store por policy (mesma chave de Policies).
	Stores map[string]*infra.WindowStore

	Upstream http.Handler
	// Metrics e Counters nil desligam /metrics e /ratelimit/stats.
	Metrics  http.Handler
	Counters *infra.MemoryStatsStore
	Stats    domain.StatsStore
	Logger   *slog.Logger
	Now      func() time.Time

	RateEnabled bool
	TrustXFF    bool
	Concurrency ratelimit.ConcurrencyOptions
}

func newRouter(d routerDeps) http.Handler {
	gates := make(map[string]func(http.Handler) http.Handler, len(d.Policies))
	for name, p := range d.Policies {
		if !d.RateEnabled {
			break
		}
		gates[name] = ratelimit.Middleware(ratelimit.Options{
			Policy: p,
			Store:  d.Stores[name],
			Stats:  d.Stats,
			Logger: d.Logger,
			Now:    d.Now,
		})
	}
	gate := func(names ...string) chi.Middlewares {
		if !d.RateEnabled {
			return nil
		}
		mws := make(chi.Middlewares, 0, len(names))
		for _, n := range names {
			mws = append(mws, gates[n])
		}
		return mws
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(ratelimit.ClientIP(d.TrustXFF))

	r.With(gate(ratelimit.PolicyHealth)...).Get("/health", health(d.Now))

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.Counters != nil {
		r.Get("/ratelimit/stats", statsSnapshot(d.Counters))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(ratelimit.ConcurrencyMiddleware(d.Concurrency))

		// Handle registra todos os métodos; o Delete registrado depois sobrescreve só o DELETE.
		api.With(gate(ratelimit.PolicyGeneral)...).Handle("/*", d.Upstream)
		api.With(gate(ratelimit.PolicyGeneral, ratelimit.PolicyStrict)...).Delete("/*", d.Upstream.ServeHTTP)

		for _, p := range []string{"/images", "/images/*"} {
			api.With(gate(ratelimit.PolicyGeneral, ratelimit.PolicyUpload)...).Handle(p, d.Upstream)
			api.With(gate(ratelimit.PolicyGeneral, ratelimit.PolicyUpload, ratelimit.PolicyStrict)...).Delete(p, d.Upstream.ServeHTTP)
		}

		api.With(gate(ratelimit.PolicyAuth)...).Handle("/auth/*", d.Upstream)
	})

	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func health(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:    "healthy",
			Timestamp: now().UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
}

type statsResponse struct {
	Total    infra.Counters            `json:"total"`
	ByPolicy map[string]infra.Counters `json:"byPolicy"`
	ByRoute  map[string]infra.Counters `json:"byRoute"`
}

func statsSnapshot(m *infra.MemoryStatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(statsResponse{
			Total:    m.Total(),
			ByPolicy: m.ByPolicy(),
			ByRoute:  m.ByRoute(),
		})
	}
}
