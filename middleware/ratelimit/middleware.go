package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"tauben-gateway/internal/logger"
	"tauben-gateway/middleware/ratelimit/application"
	"tauben-gateway/middleware/ratelimit/domain"
)

// Options configura o gate de uma policy.
type Options struct {
	Policy Policy
	// Store é exclusivo da policy; registre-o no Sweeper para liberar memória.
	Store domain.WindowStore
	// Stats é opcional e best-effort: erros nunca chegam ao cliente.
	Stats  domain.StatsStore
	Logger *slog.Logger
	// Now permite congelar o relógio em testes.
	Now func() time.Time
	// DenyLogInterval limita os logs WARN de bloqueio por policy (padrão 10s).
	DenyLogInterval time.Duration
}

// Middleware aplica a policy antes de next. Configuração inválida entra em
// pânico na montagem do handler, nunca durante um request.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if !opts.Policy.valid() {
		panic("ratelimit: invalid policy; build it with NewPolicy or MustPolicy")
	}
	if opts.Store == nil {
		panic("ratelimit: nil store for policy " + opts.Policy.Name())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.DenyLogInterval <= 0 {
		opts.DenyLogInterval = 10 * time.Second
	}

	pol := opts.Policy
	lim, err := application.NewLimiter(opts.Store, pol.Quota())
	if err != nil {
		panic(err)
	}

	onDeny := pol.DenyHandler()
	if onDeny == nil {
		onDeny = JSONDenyHandler()
	}

	log := opts.Logger.With(logger.Component("ratelimit"), logger.Policy(pol.Name()))
	denyLog := &rate.Sometimes{First: 1, Interval: opts.DenyLogInterval}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := pol.KeyFn()(r)
			if key == "" {
				key = UnknownClient
			}

			now := opts.Now()
			dec := lim.Admit(domain.Key(key), now)

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Policy:  pol.Name(),
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				}); err != nil {
					log.Debug("stats record failed", logger.Error(err))
				}
			}

			if !dec.Allowed {
				denyLog.Do(func() {
					log.Warn("rate limit exceeded",
						logger.Path(r.URL.Path),
						logger.ClientAddr(ClientAddress(r)),
						logger.RetryAfter(dec.RetryAfterSeconds()),
					)
				})
				onDeny.ServeDeny(w, r, dec)
				return
			}

			writeAllowHeaders(w, dec, pol.Quota().Window)
			next.ServeHTTP(w, r)
		})
	}
}
