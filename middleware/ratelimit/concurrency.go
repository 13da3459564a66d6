package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tauben-gateway/internal/logger"
	"tauben-gateway/middleware/ratelimit/application"
	"tauben-gateway/middleware/ratelimit/domain"
	"tauben-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (testes).
	Pool   domain.SlotPool
	Logger *slog.Logger
}

// ConcurrencyMiddleware limita quantos requests são atendidos ao mesmo tempo.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewSemaphorePool(int64(opts.Max))
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}
	log := opts.Logger.With(logger.Component("concurrency"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			switch {
			case err == nil:
			case errors.Is(err, application.ErrCanceled):
				// cliente foi embora: não há para quem responder
				return
			default:
				log.Debug("no slot", logger.Path(r.URL.Path), logger.Error(err))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
