package infra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tauben-gateway/middleware/ratelimit/domain"
)

// ErrStatsBufferFull é devolvido por AsyncStatsStore.Record quando o buffer lota.
var ErrStatsBufferFull = errors.New("stats buffer full")

// AsyncStatsStore tira o I/O do caminho do request: Record só enfileira e
// uma goroutine grava no store de destino. Eventos são descartados quando o
// buffer está cheio.
type AsyncStatsStore struct {
	next    domain.StatsStore
	events  chan domain.StatsEvent
	timeout time.Duration
	logger  *slog.Logger

	dropped atomic.Int64
	failed  atomic.Int64
	// falhas em sequência (ex: breaker aberto) geram no máximo um WARN por intervalo
	failLog *rate.Sometimes

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewAsyncStatsStore(next domain.StatsStore, buffer int, logger *slog.Logger) *AsyncStatsStore {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &AsyncStatsStore{
		next:    next,
		events:  make(chan domain.StatsEvent, buffer),
		timeout: 2 * time.Second,
		logger:  logger,
		failLog: &rate.Sometimes{First: 1, Interval: 30 * time.Second},
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	select {
	case s.events <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsBufferFull
	}
}

func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }

// Failed conta as gravações recusadas pelo store de destino.
func (s *AsyncStatsStore) Failed() int64 { return s.failed.Load() }

func (s *AsyncStatsStore) run() {
	defer close(s.done)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Record(ctx, ev); err != nil {
			failed := s.failed.Add(1)
			s.failLog.Do(func() {
				s.logger.Warn("stats record failed",
					slog.String("policy", ev.Policy),
					slog.Int64("failed_total", failed),
					slog.Any("error", err),
				)
			})
		}
		cancel()
	}
}

// Close para de aceitar eventos e espera a fila esvaziar.
func (s *AsyncStatsStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	<-s.done
	return nil
}
