package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tauben-gateway/middleware/ratelimit/domain"
)

const DefaultSweepInterval = 5 * time.Minute

// SweepObserver recebe o resultado de cada varredura (ex: métricas).
type SweepObserver interface {
	ObserveSweep(store string, removed, remaining int)
}

type sweepTarget struct {
	name  string
	store domain.Sweepable
}

// Sweeper remove periodicamente janelas expiradas dos stores registrados.
// Roda fora do caminho do request; pare cancelando o contexto ou com Stop.
type Sweeper struct {
	mu      sync.Mutex
	targets []sweepTarget
	cancel  context.CancelFunc
	done    chan struct{}

	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer SweepObserver
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSweepObserver(o SweepObserver) SweeperOption {
	return func(s *Sweeper) { s.observer = o }
}

func NewSweeper(opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		interval: DefaultSweepInterval,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) Interval() time.Duration { return s.interval }

// Register adiciona um store à varredura. name aparece em logs e métricas.
func (s *Sweeper) Register(name string, store domain.Sweepable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, sweepTarget{name: name, store: store})
}

// SweepNow varre todos os stores em now e retorna o total removido.
// Falha em um store não impede a varredura dos demais.
func (s *Sweeper) SweepNow(now time.Time) int {
	s.mu.Lock()
	targets := make([]sweepTarget, len(s.targets))
	copy(targets, s.targets)
	s.mu.Unlock()

	total := 0
	for _, t := range targets {
		removed, err := s.sweepOne(t, now)
		if err != nil {
			s.logger.Error("sweep failed", slog.String("store", t.name), slog.Any("error", err))
			continue
		}
		total += removed
	}
	return total
}

func (s *Sweeper) sweepOne(t sweepTarget, now time.Time) (removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sweeping: %v", r)
		}
	}()

	removed = t.store.Sweep(now)
	remaining := t.store.Len()
	if s.observer != nil {
		s.observer.ObserveSweep(t.name, removed, remaining)
	}
	if removed > 0 {
		s.logger.Debug("swept expired windows",
			slog.String("store", t.name),
			slog.Int("removed", removed),
			slog.Int("remaining", remaining),
		)
	}
	return removed, nil
}

// Start inicia a goroutine de varredura. Chamadas repetidas são ignoradas
// enquanto o sweeper estiver rodando; interval <= 0 desliga a varredura.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	t := time.NewTicker(s.interval)
	go func() {
		defer close(done)
		defer t.Stop()
		defer s.finish(done, cancel)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.SweepNow(s.now())
			}
		}
	}()
}

// finish libera o estado de execução quando o loop termina pelo ctx do
// chamador, permitindo um novo Start sem Stop.
func (s *Sweeper) finish(done chan struct{}, cancel context.CancelFunc) {
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
}

func (s *Sweeper) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stop encerra a goroutine e espera ela terminar.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
