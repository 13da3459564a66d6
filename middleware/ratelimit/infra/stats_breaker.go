package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"tauben-gateway/middleware/ratelimit/domain"
)

// BreakerStatsStore protege um StatsStore remoto com circuit breaker:
// depois de maxFailures falhas seguidas as gravações são descartadas até timeout.
type BreakerStatsStore struct {
	next    domain.StatsStore
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStatsStore(name string, next domain.StatsStore, timeout time.Duration, maxFailures uint32) *BreakerStatsStore {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &BreakerStatsStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Record(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", b.breaker.Name(), err)
	}
	return nil
}

func (b *BreakerStatsStore) State() gobreaker.State { return b.breaker.State() }
