package infra

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"tauben-gateway/middleware/ratelimit/domain"
)

type semaphorePool struct {
	sem *semaphore.Weighted
}

// NewSemaphorePool cria um pool de max vagas sobre x/sync/semaphore.
func NewSemaphorePool(max int64) domain.SlotPool {
	return &semaphorePool{sem: semaphore.NewWeighted(max)}
}

func (p *semaphorePool) Acquire(ctx context.Context) (func(), bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { p.sem.Release(1) }) }, true
}
