package application

import (
	"context"
	"errors"
	"time"

	"tauben-gateway/middleware/ratelimit/domain"
)

var (
	// ErrNoSlot indica que o AcquireTimeout estourou sem vaga livre.
	ErrNoSlot = errors.New("no concurrency slot available")
	// ErrCanceled indica que o ctx do chamador encerrou antes da vaga (ex: cliente desconectou).
	ErrCanceled = errors.New("acquire canceled")
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Se AcquireTimeout <= 0, espera indefinidamente (até ctx cancelar).
//   - Se AcquireTimeout > 0, espera até o timeout.
//
// Em caso de erro nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), err error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Join(ErrCanceled, ctx.Err())
	}
	return nil, ErrNoSlot
}
