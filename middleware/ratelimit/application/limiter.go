package application

import (
	"time"

	"tauben-gateway/middleware/ratelimit/domain"
)

// Limiter aplica o algoritmo de janela fixa de uma Quota sobre um WindowStore.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A sincronização fica a cargo do store: todo o read-check-write roda dentro
// de WindowStore.Update.
type Limiter struct {
	store domain.WindowStore
	quota domain.Quota
}

// NewLimiter valida a quota; configuração inválida é erro de construção,
// nunca de request.
func NewLimiter(store domain.WindowStore, quota domain.Quota) (*Limiter, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, quota: quota}, nil
}

func (l *Limiter) Quota() domain.Quota { return l.quota }

// Admit consome uma unidade da cota de key se houver saldo.
func (l *Limiter) Admit(key domain.Key, now time.Time) domain.Decision {
	var dec domain.Decision

	l.store.Update(key, func(cur domain.WindowEntry, ok bool) (domain.WindowEntry, bool) {
		if !ok || !cur.Active(now) {
			cur = domain.WindowEntry{Count: 0, ResetAt: now.Add(l.quota.Window)}
		}

		if cur.Count >= l.quota.MaxRequests {
			// bloqueado: a entrada não muda (nem é criada)
			dec = domain.Decision{
				Allowed:    false,
				Limit:      l.quota.MaxRequests,
				Remaining:  0,
				ResetAt:    cur.ResetAt,
				RetryAfter: cur.ResetAt.Sub(now),
			}
			return cur, false
		}

		cur.Count++
		dec = domain.Decision{
			Allowed:   true,
			Limit:     l.quota.MaxRequests,
			Remaining: l.quota.MaxRequests - cur.Count,
			ResetAt:   cur.ResetAt,
		}
		return cur, true
	})

	return dec
}

// Status devolve a situação de key sem consumir cota.
func (l *Limiter) Status(key domain.Key, now time.Time) domain.Decision {
	cur, ok := l.store.Get(key)
	if !ok || !cur.Active(now) {
		cur = domain.WindowEntry{ResetAt: now.Add(l.quota.Window)}
	}

	remaining := l.quota.MaxRequests - cur.Count
	if remaining > 0 {
		return domain.Decision{Allowed: true, Limit: l.quota.MaxRequests, Remaining: remaining, ResetAt: cur.ResetAt}
	}
	return domain.Decision{
		Limit:      l.quota.MaxRequests,
		ResetAt:    cur.ResetAt,
		RetryAfter: cur.ResetAt.Sub(now),
	}
}

// Reset descarta a janela de key.
func (l *Limiter) Reset(key domain.Key) {
	l.store.Delete(key)
}
