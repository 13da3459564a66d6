package ratelimit

import (
	"fmt"
	"time"

	"tauben-gateway/middleware/ratelimit/domain"
)

// Nomes das policies padrão.
const (
	PolicyGeneral = "general"
	PolicyStrict  = "strict"
	PolicyUpload  = "upload"
	PolicyAuth    = "auth"
	PolicyHealth  = "health"
)

// Policy é imutável depois de construída: nome, quota, resolução de chave e
// (opcionalmente) quem responde ao bloqueio.
type Policy struct {
	name   string
	quota  domain.Quota
	keyFn  KeyFunc
	onDeny DenyHandler
}

type PolicyOption func(*Policy)

func WithKeyFunc(fn KeyFunc) PolicyOption {
	return func(p *Policy) {
		if fn != nil {
			p.keyFn = fn
		}
	}
}

// WithDenyHandler substitui a resposta 429 padrão. O handler assume a
// resposta inteira.
func WithDenyHandler(h DenyHandler) PolicyOption {
	return func(p *Policy) { p.onDeny = h }
}

// NewPolicy valida window/max; sem WithKeyFunc usa DefaultKeyFunc.
func NewPolicy(name string, window time.Duration, maxRequests int, opts ...PolicyOption) (Policy, error) {
	q := domain.Quota{Window: window, MaxRequests: maxRequests}
	if err := q.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %q: %w", name, err)
	}

	p := Policy{name: name, quota: q, keyFn: DefaultKeyFunc()}
	for _, opt := range opts {
		opt(&p)
	}
	return p, nil
}

// MustPolicy é NewPolicy que entra em pânico com configuração inválida.
// Pensado para policies definidas em código.
func MustPolicy(name string, window time.Duration, maxRequests int, opts ...PolicyOption) Policy {
	p, err := NewPolicy(name, window, maxRequests, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy) Name() string             { return p.name }
func (p Policy) Quota() domain.Quota      { return p.quota }
func (p Policy) KeyFn() KeyFunc           { return p.keyFn }
func (p Policy) DenyHandler() DenyHandler { return p.onDeny }

func (p Policy) valid() bool {
	return p.keyFn != nil && p.quota.Validate() == nil
}

func GeneralPolicy() Policy {
	return MustPolicy(PolicyGeneral, 15*time.Minute, 100)
}

// StrictPolicy é para operações sensíveis (ex: DELETE).
func StrictPolicy() Policy {
	return MustPolicy(PolicyStrict, 15*time.Minute, 20)
}

func UploadPolicy() Policy {
	return MustPolicy(PolicyUpload, 5*time.Minute, 10)
}

// AuthPolicy limita tentativas de login por endereço, independente de credencial.
func AuthPolicy() Policy {
	return MustPolicy(PolicyAuth, time.Minute, 5, WithKeyFunc(AddressKeyFunc("auth")))
}

func HealthPolicy() Policy {
	return MustPolicy(PolicyHealth, time.Minute, 30, WithKeyFunc(AddressKeyFunc("health")))
}

// DefaultPolicies retorna as policies padrão indexadas pelo nome.
func DefaultPolicies() map[string]Policy {
	out := make(map[string]Policy, 5)
	for _, p := range []Policy{GeneralPolicy(), StrictPolicy(), UploadPolicy(), AuthPolicy(), HealthPolicy()} {
		out[p.name] = p
	}
	return out
}
