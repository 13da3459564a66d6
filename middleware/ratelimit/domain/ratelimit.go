package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"fmt"
	"time"
)

// Key é a identidade de um cliente para fins de cota (ex: "api:<token>",
// "ip:<addr>:<rota>"). Igualdade é igualdade exata de string.
type Key string

// Quota é a parte numérica (imutável) de uma policy.
type Quota struct {
	Window      time.Duration
	MaxRequests int
}

func (q Quota) Validate() error {
	if q.Window <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidWindow, q.Window)
	}
	if q.MaxRequests < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxRequests, q.MaxRequests)
	}
	return nil
}

// WindowEntry é a janela corrente de uma chave.
type WindowEntry struct {
	Count   int
	ResetAt time.Time
}

// Active informa se a janela ainda vale em now. Uma entrada inativa deve ser
// tratada como ausente.
func (e WindowEntry) Active(now time.Time) bool {
	return e.ResetAt.After(now)
}

// WindowStore guarda uma WindowEntry por chave.
//
// Update executa fn com a entrada atual (ok=false se ausente) sob o lock da
// chave; se fn retornar store=true, o valor retornado substitui a entrada.
// É a única forma de fazer read-check-write atômico.
type WindowStore interface {
	Update(key Key, fn func(cur WindowEntry, ok bool) (next WindowEntry, store bool))
	Get(key Key) (WindowEntry, bool)
	Delete(key Key)
}

// Sweepable é algo de onde o sweeper consegue remover entradas expiradas.
type Sweepable interface {
	// Sweep remove toda entrada com ResetAt <= now e retorna quantas removeu.
	Sweep(now time.Time) int
	Len() int
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter é o tempo até ResetAt quando bloqueado; 0 quando permitido.
	RetryAfter time.Duration
}

// RetryAfterSeconds arredonda RetryAfter para cima, em segundos inteiros.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed || d.RetryAfter <= 0 {
		return 0
	}
	secs := d.RetryAfter / time.Second
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return int(secs)
}
