package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tauben-gateway/middleware/ratelimit/domain"
)

// Formato de X-RateLimit-Reset: ISO-8601 em UTC com milissegundos.
const resetLayout = "2006-01-02T15:04:05.000Z"

// DenyHandler responde a um request bloqueado. Quando configurado na Policy,
// é dono da resposta inteira (status, headers e corpo).
type DenyHandler interface {
	ServeDeny(w http.ResponseWriter, r *http.Request, dec domain.Decision)
}

type DenyHandlerFunc func(w http.ResponseWriter, r *http.Request, dec domain.Decision)

func (f DenyHandlerFunc) ServeDeny(w http.ResponseWriter, r *http.Request, dec domain.Decision) {
	f(w, r, dec)
}

type denyBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// JSONDenyHandler é a resposta padrão: 429 com headers de quota e corpo JSON.
func JSONDenyHandler() DenyHandler {
	return DenyHandlerFunc(func(w http.ResponseWriter, _ *http.Request, dec domain.Decision) {
		retry := dec.RetryAfterSeconds()

		h := w.Header()
		h.Set("Retry-After", strconv.Itoa(retry))
		h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
		h.Set("X-RateLimit-Remaining", "0")
		h.Set("X-RateLimit-Reset", dec.ResetAt.UTC().Format(resetLayout))
		h.Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)

		_ = json.NewEncoder(w).Encode(denyBody{
			Error:      "RATE_LIMIT_EXCEEDED",
			Message:    "Rate limit exceeded. Try again in " + strconv.Itoa(retry) + " seconds.",
			RetryAfter: retry,
		})
	})
}

func writeAllowHeaders(w http.ResponseWriter, dec domain.Decision, window time.Duration) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	h.Set("X-RateLimit-Window", formatSeconds(window)+"s")
}

// formatSeconds evita notação científica e zeros à direita ("900", "0.5").
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
