package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIP resolve o endereço do cliente uma vez por request e guarda no
// contexto, onde ClientAddress o encontra.
//
// Com trustProxy=true usa o primeiro IP válido de X-Forwarded-For (cliente
// original), depois X-Real-IP. Só ligue atrás de um proxy que sobrescreve
// esses headers: caso contrário o cliente escolhe a própria identidade.
func ClientIP(trustProxy bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// WithClientIP grava ip no contexto (útil em testes e em adapters que não são HTTP).
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}

func resolveClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	if host := remoteHost(r.RemoteAddr); host != "" {
		return host
	}
	return UnknownClient
}
