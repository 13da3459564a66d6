package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient é a identidade usada quando nada identifica o cliente.
// Requests sem identidade continuam passando pelo gate (fail-closed).
const UnknownClient = "unknown"

// KeyFunc resolve a identidade de um request. Deve ser total: nunca entra em
// pânico. Resultado vazio é tratado como UnknownClient pelo middleware.
type KeyFunc func(r *http.Request) string

// Credential retorna o X-API-Key (trim) ou o token de um
// "Authorization: Bearer <token>". Retorna "" se não houver nenhum.
func Credential(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearer = "bearer "
	if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
		return strings.TrimSpace(auth[len(bearer):])
	}
	return ""
}

// ClientAddress retorna o endereço resolvido por ClientIP; sem o middleware,
// cai para o host de RemoteAddr.
func ClientAddress(r *http.Request) string {
	if ip, ok := clientIPFromContext(r.Context()); ok {
		return ip
	}
	if host := remoteHost(r.RemoteAddr); host != "" {
		return host
	}
	return UnknownClient
}

// DefaultKeyFunc: "api:<credencial>" quando há credencial, senão
// "ip:<endereço>:<path>".
func DefaultKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if c := Credential(r); c != "" {
			return "api:" + c
		}

		path := "/"
		if r.URL != nil && r.URL.Path != "" {
			path = r.URL.Path
		}
		return "ip:" + ClientAddress(r) + ":" + path
	}
}

// AddressKeyFunc identifica só pelo endereço: "<prefix>:<endereço>".
func AddressKeyFunc(prefix string) KeyFunc {
	return func(r *http.Request) string {
		return prefix + ":" + ClientAddress(r)
	}
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}
