// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Limiter.Admit(key, now) retorna uma Decision (allow/deny + cota restante).
package application
