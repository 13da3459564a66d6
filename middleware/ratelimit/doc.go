// Package ratelimit fornece adapters HTTP (net/http) para o controle de
// admissão por janela fixa e para o limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (Admit/Status/Reset, acquire/timeout) sem net/http
//   - infra: implementações concretas (store em shards, sweeper, semáforo, stats)
//   - ratelimit (este pacote): policies, resolução de chave, middlewares e headers
//
// Fluxo no gateway:
//
//  1. ClientIP resolve o endereço do cliente e guarda no contexto
//  2. A KeyFunc da Policy monta a identidade ("api:...", "ip:...", "auth:...")
//  3. O Limiter da policy decide contra o store exclusivo dela
//  4. Permitido: headers X-RateLimit-* e segue para o próximo handler
//  5. Bloqueado: DenyHandler da policy, ou 429 JSON por padrão
//
// Cada Policy deve ter seu próprio store; o Sweeper (infra) remove as janelas
// expiradas de todos eles.
package ratelimit
