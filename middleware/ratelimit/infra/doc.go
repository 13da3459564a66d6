// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janelas fixas por chave em memória, com lock por shard
//   - Sweeper: remoção periódica de janelas expiradas de um ou mais stores
//   - SemaphorePool: semáforo para limite de concorrência (x/sync/semaphore)
//   - stats: memória, Redis (com circuit breaker e gravação assíncrona) e Prometheus
package infra
