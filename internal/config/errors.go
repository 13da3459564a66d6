package config

import "errors"

var (
	// ErrParsingConfig indica falha no parse das variáveis de ambiente.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig indica valores que passaram no parse mas não fazem sentido.
	ErrInvalidConfig = errors.New("invalid config")
)
