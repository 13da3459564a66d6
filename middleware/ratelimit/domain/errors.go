package domain

import "errors"

var (
	// ErrInvalidWindow indica uma janela <= 0 na configuração de uma policy.
	ErrInvalidWindow = errors.New("window must be > 0")

	// ErrInvalidMaxRequests indica uma cota negativa.
	ErrInvalidMaxRequests = errors.New("max requests must be >= 0")
)
