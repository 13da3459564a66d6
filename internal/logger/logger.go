// Package logger monta o *slog.Logger da aplicação sobre zap.
//
// Produção usa o encoder JSON do zap; desenvolvimento usa o console encoder
// com níveis coloridos. O código da aplicação só conhece slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Production bool
	Level      string // debug, info, warn, error
	Service    string
}

// New retorna o logger e a função de flush (chame no fim do processo).
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var cfg zap.Config
	if opts.Production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}
	if opts.Service != "" {
		zl = zl.With(zap.String("service", opts.Service))
	}

	return slog.New(zapslog.NewHandler(zl.Core())), zl.Sync, nil
}

// NewWriter cria um logger JSON escrevendo em w. Usado em testes.
func NewWriter(w io.Writer, level zapcore.Level) *slog.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return slog.New(zapslog.NewHandler(core))
}

func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}
