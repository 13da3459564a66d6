// Package config carrega a configuração do gateway a partir de variáveis de
// ambiente (opcionalmente vindas de arquivos .env).
//
// As policies de rate limit não são configuráveis aqui: são definidas em
// código (ratelimit.DefaultPolicies).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL,required"`

	RateEnabled   bool          `env:"RATE_ENABLED" envDefault:"true"`
	TrustXFF      bool          `env:"TRUST_XFF" envDefault:"false"`
	SweepInterval time.Duration `env:"RATE_SWEEP_INTERVAL" envDefault:"5m"`

	ConcurrencyMax     int           `env:"CONCURRENCY_MAX" envDefault:"100"`
	ConcurrencyTimeout time.Duration `env:"CONCURRENCY_TIMEOUT" envDefault:"0s"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	Stats StatsConfig `envPrefix:"RATE_STATS_"`
}

// StatsConfig controla a gravação de estatísticas de decisão no Redis.
type StatsConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"false"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	Prefix        string        `env:"PREFIX" envDefault:"ratelimit:stats"`
	TTL           time.Duration `env:"TTL" envDefault:"24h"`
	Bucket        string        `env:"BUCKET" envDefault:"minute"`
	TrackKeys     bool          `env:"TRACK_KEYS" envDefault:"false"`
	Buffer        int           `env:"BUFFER" envDefault:"1024"`
	BreakerAfter  uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerReset  time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load lê os arquivos .env informados (ausentes são ignorados), faz o parse
// do ambiente e valida o resultado.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("UPSTREAM_URL must be an absolute URL, got %q", c.UpstreamURL))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("RATE_SWEEP_INTERVAL must be >= 0"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}
