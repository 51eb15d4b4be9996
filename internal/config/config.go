// Package config loads the runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Backend selects where the storefront persists its data.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP struct {
		Addr string `env:"HTTP_ADDR,default=:8080"`
	}

	Backend string `env:"STORAGE_BACKEND,default=supabase"`

	Supabase struct {
		URL     string `env:"SUPABASE_URL"`
		AnonKey string `env:"SUPABASE_ANON_KEY"`
		// Realtime enables the prescription status feed.
		Realtime bool `env:"SUPABASE_REALTIME,default=true"`
		// PrescriptionBucket is the storage bucket for uploaded documents.
		PrescriptionBucket string `env:"SUPABASE_PRESCRIPTION_BUCKET,default=prescriptions"`
	}

	Postgres struct {
		DSN string `env:"POSTGRES_DSN"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,default=info"`
	}
}

// Load reads .env when present, then decodes the environment. Validation
// only covers the selected backend; an unset POSTGRES_DSN is fine while the
// gateway backend is active.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendSupabase:
		if cfg.Supabase.URL == "" || cfg.Supabase.AnonKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase backend")
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return &cfg, nil
}
