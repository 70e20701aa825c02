package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Storefront struct {
	Port       string `env:"PORT" envDefault:"8080"`
	CatalogURL string `env:"CATALOG_URL" envDefault:"http://localhost:8082"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	StaleWhileRevalidate bool          `env:"CACHE_STALE_WHILE_REVALIDATE" envDefault:"false"`

	MutationLimitPerMin int    `env:"MUTATION_LIMIT_PER_MIN" envDefault:"30"`
	MetricsToken        string `env:"METRICS_TOKEN"`
}

type Catalog struct {
	Port     string `env:"PORT" envDefault:"8082"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects Postgres storage; empty keeps products in memory.
	DatabaseURL  string `env:"DATABASE_URL"`
	MetricsToken string `env:"METRICS_TOKEN"`
}

func LoadStorefront() (Storefront, error) {
	var cfg Storefront
	if err := load(&cfg); err != nil {
		return Storefront{}, err
	}
	if cfg.CacheTTL <= 0 {
		return Storefront{}, fmt.Errorf("CACHE_TTL must be positive, got %s", cfg.CacheTTL)
	}
	return cfg, nil
}

func LoadCatalog() (Catalog, error) {
	var cfg Catalog
	if err := load(&cfg); err != nil {
		return Catalog{}, err
	}
	return cfg, nil
}

func load(target any) error {
	// .env is a local development convenience; real deployments use the environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
