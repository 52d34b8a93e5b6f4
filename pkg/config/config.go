package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT" env-default:"5432"`
		Host    string `env:"POSTGRES_HOST" env-default:"localhost"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	Redis struct {
		Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" env-default:"0"`
	}
	Cache struct {
		Backend         string        `env:"CACHE_BACKEND" env-default:"badger"`
		Path            string        `env:"CACHE_PATH" env-default:"./feed-cache"`
		FreshnessWindow time.Duration `env:"CACHE_FRESHNESS_WINDOW" env-default:"24h"`
		CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" env-default:"6h"`
	}
	Feed struct {
		PageSize          int           `env:"FEED_PAGE_SIZE" env-default:"10"`
		FanOutLimit       int           `env:"FEED_FANOUT_LIMIT" env-default:"10"`
		OverFetchFactor   int           `env:"FEED_OVERFETCH_FACTOR" env-default:"3"`
		ReconnectDebounce time.Duration `env:"FEED_RECONNECT_DEBOUNCE" env-default:"300ms"`
		MutationRate      int           `env:"FEED_MUTATION_RATE" env-default:"5"`
		MutationBurst     int           `env:"FEED_MUTATION_BURST" env-default:"10"`
	}
	Probe struct {
		URL      string        `env:"PROBE_URL"`
		Interval time.Duration `env:"PROBE_INTERVAL" env-default:"10s"`
	}
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}

// GetDSN returns the Postgres connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d sslmode=%s",
		c.Postgres.Name, c.Postgres.User, c.Postgres.Pass, c.Postgres.Host, c.Postgres.Port, c.Postgres.SslMode)
}
