package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"dev"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// PostgresDSN enables the terminal-job archive when set.
	PostgresDSN   string `env:"POSTGRES_DSN"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	CacheDir        string `env:"CACHE_DIR" envDefault:"data/audio-cache"`
	CacheMaxAgeDays int    `env:"CACHE_MAX_AGE_DAYS" envDefault:"30"`

	DedupTTLSec   int `env:"DEDUP_TTL_SEC" envDefault:"3600"`
	RatePerMinute int `env:"RATE_PER_MINUTE" envDefault:"60"`

	MaxRetries       int `env:"MAX_RETRIES" envDefault:"3"`
	RetryBaseDelayMS int `env:"RETRY_BASE_DELAY_MS" envDefault:"2000"`
	RetrySweepMS     int `env:"RETRY_SWEEP_MS" envDefault:"1000"`

	PriorityWorkers int `env:"PRIORITY_WORKERS" envDefault:"2"`
	StandardWorkers int `env:"STANDARD_WORKERS" envDefault:"4"`
	BatchWorkers    int `env:"BATCH_WORKERS" envDefault:"2"`
	HeartbeatTTLSec int `env:"HEARTBEAT_TTL_SEC" envDefault:"15"`

	ProviderURL        string `env:"PROVIDER_URL,notEmpty"`
	ProviderAPIKey     string `env:"PROVIDER_API_KEY"`
	ProviderPollMS     int    `env:"PROVIDER_POLL_MS" envDefault:"500"`
	ProviderMaxWaitSec int    `env:"PROVIDER_MAX_WAIT_SEC" envDefault:"120"`

	ErrorRateCeiling  float64 `env:"ERROR_RATE_CEILING" envDefault:"0.1"`
	QueueDepthCeiling int64   `env:"QUEUE_DEPTH_CEILING" envDefault:"100"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

func (c Config) DedupTTL() time.Duration       { return time.Duration(c.DedupTTLSec) * time.Second }
func (c Config) RetryBaseDelay() time.Duration { return time.Duration(c.RetryBaseDelayMS) * time.Millisecond }
func (c Config) RetrySweep() time.Duration     { return time.Duration(c.RetrySweepMS) * time.Millisecond }
func (c Config) HeartbeatTTL() time.Duration   { return time.Duration(c.HeartbeatTTLSec) * time.Second }
func (c Config) ProviderPoll() time.Duration   { return time.Duration(c.ProviderPollMS) * time.Millisecond }
func (c Config) ProviderMaxWait() time.Duration {
	return time.Duration(c.ProviderMaxWaitSec) * time.Second
}
