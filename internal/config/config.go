package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	HTTPServer  `yaml:"http_server"`
	Booking     `yaml:"booking"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

type Booking struct {
	// GuardWindow blocks cancel/reschedule this close to the start time.
	GuardWindow time.Duration `yaml:"guard_window" env-default:"4h"`
	// LockTTL bounds how long a crashed request may keep a slot key locked.
	LockTTL time.Duration `yaml:"lock_ttl" env-default:"10s"`
	// IdempotencyTTL bounds how long a consumed token suppresses duplicates.
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env-default:"24h"`
	// SourceTimeout caps override/holiday/assignment lookups; on expiry the
	// date is treated as closed rather than blocking the booking path.
	SourceTimeout time.Duration `yaml:"source_timeout" env-default:"2s"`
	CommitRetries  int           `yaml:"commit_retries" env-default:"3"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" env-default:"50ms"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env-default:"25"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env-default:"50"`
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}
