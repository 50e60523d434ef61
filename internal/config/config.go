// Package config loads and validates the dispatch layer's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// Worker holds per-process worker settings; one process runs exactly one quality class.
type Worker struct {
	Quality            string        `mapstructure:"quality"`
	WorkerID           string        `mapstructure:"worker_id"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTTL       time.Duration `mapstructure:"heartbeat_ttl"`
	DequeueTimeout     time.Duration `mapstructure:"dequeue_timeout"`
	NFESteps           int           `mapstructure:"nfe_steps"`
}

type Gateway struct {
	Addr              string        `mapstructure:"addr"`
	DefaultJobTimeout time.Duration `mapstructure:"default_job_timeout"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
	RateLimitPerSec   int           `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
}

type Queue struct {
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	PollEvery time.Duration `mapstructure:"poll_every"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type VoiceSamples struct {
	Dir       string `mapstructure:"dir"`
	MaxUnnamed int   `mapstructure:"max_unnamed"`
}

type Audit struct {
	Enabled         bool   `mapstructure:"enabled"`
	LogPath         string `mapstructure:"log_path"`
	RotateSizeMB    int    `mapstructure:"rotate_size_mb"`
	MaxBackups      int    `mapstructure:"max_backups"`
	Compress        bool   `mapstructure:"compress"`
	FilterSensitive bool   `mapstructure:"filter_sensitive"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type Observability struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

type Config struct {
	Redis          Redis          `mapstructure:"redis"`
	Worker         Worker         `mapstructure:"worker"`
	Gateway        Gateway        `mapstructure:"gateway"`
	Queue          Queue          `mapstructure:"queue"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	VoiceSamples   VoiceSamples   `mapstructure:"voice_samples"`
	Audit          Audit          `mapstructure:"audit"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:         "localhost:6379",
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MaxRetries:   3,
		},
		Worker: Worker{
			Quality:           "high",
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTTL:      60 * time.Second,
			DequeueTimeout:    5 * time.Second,
			NFESteps:          32,
		},
		Gateway: Gateway{
			Addr:              ":8000",
			DefaultJobTimeout: 120 * time.Second,
			TrustProxyHeaders: false,
			RateLimitPerSec:   0,
			RateLimitBurst:    20,
		},
		Queue: Queue{
			ResultTTL: 300 * time.Second,
			PollEvery: 100 * time.Millisecond,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       5,
		},
		VoiceSamples: VoiceSamples{
			Dir:        "./data/voice-samples",
			MaxUnnamed: 3,
		},
		Audit: Audit{
			Enabled:         true,
			LogPath:         "./data/audit/audit.log",
			RotateSizeMB:    50,
			MaxBackups:      5,
			Compress:        true,
			FilterSensitive: true,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     TracingConfig{Enabled: false},
		},
	}
}

// Load reads configuration from a YAML file, applying environment overrides
// (dots replaced by underscores, e.g. REDIS_ADDR) on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("worker.quality", def.Worker.Quality)
	v.SetDefault("worker.heartbeat_interval", def.Worker.HeartbeatInterval)
	v.SetDefault("worker.heartbeat_ttl", def.Worker.HeartbeatTTL)
	v.SetDefault("worker.dequeue_timeout", def.Worker.DequeueTimeout)
	v.SetDefault("worker.nfe_steps", def.Worker.NFESteps)

	v.SetDefault("gateway.addr", def.Gateway.Addr)
	v.SetDefault("gateway.default_job_timeout", def.Gateway.DefaultJobTimeout)
	v.SetDefault("gateway.trust_proxy_headers", def.Gateway.TrustProxyHeaders)
	v.SetDefault("gateway.rate_limit_per_sec", def.Gateway.RateLimitPerSec)
	v.SetDefault("gateway.rate_limit_burst", def.Gateway.RateLimitBurst)

	v.SetDefault("queue.result_ttl", def.Queue.ResultTTL)
	v.SetDefault("queue.poll_every", def.Queue.PollEvery)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("voice_samples.dir", def.VoiceSamples.Dir)
	v.SetDefault("voice_samples.max_unnamed", def.VoiceSamples.MaxUnnamed)

	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.log_path", def.Audit.LogPath)
	v.SetDefault("audit.rotate_size_mb", def.Audit.RotateSizeMB)
	v.SetDefault("audit.max_backups", def.Audit.MaxBackups)
	v.SetDefault("audit.compress", def.Audit.Compress)
	v.SetDefault("audit.filter_sensitive", def.Audit.FilterSensitive)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.Quality != "high" && cfg.Worker.Quality != "fast" {
		return fmt.Errorf("worker.quality must be \"high\" or \"fast\", got %q", cfg.Worker.Quality)
	}
	if cfg.Worker.HeartbeatTTL < cfg.Worker.HeartbeatInterval {
		return fmt.Errorf("worker.heartbeat_ttl must be >= worker.heartbeat_interval")
	}
	if cfg.Worker.DequeueTimeout <= 0 {
		return fmt.Errorf("worker.dequeue_timeout must be > 0")
	}
	if cfg.Gateway.RateLimitPerSec < 0 {
		return fmt.Errorf("gateway.rate_limit_per_sec must be >= 0")
	}
	if cfg.Queue.ResultTTL <= 0 {
		return fmt.Errorf("queue.result_ttl must be > 0")
	}
	if cfg.VoiceSamples.MaxUnnamed < 0 {
		return fmt.Errorf("voice_samples.max_unnamed must be >= 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
