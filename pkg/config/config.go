package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for pulseguard-core
type Config struct {
	API       APIConfig       `yaml:"api" json:"api"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Probe     ProbeConfig     `yaml:"probe" json:"probe"`
	ACME      ACMEConfig      `yaml:"acme" json:"acme"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
	File    string `yaml:"file" json:"file"`
}

// APIConfig configures the thin Consumed-API HTTP surface (cmd/pulseguard-core).
type APIConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	Logs LogConfig `yaml:"logs" json:"logs"`
}

type DatabaseConfig struct {
	Path    string `yaml:"path" json:"path"`
	WALMode bool   `yaml:"wal_mode" json:"wal_mode"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// RedisConfig backs the Lock and Queue backends (spec §6).
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

// SchedulerConfig tunes master election, worker concurrency, and the sentinel sweep (spec §4.H).
type SchedulerConfig struct {
	NodeName             string `yaml:"node_name" json:"node_name"`
	LockTTLSeconds       int    `yaml:"lock_ttl_seconds" json:"lock_ttl_seconds"`
	WorkerConcurrency    int    `yaml:"worker_concurrency" json:"worker_concurrency"`
	JobLockSeconds       int    `yaml:"job_lock_seconds" json:"job_lock_seconds"`
	SentinelIntervalSecs int    `yaml:"sentinel_interval_seconds" json:"sentinel_interval_seconds"`
	ForceMaster          bool   `yaml:"force_master" json:"force_master"`
}

// ProbeConfig gives process-wide defaults for per-monitor probe settings (spec §3).
type ProbeConfig struct {
	DefaultTimeoutMs     int `yaml:"default_timeout_ms" json:"default_timeout_ms"`
	DefaultDegradedMs    int `yaml:"default_degraded_ms" json:"default_degraded_ms"`
	DefaultSSLExpiryDays int `yaml:"default_ssl_expiry_days" json:"default_ssl_expiry_days"`
	MaxRedirects         int `yaml:"max_redirects" json:"max_redirects"`
	MaxBodyBytes         int `yaml:"max_body_bytes" json:"max_body_bytes"`
	OCSPTimeoutSeconds   int `yaml:"ocsp_timeout_seconds" json:"ocsp_timeout_seconds"`
}

type ACMEConfig struct {
	DirectoryURL  string `yaml:"directory_url" json:"directory_url"`
	Email         string `yaml:"email" json:"email"`
	CacheDir      string `yaml:"cache_dir" json:"cache_dir"`
	ChallengeType string `yaml:"challenge_type" json:"challenge_type"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
}

// Global configuration instance
var globalConfig *Config

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	environment := os.Getenv("PULSEGUARD_ENV")
	if environment == "" {
		environment = "development"
	}

	configPath := fmt.Sprintf("./configs/%s.yaml", environment)

	config := &Config{}

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	} else {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	overrideWithEnv(config)
	applyDefaults(config, environment)

	if err := validate(config, environment); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration instance
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not loaded, call Load() first")
	}
	return globalConfig
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if val := os.Getenv("PULSEGUARD_API_HOST"); val != "" {
		config.API.Host = val
	}
	if val := os.Getenv("PULSEGUARD_API_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.API.Port = port
		}
	}
	if val := os.Getenv("PULSEGUARD_DB_PATH"); val != "" {
		config.Database.Path = val
	}
	if val := os.Getenv("PULSEGUARD_REDIS_ADDR"); val != "" {
		config.Redis.Addr = val
	}
	if val := os.Getenv("PULSEGUARD_REDIS_PASSWORD"); val != "" {
		config.Redis.Password = val
	}
	if val := os.Getenv("WORKER_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Scheduler.WorkerConcurrency = n
		}
	}
	if val := os.Getenv("FORCE_MASTER"); val != "" {
		// Development convenience only; production must disable it (spec §9 open question).
		if os.Getenv("PULSEGUARD_ENV") != "production" {
			config.Scheduler.ForceMaster = strings.ToLower(val) == "true"
		}
	}
	if val := os.Getenv("PULSEGUARD_ACME_EMAIL"); val != "" {
		config.ACME.Email = val
	}
	if val := os.Getenv("PULSEGUARD_ACME_ENABLED"); val != "" {
		config.ACME.Enabled = strings.ToLower(val) == "true"
	}
}

// applyDefaults fills in the clamp-sensitive scheduler defaults described in spec §5.
func applyDefaults(config *Config, environment string) {
	if config.Scheduler.WorkerConcurrency <= 0 {
		config.Scheduler.WorkerConcurrency = clamp(2*runtime.NumCPU(), 2, 20)
	} else {
		config.Scheduler.WorkerConcurrency = clamp(config.Scheduler.WorkerConcurrency, 2, 20)
	}
	if config.Scheduler.LockTTLSeconds <= 0 {
		config.Scheduler.LockTTLSeconds = 30
	}
	if config.Scheduler.JobLockSeconds <= 0 {
		config.Scheduler.JobLockSeconds = 180
	}
	if config.Scheduler.SentinelIntervalSecs <= 0 {
		config.Scheduler.SentinelIntervalSecs = 300
	}
	if config.Scheduler.NodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "pulseguard-node"
		}
		config.Scheduler.NodeName = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	if environment == "production" {
		config.Scheduler.ForceMaster = false
	}

	if config.Probe.DefaultTimeoutMs <= 0 {
		config.Probe.DefaultTimeoutMs = 30000
	}
	if config.Probe.DefaultDegradedMs <= 0 {
		config.Probe.DefaultDegradedMs = 2000
	}
	if config.Probe.DefaultSSLExpiryDays <= 0 {
		config.Probe.DefaultSSLExpiryDays = 14
	}
	if config.Probe.MaxRedirects <= 0 {
		config.Probe.MaxRedirects = 10
	}
	if config.Probe.MaxBodyBytes <= 0 {
		config.Probe.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if config.Probe.OCSPTimeoutSeconds <= 0 {
		config.Probe.OCSPTimeoutSeconds = 5
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// validate validates the configuration
func validate(config *Config, environment string) error {
	if config.API.Host == "" {
		return fmt.Errorf("api.host cannot be empty")
	}
	if config.API.Port <= 0 || config.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d", config.API.Port)
	}
	if config.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if config.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty")
	}
	if environment == "production" && config.Scheduler.ForceMaster {
		return fmt.Errorf("scheduler.force_master must not be enabled in production")
	}

	return nil
}

// fileExists checks if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
