package config

import "time"

// Config is the root configuration for a tracker instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Watch      WatchConfig      `yaml:"watch"`
	Database   DBConfig         `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Writer     WriterConfig     `yaml:"writer"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this tracker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds quote API settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DispatcherConfig holds request pacing and retry settings.
type DispatcherConfig struct {
	MaxRequestsPerSecond int           `yaml:"max_requests_per_second"`
	MinDelay             time.Duration `yaml:"min_delay"`
	MaxRetries           int           `yaml:"max_retries"`
	BaseRetryDelay       time.Duration `yaml:"base_retry_delay"`
	MaxBackoffDelay      time.Duration `yaml:"max_backoff_delay"`
	Jitter               time.Duration `yaml:"jitter"`
}

// WatchConfig holds symbol watch settings.
type WatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxSymbols   int           `yaml:"max_symbols"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the latest-price cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// WriterConfig holds price history batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
