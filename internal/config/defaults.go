package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPIBaseURL           = "https://finnhub.io/api/v1"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRequestsPerSecond = 20
	DefaultMinDelay             = 100 * time.Millisecond
	DefaultMaxRetries           = 3
	DefaultBaseRetryDelay       = 1 * time.Second
	DefaultMaxBackoffDelay      = 30 * time.Second
	DefaultJitter               = 1 * time.Second
	DefaultPollInterval         = 15 * time.Second
	DefaultMaxSymbols           = 25
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultRedisTTL             = 24 * time.Hour
	DefaultBatchSize            = 100
	DefaultFlushInterval        = 5 * time.Second
	DefaultBufferSize           = 1024
	DefaultServerPort           = 8080
	DefaultReadTimeout          = 10 * time.Second
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Dispatcher defaults
	if c.Dispatcher.MaxRequestsPerSecond == 0 {
		c.Dispatcher.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if c.Dispatcher.MinDelay == 0 {
		c.Dispatcher.MinDelay = DefaultMinDelay
	}
	if c.Dispatcher.MaxRetries == 0 {
		c.Dispatcher.MaxRetries = DefaultMaxRetries
	}
	if c.Dispatcher.BaseRetryDelay == 0 {
		c.Dispatcher.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if c.Dispatcher.MaxBackoffDelay == 0 {
		c.Dispatcher.MaxBackoffDelay = DefaultMaxBackoffDelay
	}
	if c.Dispatcher.Jitter == 0 {
		c.Dispatcher.Jitter = DefaultJitter
	}

	// Watch defaults
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = DefaultPollInterval
	}
	if c.Watch.MaxSymbols == 0 {
		c.Watch.MaxSymbols = DefaultMaxSymbols
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
