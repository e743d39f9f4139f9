package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// Storage settings are checked separately by ValidateStorage.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.API.Token == "" {
		return errors.New("api.token is required")
	}

	if c.Dispatcher.MaxRequestsPerSecond < 1 {
		return errors.New("dispatcher.max_requests_per_second must be >= 1")
	}
	if c.Dispatcher.MinDelay < 0 {
		return errors.New("dispatcher.min_delay must be >= 0")
	}
	if c.Dispatcher.MaxRetries < 0 {
		return errors.New("dispatcher.max_retries must be >= 0")
	}
	if c.Dispatcher.BaseRetryDelay > c.Dispatcher.MaxBackoffDelay {
		return fmt.Errorf("dispatcher.base_retry_delay (%s) cannot exceed max_backoff_delay (%s)",
			c.Dispatcher.BaseRetryDelay, c.Dispatcher.MaxBackoffDelay)
	}

	if c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be > 0")
	}
	if c.Watch.MaxSymbols < 1 {
		return errors.New("watch.max_symbols must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// ValidateStorage checks the database and writer settings needed by commands
// that persist holdings or price history.
func (c *Config) ValidateStorage() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}
	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}
	if c.Writer.BufferSize < 1 {
		return errors.New("writer.buffer_size must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
