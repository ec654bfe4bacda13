package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateConsole(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMonitor() error {
	if c.Monitor.IntervalMS < 50 {
		return errors.New("monitor.interval_ms must be at least 50")
	}
	switch c.Monitor.Enumerator {
	case EnumeratorSystem, EnumeratorUdev:
	default:
		return fmt.Errorf("monitor.enumerator: unsupported value %q (want %q or %q)", c.Monitor.Enumerator, EnumeratorSystem, EnumeratorUdev)
	}
	return nil
}

func (c *Config) validateSession() error {
	switch c.Session.Driver {
	case DriverSystem, DriverTermios:
	default:
		return fmt.Errorf("session.driver: unsupported value %q (want %q or %q)", c.Session.Driver, DriverSystem, DriverTermios)
	}
	if c.Session.BaudRate <= 0 {
		return errors.New("session.baud_rate must be positive")
	}
	if c.Session.ReadTimeoutMS <= 0 {
		return errors.New("session.read_timeout_ms must be positive")
	}
	if c.Session.IdlePauseMS < 0 {
		return errors.New("session.idle_pause_ms must not be negative")
	}
	if c.Session.ChunkSize <= 0 || c.Session.ChunkSize > maxChunkSize {
		return fmt.Errorf("session.chunk_size must be between 1 and %d", maxChunkSize)
	}
	return nil
}

func (c *Config) validateConsole() error {
	if _, err := LookupEncoding(c.Console.Encoding); err != nil {
		return fmt.Errorf("console.encoding: unsupported value %q", c.Console.Encoding)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
