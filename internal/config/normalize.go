package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if value, ok := os.LookupEnv("SERIALWATCH_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	if value, ok := os.LookupEnv("SERIALWATCH_LOG_FORMAT"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Format = value
	}

	c.Monitor.Enumerator = lowerOr(c.Monitor.Enumerator, defaultEnumerator)
	c.Session.Driver = lowerOr(c.Session.Driver, defaultDriver)
	c.Console.Encoding = lowerOr(c.Console.Encoding, defaultEncoding)
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)

	if c.Monitor.IntervalMS == 0 {
		c.Monitor.IntervalMS = defaultMonitorIntervalMS
	}
	if c.Session.BaudRate == 0 {
		c.Session.BaudRate = defaultBaudRate
	}
	if c.Session.ReadTimeoutMS == 0 {
		c.Session.ReadTimeoutMS = defaultReadTimeoutMS
	}
	if c.Session.ChunkSize == 0 {
		c.Session.ChunkSize = defaultChunkSize
	}
	if strings.TrimSpace(c.Session.LockDir) == "" {
		c.Session.LockDir = defaultLockDir
	}

	lockDir, err := expandPath(strings.TrimSpace(c.Session.LockDir))
	if err != nil {
		return err
	}
	c.Session.LockDir = lockDir

	outputs := c.Logging.Output[:0]
	for _, out := range c.Logging.Output {
		out = strings.TrimSpace(out)
		switch out {
		case "":
			continue
		case "stdout", "stderr":
		default:
			if out, err = expandPath(out); err != nil {
				return err
			}
		}
		outputs = append(outputs, out)
	}
	c.Logging.Output = outputs
	return nil
}

func lowerOr(value, fallback string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
