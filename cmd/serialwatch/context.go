package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/config"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger builds the process logger writing to w, normally the command's
// stderr so that stdout carries only port data.
func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Output,
	}
	if len(opts.OutputPaths) == 0 {
		opts.Writer = w
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (c *commandContext) monitorOptions(logger *slog.Logger) (serial.Enumerator, []serial.MonitorOption, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	enum, err := serial.EnumeratorFor(cfg.Monitor.Enumerator)
	if err != nil {
		return nil, nil, err
	}
	return enum, []serial.MonitorOption{
		serial.WithInterval(cfg.MonitorInterval()),
		serial.WithMonitorLogger(logger),
	}, nil
}

func (c *commandContext) sessionOptions(logger *slog.Logger) ([]serial.SessionOption, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opener, err := serial.OpenerFor(cfg.Session.Driver)
	if err != nil {
		return nil, err
	}
	return []serial.SessionOption{
		serial.WithOpener(opener),
		serial.WithReadTimeout(cfg.ReadTimeout()),
		serial.WithIdlePause(cfg.IdlePause()),
		serial.WithChunkSize(cfg.Session.ChunkSize),
		serial.WithSessionLogger(logger),
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
