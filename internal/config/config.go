package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const (
	EnumeratorSystem = "system"
	EnumeratorUdev   = "udev"

	DriverSystem  = "system"
	DriverTermios = "termios"
)

// Monitor configures port discovery.
type Monitor struct {
	IntervalMS int    `toml:"interval_ms"`
	Enumerator string `toml:"enumerator"`
	Hotplug    bool   `toml:"hotplug"`
}

// Session configures the serial connection and its read loop.
type Session struct {
	Driver        string `toml:"driver"`
	BaudRate      int    `toml:"baud_rate"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
	IdlePauseMS   int    `toml:"idle_pause_ms"`
	ChunkSize     int    `toml:"chunk_size"`
	LockDir       string `toml:"lock_dir"`
}

// Console configures how the CLI renders received bytes.
type Console struct {
	Encoding  string `toml:"encoding"`
	Reconnect bool   `toml:"reconnect"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// Output lists log destinations: "stdout", "stderr" or file paths.
	// Empty means the command's stderr.
	Output []string `toml:"output,omitempty"`
}

// Config encapsulates all configuration values for serialwatch.
type Config struct {
	Monitor Monitor `toml:"monitor"`
	Session Session `toml:"session"`
	Console Console `toml:"console"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/serialwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has defaults applied and paths expanded. A missing file is not an
// error; exists reports whether one was read.
func Load(path string) (cfg *Config, resolvedPath string, exists bool, err error) {
	loaded := Default()

	resolvedPath, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&loaded); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}
	return &loaded, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(strings.TrimSpace(path))
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("serialwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// MonitorInterval returns the polling cadence.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMS) * time.Millisecond
}

// ReadTimeout returns the bounded read timeout used by the session loop.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Session.ReadTimeoutMS) * time.Millisecond
}

// IdlePause returns the pause taken after an empty read.
func (c *Config) IdlePause() time.Duration {
	return time.Duration(c.Session.IdlePauseMS) * time.Millisecond
}

// Encode renders the config as TOML.
func (c *Config) Encode() (string, error) {
	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return sb.String(), nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
