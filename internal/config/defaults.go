package config

const (
	defaultMonitorIntervalMS = 1000
	defaultEnumerator        = EnumeratorSystem
	defaultDriver            = DriverSystem
	defaultBaudRate          = 115200
	defaultReadTimeoutMS     = 100
	defaultIdlePauseMS       = 10
	defaultChunkSize         = 1024
	maxChunkSize             = 1024
	defaultLockDir           = "~/.local/state/serialwatch/locks"
	defaultEncoding          = "utf-8"
	defaultLogFormat         = "auto"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Monitor: Monitor{
			IntervalMS: defaultMonitorIntervalMS,
			Enumerator: defaultEnumerator,
		},
		Session: Session{
			Driver:        defaultDriver,
			BaudRate:      defaultBaudRate,
			ReadTimeoutMS: defaultReadTimeoutMS,
			IdlePauseMS:   defaultIdlePauseMS,
			ChunkSize:     defaultChunkSize,
			LockDir:       defaultLockDir,
		},
		Console: Console{
			Encoding: defaultEncoding,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
