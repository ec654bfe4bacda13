// Package config loads, normalizes, and validates serialwatch configuration.
//
// Configuration lives in a TOML file (default ~/.config/serialwatch/config.toml,
// falling back to ./serialwatch.toml). Missing files are not an error: the
// defaults describe a working setup that polls once a second and talks to
// ports through the portable system driver. A handful of environment
// variables override logging so one-off debugging does not require editing
// the file.
package config
