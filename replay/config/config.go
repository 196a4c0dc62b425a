// Package config gathers the settings shared by the replaystats binaries.
// Values come from defaults, then the environment (optionally seeded from
// .env files), then command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvSourceDir = "REPLAY_SOURCE_DIR"
	EnvAddr      = "REPLAY_ADDR"
	EnvWorkers   = "REPLAY_WORKERS"
	EnvLogLevel  = "REPLAY_LOG_LEVEL"
)

// Config holds the runtime settings
type Config struct {
	SourceDir string
	Addr      string
	Workers   int
	LogLevel  string
	Verbose   bool
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		SourceDir: "snapshot",
		Addr:      ":8080",
		Workers:   runtime.NumCPU(),
		LogLevel:  "info",
	}
}

// LoadEnv applies environment variables. Files in dotenv that exist are
// read first; variables already set in the process environment win over
// them, and earlier files win over later ones.
func (c *Config) LoadEnv(dotenv ...string) error {
	fromFiles := map[string]string{}
	for _, path := range dotenv {
		vars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range vars {
			if _, ok := fromFiles[k]; !ok {
				fromFiles[k] = v
			}
		}
	}

	return c.apply(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	})
}

func (c *Config) apply(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSourceDir); ok && v != "" {
		c.SourceDir = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Workers = n
	}
	return nil
}

// RegisterFlags binds the settings to flags, using the current values as
// defaults
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.StringVar(&c.SourceDir, "dir", c.SourceDir, "Snapshot directory")
	flags.StringVar(&c.Addr, "addr", c.Addr, "Listen address for serve")
	flags.IntVar(&c.Workers, "workers", c.Workers, "Maximum concurrent queries")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
	flags.BoolVar(&c.Verbose, "verbose", c.Verbose, "Print query execution events")
}

// Validate checks the settings
func (c Config) Validate() error {
	if c.SourceDir == "" {
		return errors.New("snapshot directory must be set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := levelOption(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger returns a logfmt logger writing to w that drops records
// below the configured level
func (c Config) NewLogger(w io.Writer) (log.Logger, error) {
	opt, err := levelOption(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func levelOption(name string) (level.Option, error) {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug(), nil
	case "info", "":
		return level.AllowInfo(), nil
	case "warn", "warning":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}
	return nil, fmt.Errorf("unknown log level %q", name)
}
