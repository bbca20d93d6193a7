// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and validates node configuration. Values come from
// defaults, then a key = value file, then BLOCKFS_* environment variables;
// command-line flags are applied last by the caller.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of environment overrides (e.g. BLOCKFS_DATA_DIR,
// BLOCKFS_TRACKER_ADDR).
const EnvPrefix = "blockfs"

// Defaults.
const (
	DefaultListenAddr  = ":3000"
	DefaultLogLevel    = "info"
	DefaultChunkSize   = 1 << 20
	DefaultPeerTimeout = 30 * time.Second

	// MaxChunkSize caps ChunkSize.
	MaxChunkSize = 32 << 20
)

// Config holds node configuration.
type Config struct {
	DataDir       string        `split_words:"true"`
	ListenAddr    string        `split_words:"true"`
	AdvertiseAddr string        `split_words:"true"`
	TrackerAddr   string        `split_words:"true"`
	LogLevel      string        `split_words:"true"`
	LogFile       string        `split_words:"true"`
	ChunkSize     int           `split_words:"true"`
	PeerTimeout   time.Duration `split_words:"true"`
}

// DefaultDataDir returns ~/.blockfs, or .blockfs when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blockfs"
	}
	return filepath.Join(home, ".blockfs")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		ListenAddr:  DefaultListenAddr,
		LogLevel:    DefaultLogLevel,
		ChunkSize:   DefaultChunkSize,
		PeerTimeout: DefaultPeerTimeout,
	}
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// LoadConfig reads a key = value file over DefaultConfig. Blank lines and
// lines starting with # are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := parseKeyValue(line)
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func (c *Config) set(key, value string) error {
	switch key {
	case "datadir":
		c.DataDir = value
	case "listen":
		c.ListenAddr = value
	case "advertise":
		c.AdvertiseAddr = value
	case "tracker":
		c.TrackerAddr = value
	case "loglevel":
		c.LogLevel = value
	case "logfile":
		c.LogFile = value
	case "chunksize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: chunksize: %w", ErrInvalidConfigValue, err)
		}
		c.ChunkSize = n
	case "peertimeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: peertimeout: %w", ErrInvalidConfigValue, err)
		}
		c.PeerTimeout = d
	}
	return nil
}

// SaveConfig writes cfg to path in the format LoadConfig reads. Parent
// directories are created as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# BlockFS Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "listen = %s\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "advertise = %s\n", cfg.AdvertiseAddr)
	fmt.Fprintf(&b, "tracker = %s\n", cfg.TrackerAddr)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "chunksize = %d\n", cfg.ChunkSize)
	fmt.Fprintf(&b, "peertimeout = %s\n", cfg.PeerTimeout)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any BLOCKFS_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrEnv, err)
	}
	return nil
}

// Load resolves configuration for dataDir: defaults, then the config file
// when present, then environment overrides. An empty dataDir falls back to
// BLOCKFS_DATA_DIR and then DefaultDataDir. The resolved directory always
// wins over any datadir key in the file.
func Load(dataDir string) (Config, error) {
	if dataDir == "" {
		dataDir = os.Getenv("BLOCKFS_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	cfg, err := LoadConfig(ConfigPath(dataDir))
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.DataDir = dataDir
	return cfg, nil
}
