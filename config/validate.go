// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if cfg.AdvertiseAddr != "" {
		if err := validateAddr(cfg.AdvertiseAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAdvertiseAddr, err)
		}
	}

	if err := validateTracker(cfg.TrackerAddr); err != nil {
		return err
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d (1..%d)", ErrInvalidChunkSize, cfg.ChunkSize, MaxChunkSize)
	}

	if cfg.PeerTimeout <= 0 {
		return ErrInvalidPeerTimeout
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}

// validateTracker accepts an empty address, host:port, or srv:{domain}.
func validateTracker(addr string) error {
	switch {
	case addr == "":
		return nil
	case strings.HasPrefix(addr, "srv:"):
		if strings.TrimPrefix(addr, "srv:") == "" {
			return fmt.Errorf("%w: empty srv domain", ErrInvalidTrackerAddr)
		}
		return nil
	default:
		if err := validateAddr(addr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTrackerAddr, err)
		}
		return nil
	}
}
