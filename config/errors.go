// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidListenAddr indicates the listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidAdvertiseAddr indicates the advertised address is malformed.
	ErrInvalidAdvertiseAddr = errors.New("config: invalid advertise address")

	// ErrInvalidTrackerAddr indicates the tracker address is neither host:port nor srv:{domain}.
	ErrInvalidTrackerAddr = errors.New("config: invalid tracker address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("config: chunk size out of range")

	// ErrInvalidPeerTimeout indicates the peer timeout is not positive.
	ErrInvalidPeerTimeout = errors.New("config: peer timeout must be positive")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidConfigValue indicates a value in the config file could not be parsed.
	ErrInvalidConfigValue = errors.New("config: invalid configuration value")

	// ErrEnv indicates an environment override could not be applied.
	ErrEnv = errors.New("config: invalid environment override")
)
