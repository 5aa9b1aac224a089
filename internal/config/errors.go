package config

import "errors"

var (
	// ErrConfigFileNotFound is returned when an explicit --config path does
	// not exist.
	ErrConfigFileNotFound = errors.New("config file not found")
	// ErrConfigFileRead wraps an I/O error reading an existing config file.
	ErrConfigFileRead = errors.New("cannot read config file")
	// ErrConfigInvalid wraps a JSONC parse error or a failed validation.
	ErrConfigInvalid = errors.New("invalid config file")
	// ErrNoRoots is returned when no root directory was configured by any
	// source (defaults, config files, or CLI override).
	ErrNoRoots = errors.New("no root directories configured")
	// ErrSnapshotPathEmpty is returned when the resolved snapshot path is
	// empty.
	ErrSnapshotPathEmpty = errors.New("snapshot-path cannot be empty")
	// ErrCatalogDirEmpty is returned when the resolved catalog directory is
	// empty.
	ErrCatalogDirEmpty = errors.New("catalog-dir cannot be empty")
	// ErrDebounceIntervalInvalid is returned when debounce_interval cannot
	// be parsed by time.ParseDuration.
	ErrDebounceIntervalInvalid = errors.New("debounce-interval is invalid")
)
