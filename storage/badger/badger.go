// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps badger database creation with the settings the
// partial-path store relies on: synchronous writes by default, a single
// kept version per key, and quiet structured logging.
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Config controls how the database is opened.
type Config struct {
	// InMemory selects a non-persistent database for tests and scratch use.
	InMemory bool

	// Path is the database directory. Required unless InMemory.
	Path string

	// SyncWrites flushes every write to disk before acknowledging it. The
	// partial-path store depends on this for its crash guarantee.
	SyncWrites bool

	// NumVersionsToKeep bounds version history per key. The store only
	// ever needs the latest value.
	NumVersionsToKeep int

	// Logger receives badger's internal logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the persistent-database defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
	}
}

// InMemoryConfig returns the in-memory defaults.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		NumVersionsToKeep: 1,
	}
}

// Open creates or opens a database per cfg.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent databases")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(cfg.NumVersionsToKeep).
		WithLogger(&slogAdapter{logger: loggerOrDefault(cfg.Logger)})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return db, nil
}

// OpenInMemory opens a non-persistent database.
func OpenInMemory() (*badger.DB, error) {
	return Open(InMemoryConfig())
}

// OpenWithPath opens a persistent database at path with default settings.
func OpenWithPath(path string) (*badger.DB, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return Open(cfg)
}

// TempDir creates a scratch directory for a throwaway database.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// CleanupDir removes a directory created with TempDir.
func CleanupDir(dir string) error {
	return os.RemoveAll(dir)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// slogAdapter implements the badger.Logger interface on slog. Badger's
// info/debug chatter goes to debug level; only real problems surface.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf("badger: "+f, v...))
}

func (l *slogAdapter) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf("badger: "+f, v...))
}

func (l *slogAdapter) Infof(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("badger: "+f, v...))
}

func (l *slogAdapter) Debugf(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("badger: "+f, v...))
}
