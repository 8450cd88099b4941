// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenInMemory verifies in-memory database creation works.
func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	// Verify we can write and read
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpenWithPath verifies persistent database creation works.
func TestOpenWithPath(t *testing.T) {
	dir, err := TempDir("badger-test-")
	require.NoError(t, err)
	defer CleanupDir(dir)

	db, err := OpenWithPath(dir)
	require.NoError(t, err)

	// Write data
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("persistent-key"), []byte("persistent-value"))
	})
	require.NoError(t, err)

	// Close and reopen
	err = db.Close()
	require.NoError(t, err)

	db2, err := OpenWithPath(dir)
	require.NoError(t, err)
	defer db2.Close()

	// Verify data persisted
	err = db2.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("persistent-key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("persistent-value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpenRequiresPath verifies that persistent mode requires a path.
func TestOpenRequiresPath(t *testing.T) {
	cfg := Config{
		InMemory: false,
		Path:     "", // Missing path
	}
	_, err := Open(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestConfigFunctions verifies default configurations.
func TestConfigFunctions(t *testing.T) {
	t.Run("DefaultConfig has SyncWrites", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.True(t, cfg.SyncWrites)
		assert.False(t, cfg.InMemory)
		assert.Equal(t, 1, cfg.NumVersionsToKeep)
	})

	t.Run("InMemoryConfig is in-memory", func(t *testing.T) {
		cfg := InMemoryConfig()
		assert.True(t, cfg.InMemory)
		assert.Equal(t, 1, cfg.NumVersionsToKeep)
	})
}
