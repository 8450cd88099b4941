// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathdb persists per-file partial paths.
//
// The atomic unit is one file's fragment set: StorePartialPaths replaces a
// file's whole set inside one transaction, together with the content
// fingerprint that decides its validity. Fragments are stored in a
// graph-independent form — nodes as (file path, ordinal) or singleton
// names, symbols as strings — and are rebound onto the live graph on load.
// A fragment that fails to rebind means the stored state and the graph
// disagree; the file's whole set is evicted and ErrCorrupted is returned
// so the caller can schedule a rebuild. Other files are never affected.
package pathdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/paths"
)

var storeTracer = otel.Tracer("pathdb.store")

var (
	// ErrNotFound indicates no stored fragment set for the file.
	ErrNotFound = errors.New("no partial paths stored for file")

	// ErrCorrupted indicates the stored set disagreed with itself or with
	// the graph. The affected file has already been evicted.
	ErrCorrupted = errors.New("stored partial paths corrupted")
)

const (
	metaPrefix = "f:"
	fragPrefix = "p:"
	keySep     = "\x00"
)

// Store is a badger-backed partial-path database bound to one graph.
//
// Thread Safety: safe for concurrent use; badger transactions provide the
// per-file atomicity.
type Store struct {
	db     *badgerdb.DB
	g      *graph.Graph
	logger *slog.Logger
}

// NewStore creates a store over db for the given graph. If logger is nil,
// slog.Default() is used.
func NewStore(db *badgerdb.DB, g *graph.Graph, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, g: g, logger: logger}
}

type metaRecord struct {
	Fingerprint string `json:"fingerprint"`
	Count       int    `json:"count"`
}

func metaKey(path string) []byte {
	return []byte(metaPrefix + path)
}

func fragKeyPrefix(path string) []byte {
	return []byte(fragPrefix + path + keySep)
}

func fragKey(path string, i int) []byte {
	key := make([]byte, 0, len(fragPrefix)+len(path)+1+4)
	key = append(key, fragKeyPrefix(path)...)
	return binary.BigEndian.AppendUint32(key, uint32(i))
}

// StorePartialPaths atomically replaces the file's fragment set and
// fingerprint. Either the whole new set becomes visible or none of it.
func (s *Store) StorePartialPaths(ctx context.Context, file graph.FileID, fingerprint string, fragments []paths.PartialPath) error {
	_, span := storeTracer.Start(ctx, "pathdb.StorePartialPaths",
		trace.WithAttributes(
			attribute.Int("file", int(file)),
			attribute.Int("fragments", len(fragments)),
		),
	)
	defer span.End()

	path, ok := s.g.FilePath(file)
	if !ok {
		span.SetStatus(codes.Error, graph.ErrUnknownFile.Error())
		return graph.ErrUnknownFile
	}

	encoded := make([][]byte, len(fragments))
	for i := range fragments {
		rec, err := s.encodeFragment(&fragments[i])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("encoding fragment %d of %s: %w", i, path, err)
		}
		buf, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling fragment %d of %s: %w", i, path, err)
		}
		encoded[i] = buf
	}
	meta, err := json.Marshal(metaRecord{Fingerprint: fingerprint, Count: len(fragments)})
	if err != nil {
		return fmt.Errorf("marshalling meta of %s: %w", path, err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		if err := deletePrefix(txn, fragKeyPrefix(path)); err != nil {
			return err
		}
		if err := txn.Set(metaKey(path), meta); err != nil {
			return err
		}
		for i, buf := range encoded {
			if err := txn.Set(fragKey(path, i), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("storing partial paths of %s: %w", path, err)
	}

	s.logger.Debug("partial paths stored",
		slog.String("file", path),
		slog.Int("fragments", len(fragments)),
	)
	return nil
}

// LoadPartialPaths returns the file's stored fingerprint and fragment set,
// rebound onto the live graph. A corrupted set is evicted before
// ErrCorrupted is returned; other files remain valid.
func (s *Store) LoadPartialPaths(ctx context.Context, file graph.FileID) (string, []paths.PartialPath, error) {
	_, span := storeTracer.Start(ctx, "pathdb.LoadPartialPaths",
		trace.WithAttributes(attribute.Int("file", int(file))),
	)
	defer span.End()

	path, ok := s.g.FilePath(file)
	if !ok {
		return "", nil, graph.ErrUnknownFile
	}

	var meta metaRecord
	var fragments []paths.PartialPath
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(metaKey(path))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("%w: unreadable meta: %v", ErrCorrupted, err)
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = fragKeyPrefix(path)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec fragmentRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: unreadable fragment: %v", ErrCorrupted, err)
			}
			frag, err := s.decodeFragment(&rec)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupted, err)
			}
			fragments = append(fragments, frag)
		}
		if len(fragments) != meta.Count {
			return fmt.Errorf("%w: fragment count %d does not match stored %d",
				ErrCorrupted, len(fragments), meta.Count)
		}
		return nil
	})

	if errors.Is(err, ErrCorrupted) {
		s.logger.Warn("evicting corrupted partial paths",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		if evictErr := s.Evict(ctx, file); evictErr != nil {
			s.logger.Error("eviction after corruption failed",
				slog.String("file", path),
				slog.String("error", evictErr.Error()),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return "", nil, err
	}

	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	return meta.Fingerprint, fragments, nil
}

// Fingerprint returns the stored fingerprint for the file without decoding
// its fragments.
func (s *Store) Fingerprint(ctx context.Context, file graph.FileID) (string, bool, error) {
	path, ok := s.g.FilePath(file)
	if !ok {
		return "", false, graph.ErrUnknownFile
	}

	var meta metaRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(metaKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return meta.Fingerprint, true, nil
}

// Evict removes the file's stored fragment set and fingerprint.
func (s *Store) Evict(ctx context.Context, file graph.FileID) error {
	_, span := storeTracer.Start(ctx, "pathdb.Evict",
		trace.WithAttributes(attribute.Int("file", int(file))),
	)
	defer span.End()

	path, ok := s.g.FilePath(file)
	if !ok {
		return graph.ErrUnknownFile
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(metaKey(path)); err != nil {
			return err
		}
		return deletePrefix(txn, fragKeyPrefix(path))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("evicting %s: %w", path, err)
	}
	return nil
}

// Files returns the paths with a stored fragment set.
func (s *Store) Files(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			out = append(out, strings.TrimPrefix(key, metaPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func deletePrefix(txn *badgerdb.Txn, prefix []byte) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
