// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ManagerOptions configures a ManifestManager.
type ManagerOptions struct {
	// Includes and Excludes filter scanned paths; see GlobMatcher.
	Includes []string
	Excludes []string

	// Hasher fingerprints file contents. Default: SHA-256.
	Hasher Hasher

	// ScanWorkers bounds parallel hashing. Default: NumCPU, capped at 8.
	ScanWorkers int
}

// ManagerOption is a functional option for NewManifestManager.
type ManagerOption func(*ManagerOptions)

// WithIncludes sets the include patterns.
func WithIncludes(patterns ...string) ManagerOption {
	return func(o *ManagerOptions) {
		o.Includes = patterns
	}
}

// WithExcludes sets the exclude patterns.
func WithExcludes(patterns ...string) ManagerOption {
	return func(o *ManagerOptions) {
		o.Excludes = patterns
	}
}

// WithHasher replaces the content hasher.
func WithHasher(h Hasher) ManagerOption {
	return func(o *ManagerOptions) {
		o.Hasher = h
	}
}

// WithScanWorkers bounds parallel hashing during Scan.
func WithScanWorkers(n int) ManagerOption {
	return func(o *ManagerOptions) {
		o.ScanWorkers = n
	}
}

// ManifestManager scans project trees into manifests and diffs them.
//
// Thread Safety: safe for concurrent use; Scan holds no state between
// calls.
type ManifestManager struct {
	matcher *GlobMatcher
	hasher  Hasher
	workers int
}

// NewManifestManager creates a manager with the given options.
func NewManifestManager(opts ...ManagerOption) *ManifestManager {
	options := ManagerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Hasher == nil {
		options.Hasher = NewSHA256Hasher(0)
	}
	if options.ScanWorkers <= 0 {
		options.ScanWorkers = min(runtime.NumCPU(), 8)
	}
	return &ManifestManager{
		matcher: NewGlobMatcher(options.Includes, options.Excludes),
		hasher:  options.Hasher,
		workers: options.ScanWorkers,
	}
}

// Scan walks root and fingerprints every matching regular file. Hashing
// runs across ScanWorkers goroutines; the walk itself is sequential so
// the file list is deterministic.
func (m *ManifestManager) Scan(ctx context.Context, root string) (*Manifest, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if m.matcher.Match(rel) {
			rels = append(rels, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	files := make(map[string]FileEntry, len(rels))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.workers)
	for _, rel := range rels {
		eg.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			full := filepath.Join(root, filepath.FromSlash(rel))
			info, err := os.Stat(full)
			if err != nil {
				return err
			}
			hash, err := m.hasher.HashFile(full)
			if err != nil {
				return err
			}
			mu.Lock()
			files[rel] = FileEntry{
				Hash:    hash,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	return &Manifest{
		ProjectRoot: root,
		GeneratedAt: time.Now(),
		Files:       files,
	}, nil
}

// Diff compares two manifests; see ComputeDiff.
func (m *ManifestManager) Diff(old, new *Manifest) Diff {
	return ComputeDiff(old, new)
}
