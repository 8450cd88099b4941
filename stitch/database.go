// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stitch composes per-file partial paths into complete
// reference-to-definition paths.
//
// Partial paths only meet at the singleton boundary nodes, so resolving a
// reference is a breadth-first join: start from the reference's fragments,
// continue at the root or through the scope stack at JumpToScope, and stop
// when a definition is reached with an empty symbol stack. Cycle pruning
// uses the same (node, stacks) signature as in-graph search.
package stitch

import (
	"context"
	"sync"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/paths"
)

// Database supplies partial-path candidates during stitching. The stitcher
// asks for fragments by start node: the reference under resolution, the
// root, or a concrete jump-target scope.
type Database interface {
	PartialPathsFrom(ctx context.Context, start graph.NodeID) ([]paths.PartialPath, error)
}

type fileFragment struct {
	file graph.FileID
	path paths.PartialPath
}

// MemoryDatabase is an in-memory Database indexed by fragment start node.
// The atomic unit is one file's fragment set, matching the persistence
// contract: ReplaceFile swaps a file's whole set in one step.
//
// Thread Safety: safe for concurrent use.
type MemoryDatabase struct {
	mu      sync.RWMutex
	byFile  map[graph.FileID][]paths.PartialPath
	byStart map[graph.NodeID][]fileFragment
	order   []graph.FileID
}

// NewMemoryDatabase creates an empty fragment index.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		byFile:  make(map[graph.FileID][]paths.PartialPath),
		byStart: make(map[graph.NodeID][]fileFragment),
	}
}

// ReplaceFile atomically replaces the file's fragment set.
func (d *MemoryDatabase) ReplaceFile(file graph.FileID, fragments []paths.PartialPath) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.byFile[file]; known {
		d.removeLocked(file)
	}
	d.byFile[file] = fragments
	d.order = append(d.order, file)
	for _, p := range fragments {
		d.byStart[p.Start] = append(d.byStart[p.Start], fileFragment{file: file, path: p})
	}
}

// RemoveFile evicts the file's fragment set. Fragments of other files are
// untouched.
func (d *MemoryDatabase) RemoveFile(file graph.FileID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(file)
}

func (d *MemoryDatabase) removeLocked(file graph.FileID) {
	delete(d.byFile, file)
	for start, frags := range d.byStart {
		kept := frags[:0]
		for _, f := range frags {
			if f.file != file {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			delete(d.byStart, start)
		} else {
			d.byStart[start] = kept
		}
	}
	order := d.order[:0]
	for _, f := range d.order {
		if f != file {
			order = append(order, f)
		}
	}
	d.order = order
}

// Files returns the files with a stored fragment set, oldest first.
func (d *MemoryDatabase) Files() []graph.FileID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]graph.FileID, len(d.order))
	copy(out, d.order)
	return out
}

// FragmentsForFile returns the file's stored fragment set.
func (d *MemoryDatabase) FragmentsForFile(file graph.FileID) []paths.PartialPath {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]paths.PartialPath, len(d.byFile[file]))
	copy(out, d.byFile[file])
	return out
}

// PartialPathsFrom returns every stored fragment starting at start, in
// file insertion order then fragment order.
func (d *MemoryDatabase) PartialPathsFrom(_ context.Context, start graph.NodeID) ([]paths.PartialPath, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	frags := d.byStart[start]
	out := make([]paths.PartialPath, 0, len(frags))
	for _, f := range frags {
		out = append(out, f.path)
	}
	return out, nil
}
