// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stackscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/intern"
	"github.com/AleutianAI/stackscope/pathdb"
	"github.com/AleutianAI/stackscope/paths"
	"github.com/AleutianAI/stackscope/stitch"
	"github.com/AleutianAI/stackscope/telemetry"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Logger receives engine diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// Database enables persistent partial paths. Nil keeps them in memory
	// only.
	Database *badgerdb.DB

	// Metrics receives engine instruments. Nil disables recording.
	Metrics *telemetry.Metrics

	// GraphOptions passes limits through to the graph store.
	GraphOptions []graph.Option

	// IndexWorkers bounds parallel per-file partial-path computation.
	// Default: 4.
	IndexWorkers int
}

// EngineOption is a functional option for New.
type EngineOption func(*EngineOptions)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *EngineOptions) {
		o.Logger = l
	}
}

// WithDatabase enables persistence of partial paths on db.
func WithDatabase(db *badgerdb.DB) EngineOption {
	return func(o *EngineOptions) {
		o.Database = db
	}
}

// WithMetrics attaches engine instruments.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(o *EngineOptions) {
		o.Metrics = m
	}
}

// WithGraphOptions passes limits through to the graph store.
func WithGraphOptions(opts ...graph.Option) EngineOption {
	return func(o *EngineOptions) {
		o.GraphOptions = append(o.GraphOptions, opts...)
	}
}

// WithIndexWorkers bounds parallel per-file indexing.
func WithIndexWorkers(n int) EngineOption {
	return func(o *EngineOptions) {
		o.IndexWorkers = n
	}
}

// Engine wires the interner, graph store, finder, stitcher, and
// partial-path databases into one name-resolution service.
//
// Thread Safety: queries may run concurrently with each other; graph
// mutations serialize through the store's writer lock, and installing or
// evicting indexed fragments serializes through the engine's index lock.
type Engine struct {
	symbols  *intern.Table
	graph    *graph.Graph
	finder   *paths.Finder
	memdb    *stitch.MemoryDatabase
	stitcher *stitch.Stitcher
	store    *pathdb.Store
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	workers  int

	// indexMu serializes index mutations per engine so a compute/store
	// pair lands atomically with respect to other IndexFile calls.
	indexMu sync.Mutex
}

// New creates an engine with an empty graph.
func New(opts ...EngineOption) *Engine {
	options := EngineOptions{IndexWorkers: 4}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	symbols := intern.NewTable()
	g := graph.New(symbols, options.GraphOptions...)
	memdb := stitch.NewMemoryDatabase()

	e := &Engine{
		symbols: symbols,
		graph:   g,
		finder:  paths.NewFinder(g, options.Logger),
		memdb:   memdb,
		metrics: options.Metrics,
		logger:  options.Logger,
		workers: options.IndexWorkers,
	}
	e.stitcher = stitch.NewStitcher(g, memdb, options.Logger)
	if options.Database != nil {
		e.store = pathdb.NewStore(options.Database, g, options.Logger)
	}
	return e
}

// Symbols returns the engine's interner.
func (e *Engine) Symbols() *intern.Table { return e.symbols }

// Graph returns the engine's graph store.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Intern returns the symbol handle for name.
func (e *Engine) Intern(name string) intern.Symbol {
	return e.symbols.Intern(name)
}

// BuildFile populates one file's subgraph; see graph.Graph.BuildFile.
func (e *Engine) BuildFile(path string, fn func(*graph.FileWriter) error) (graph.FileID, error) {
	return e.graph.BuildFile(path, fn)
}

// RemoveFile evicts a file's subgraph and its partial paths everywhere.
func (e *Engine) RemoveFile(ctx context.Context, file graph.FileID) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	e.memdb.RemoveFile(file)
	if e.store != nil {
		if err := e.store.Evict(ctx, file); err != nil && !errors.Is(err, graph.ErrUnknownFile) {
			return err
		}
	}
	if e.metrics != nil {
		e.metrics.EvictionsTotal.Add(ctx, 1)
	}
	return e.graph.RemoveFile(file)
}

// IndexFile computes the file's partial paths and installs them in the
// stitching index, persisting them when a database is attached. The
// fingerprint travels with the stored set and decides later validity.
func (e *Engine) IndexFile(ctx context.Context, file graph.FileID, fingerprint string) (*paths.PartialResult, error) {
	result, err := e.finder.ComputePartialPaths(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := e.installFragments(ctx, file, fingerprint, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) installFragments(ctx context.Context, file graph.FileID, fingerprint string, result *paths.PartialResult) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	e.memdb.ReplaceFile(file, result.Paths)
	if e.store != nil {
		if err := e.store.StorePartialPaths(ctx, file, fingerprint, result.Paths); err != nil {
			return err
		}
	}
	if e.metrics != nil {
		e.metrics.PartialComputationsTotal.Add(ctx, 1)
		e.metrics.FragmentsStored.Add(ctx, int64(len(result.Paths)))
	}
	return nil
}

// IndexFiles indexes several files, computing their partial paths in
// parallel. Installation is serialized, so each file's set still lands
// atomically.
func (e *Engine) IndexFiles(ctx context.Context, fingerprints map[graph.FileID]string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for file, fingerprint := range fingerprints {
		eg.Go(func() error {
			result, err := e.finder.ComputePartialPaths(ctx, file)
			if err != nil {
				return fmt.Errorf("indexing file %d: %w", file, err)
			}
			return e.installFragments(ctx, file, fingerprint, result)
		})
	}
	return eg.Wait()
}

// EnsureIndexed brings one file's fragments up to date against the given
// fingerprint: a matching persisted set is loaded as-is, anything else is
// recomputed and stored. Corrupted sets are evicted and rebuilt.
func (e *Engine) EnsureIndexed(ctx context.Context, file graph.FileID, fingerprint string) error {
	if e.store != nil {
		stored, fragments, err := e.store.LoadPartialPaths(ctx, file)
		switch {
		case err == nil && stored == fingerprint:
			e.indexMu.Lock()
			e.memdb.ReplaceFile(file, fragments)
			e.indexMu.Unlock()
			return nil
		case err != nil &&
			!errors.Is(err, pathdb.ErrNotFound) &&
			!errors.Is(err, pathdb.ErrCorrupted):
			return err
		}
	}
	_, err := e.IndexFile(ctx, file, fingerprint)
	return err
}

// InvalidateFile drops a file's fragments without touching its subgraph.
// The next EnsureIndexed recomputes them.
func (e *Engine) InvalidateFile(ctx context.Context, file graph.FileID) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	e.memdb.RemoveFile(file)
	if e.metrics != nil {
		e.metrics.EvictionsTotal.Add(ctx, 1)
	}
	if e.store != nil {
		return e.store.Evict(ctx, file)
	}
	return nil
}

// InvalidatePath is InvalidateFile keyed by registered path, shaped for
// use as a watch callback. Unknown paths are ignored.
func (e *Engine) InvalidatePath(ctx context.Context, path string) {
	file, ok := e.graph.File(path)
	if !ok {
		return
	}
	if err := e.InvalidateFile(ctx, file); err != nil {
		e.logger.Warn("invalidation failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Resolve finds definitions for a reference by searching the whole graph.
func (e *Engine) Resolve(ctx context.Context, ref graph.NodeID, opts ...paths.Option) (*paths.Result, error) {
	start := time.Now()
	result, err := e.finder.FindDefinitions(ctx, ref, opts...)
	e.recordQuery(ctx, start, result, err)
	return result, err
}

// ResolveStitched finds definitions for a reference by stitching the
// indexed partial paths.
func (e *Engine) ResolveStitched(ctx context.Context, ref graph.NodeID, opts ...paths.Option) (*paths.Result, error) {
	start := time.Now()
	result, err := e.stitcher.Resolve(ctx, ref, opts...)
	e.recordQuery(ctx, start, result, err)
	return result, err
}

func (e *Engine) recordQuery(ctx context.Context, start time.Time, result *paths.Result, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueriesTotal.Add(ctx, 1)
	e.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.ErrorsTotal.Add(ctx, 1)
		return
	}
	e.metrics.PathsFound.Add(ctx, int64(len(result.Paths)))
}

// ResolveReferenceAt resolves the reference covering the 1-based source
// position by stitching the indexed partial paths. A position covering no
// node returns graph.ErrUnknownNode; a node that is not a reference
// surfaces as paths.ErrNotReference from the stitcher.
func (e *Engine) ResolveReferenceAt(ctx context.Context, file graph.FileID, line, column int, opts ...paths.Option) (*paths.Result, error) {
	ref, ok := e.NodeAt(file, line, column)
	if !ok {
		return nil, graph.ErrUnknownNode
	}
	return e.ResolveStitched(ctx, ref, opts...)
}

// NodeAt returns the node covering the 1-based source position, if any.
// A miss is absence, not an error.
func (e *Engine) NodeAt(file graph.FileID, line, column int) (graph.NodeID, bool) {
	return e.graph.NodeAtPosition(file, line, column)
}

// SourceInfo returns a node's source provenance, if any.
func (e *Engine) SourceInfo(node graph.NodeID) (graph.SourceInfo, bool) {
	return e.graph.SourceInfo(node)
}
