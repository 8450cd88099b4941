// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathdb

import (
	"context"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/intern"
	"github.com/AleutianAI/stackscope/paths"
	"github.com/AleutianAI/stackscope/storage/badger"
)

// buildFixture creates a graph with one definition file and one reference
// file, and the partial paths of both.
func buildFixture(t *testing.T) (*graph.Graph, *Store, graph.FileID, graph.FileID, map[graph.FileID][]paths.PartialPath) {
	t.Helper()
	syms := intern.NewTable()
	helper := syms.Intern("helper")
	g := graph.New(syms)

	fa, err := g.BuildFile("a", func(w *graph.FileWriter) error {
		module, err := w.Scope(true)
		if err != nil {
			return err
		}
		def, err := w.PopSymbol(helper, true)
		if err != nil {
			return err
		}
		if err := w.Edge(graph.Root, module, 0); err != nil {
			return err
		}
		return w.Edge(module, def, 0)
	})
	require.NoError(t, err)

	fb, err := g.BuildFile("b", func(w *graph.FileWriter) error {
		ref, err := w.PushSymbol(helper, true)
		if err != nil {
			return err
		}
		return w.Edge(ref, graph.Root, 0)
	})
	require.NoError(t, err)

	finder := paths.NewFinder(g, nil)
	fragments := make(map[graph.FileID][]paths.PartialPath)
	for _, file := range []graph.FileID{fa, fb} {
		result, err := finder.ComputePartialPaths(context.Background(), file)
		require.NoError(t, err)
		fragments[file] = result.Paths
	}

	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return g, NewStore(db, g, nil), fa, fb, fragments
}

func TestStore_RoundTrip(t *testing.T) {
	_, store, fa, fb, fragments := buildFixture(t)
	ctx := context.Background()

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-a-1", fragments[fa]))
	require.NoError(t, store.StorePartialPaths(ctx, fb, "fp-b-1", fragments[fb]))

	fp, loaded, err := store.LoadPartialPaths(ctx, fa)
	require.NoError(t, err)
	assert.Equal(t, "fp-a-1", fp)
	require.Len(t, loaded, len(fragments[fa]))

	for i, frag := range loaded {
		want := fragments[fa][i]
		assert.Equal(t, want.Start, frag.Start)
		assert.Equal(t, want.End, frag.End)
		assert.Equal(t, want.SymbolPre, frag.SymbolPre)
		assert.Equal(t, want.SymbolPost, frag.SymbolPost)
		assert.Equal(t, want.ScopePost, frag.ScopePost)
		assert.Equal(t, want.Edges, frag.Edges)
		assert.Equal(t, want.Precedence, frag.Precedence)
	}

	files, err := store.Files(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, files)
}

func TestStore_AtomicReplace(t *testing.T) {
	_, store, fa, _, fragments := buildFixture(t)
	ctx := context.Background()

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-1", fragments[fa]))

	// Replacing with a smaller set must not leave stale fragments behind.
	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-2", fragments[fa][:1]))

	fp, loaded, err := store.LoadPartialPaths(ctx, fa)
	require.NoError(t, err)
	assert.Equal(t, "fp-2", fp)
	assert.Len(t, loaded, 1)
}

func TestStore_Fingerprint(t *testing.T) {
	_, store, fa, _, fragments := buildFixture(t)
	ctx := context.Background()

	_, ok, err := store.Fingerprint(ctx, fa)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-9", fragments[fa]))
	fp, ok, err := store.Fingerprint(ctx, fa)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fp-9", fp)
}

func TestStore_Evict(t *testing.T) {
	_, store, fa, fb, fragments := buildFixture(t)
	ctx := context.Background()

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-a", fragments[fa]))
	require.NoError(t, store.StorePartialPaths(ctx, fb, "fp-b", fragments[fb]))

	require.NoError(t, store.Evict(ctx, fa))

	_, _, err := store.LoadPartialPaths(ctx, fa)
	assert.ErrorIs(t, err, ErrNotFound)

	// The other file's set is untouched.
	fp, loaded, err := store.LoadPartialPaths(ctx, fb)
	require.NoError(t, err)
	assert.Equal(t, "fp-b", fp)
	assert.NotEmpty(t, loaded)
}

func TestStore_LoadMissing(t *testing.T) {
	_, store, fa, _, _ := buildFixture(t)
	_, _, err := store.LoadPartialPaths(context.Background(), fa)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UnknownFile(t *testing.T) {
	_, store, _, _, _ := buildFixture(t)
	ctx := context.Background()

	err := store.StorePartialPaths(ctx, graph.FileID(99), "fp", nil)
	assert.ErrorIs(t, err, graph.ErrUnknownFile)
	_, _, err = store.LoadPartialPaths(ctx, graph.FileID(99))
	assert.ErrorIs(t, err, graph.ErrUnknownFile)
	assert.ErrorIs(t, store.Evict(ctx, graph.FileID(99)), graph.ErrUnknownFile)
}

func TestStore_CorruptionEvictsFile(t *testing.T) {
	g, store, fa, fb, fragments := buildFixture(t)
	ctx := context.Background()

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-a", fragments[fa]))
	require.NoError(t, store.StorePartialPaths(ctx, fb, "fp-b", fragments[fb]))

	// Scribble over one of file a's fragment records.
	path, _ := g.FilePath(fa)
	err := store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(fragKey(path, 0), []byte("{not json"))
	})
	require.NoError(t, err)

	_, _, err = store.LoadPartialPaths(ctx, fa)
	assert.ErrorIs(t, err, ErrCorrupted)

	// The corrupted file was evicted; a later load reports absence.
	_, _, err = store.LoadPartialPaths(ctx, fa)
	assert.ErrorIs(t, err, ErrNotFound)

	// Other files remain readable.
	_, loaded, err := store.LoadPartialPaths(ctx, fb)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded)
}

func TestStore_RebindFailureIsCorruption(t *testing.T) {
	g, store, fa, _, fragments := buildFixture(t)
	ctx := context.Background()

	require.NoError(t, store.StorePartialPaths(ctx, fa, "fp-a", fragments[fa]))

	// Rebuild file a with fewer nodes than the stored fragments reference.
	require.NoError(t, g.RemoveFile(fa))
	_, err := g.BuildFile("a", func(w *graph.FileWriter) error {
		_, err := w.Scope(false)
		return err
	})
	require.NoError(t, err)

	_, _, err = store.LoadPartialPaths(ctx, fa)
	assert.ErrorIs(t, err, ErrCorrupted)
}
