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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/storage/badger"
)

// buildHelperModule populates file "a" with an exported module scope off
// the root containing a definition of "helper".
func buildHelperModule(t *testing.T, e *Engine) (graph.FileID, graph.NodeID) {
	t.Helper()
	helper := e.Intern("helper")
	var def graph.NodeID
	fa, err := e.BuildFile("a", func(w *graph.FileWriter) error {
		module, err := w.Scope(true)
		if err != nil {
			return err
		}
		if def, err = w.PopSymbol(helper, true); err != nil {
			return err
		}
		if err := w.Edge(graph.Root, module, 0); err != nil {
			return err
		}
		return w.Edge(module, def, 0)
	})
	require.NoError(t, err)
	return fa, def
}

// buildHelperUse populates file "b" with a reference to "helper" escaping
// to the root, with source info on the reference.
func buildHelperUse(t *testing.T, e *Engine) (graph.FileID, graph.NodeID) {
	t.Helper()
	helper := e.Intern("helper")
	var ref graph.NodeID
	fb, err := e.BuildFile("b", func(w *graph.FileWriter) error {
		var err error
		if ref, err = w.PushSymbol(helper, true); err != nil {
			return err
		}
		if err := w.SetSourceInfo(ref, graph.SourceInfo{
			Span: graph.Span{
				StartByte: 4, EndByte: 10,
				StartLine: 0, StartColumn: 4,
				EndLine: 0, EndColumn: 10,
			},
			SyntaxType: "identifier",
		}); err != nil {
			return err
		}
		return w.Edge(ref, graph.Root, 0)
	})
	require.NoError(t, err)
	return fb, ref
}

func TestEngine_EndToEnd(t *testing.T) {
	e := New()
	ctx := context.Background()

	fa, def := buildHelperModule(t, e)
	fb, ref := buildHelperUse(t, e)

	require.NoError(t, e.IndexFiles(ctx, map[graph.FileID]string{
		fa: "fp-a",
		fb: "fp-b",
	}))

	t.Run("monolithic resolution", func(t *testing.T) {
		result, err := e.Resolve(ctx, ref)
		require.NoError(t, err)
		require.Len(t, result.Paths, 1)
		assert.Equal(t, def, result.Paths[0].End)
	})

	t.Run("stitched resolution", func(t *testing.T) {
		result, err := e.ResolveStitched(ctx, ref)
		require.NoError(t, err)
		require.Len(t, result.Paths, 1)
		assert.Equal(t, def, result.Paths[0].End)
	})

	t.Run("positional lookup feeds resolution", func(t *testing.T) {
		// 1-based position inside the reference's span.
		node, ok := e.NodeAt(fb, 1, 6)
		require.True(t, ok)
		assert.Equal(t, ref, node)

		info, ok := e.SourceInfo(node)
		require.True(t, ok)
		assert.Equal(t, "identifier", info.SyntaxType)

		_, ok = e.NodeAt(fb, 40, 1)
		assert.False(t, ok, "positional miss must be absence")
	})

	t.Run("resolve straight from a position", func(t *testing.T) {
		result, err := e.ResolveReferenceAt(ctx, fb, 1, 6)
		require.NoError(t, err)
		require.Len(t, result.Paths, 1)
		assert.Equal(t, ref, result.Paths[0].Start)
		assert.Equal(t, def, result.Paths[0].End)

		_, err = e.ResolveReferenceAt(ctx, fb, 40, 1)
		assert.ErrorIs(t, err, graph.ErrUnknownNode,
			"a position covering no node must not read as an empty resolution")
	})
}

func TestEngine_IncrementalInvalidation(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	e := New(WithDatabase(db))
	ctx := context.Background()

	fa, def := buildHelperModule(t, e)
	fb, ref := buildHelperUse(t, e)

	require.NoError(t, e.IndexFiles(ctx, map[graph.FileID]string{
		fa: "fp-a-1",
		fb: "fp-b-1",
	}))

	before, err := e.ResolveStitched(ctx, ref)
	require.NoError(t, err)
	require.Len(t, before.Paths, 1)
	require.Equal(t, def, before.Paths[0].End)

	// File b changes: evict only b, rebuild its subgraph, and re-index it
	// under the new fingerprint. File a is neither rebuilt nor recomputed.
	require.NoError(t, e.RemoveFile(ctx, fb))
	fb2, ref2 := buildHelperUse(t, e)
	require.Equal(t, fb, fb2, "same path keeps its handle")
	require.NoError(t, e.EnsureIndexed(ctx, fb2, "fp-b-2"))

	// a's persisted set is untouched and still valid under its original
	// fingerprint; EnsureIndexed only reloads it.
	require.NoError(t, e.EnsureIndexed(ctx, fa, "fp-a-1"))

	after, err := e.ResolveStitched(ctx, ref2)
	require.NoError(t, err)
	require.Len(t, after.Paths, 1)
	assert.Equal(t, def, after.Paths[0].End)
	assert.Equal(t, before.Paths[0].Precedence, after.Paths[0].Precedence)
}

func TestEngine_InvalidatePath(t *testing.T) {
	e := New()
	ctx := context.Background()

	fa, _ := buildHelperModule(t, e)
	fb, ref := buildHelperUse(t, e)
	require.NoError(t, e.IndexFiles(ctx, map[graph.FileID]string{fa: "1", fb: "1"}))

	// Dropping b's fragments makes the stitched query come back empty
	// until the file is re-indexed.
	e.InvalidatePath(ctx, "b")
	result, err := e.ResolveStitched(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, result.Paths)

	require.NoError(t, e.EnsureIndexed(ctx, fb, "2"))
	result, err = e.ResolveStitched(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, result.Paths, 1)

	// Unknown paths are ignored.
	e.InvalidatePath(ctx, "never-registered")
}

func TestEngine_RemoveFileDropsResolutions(t *testing.T) {
	e := New()
	ctx := context.Background()

	fa, _ := buildHelperModule(t, e)
	fb, ref := buildHelperUse(t, e)
	require.NoError(t, e.IndexFiles(ctx, map[graph.FileID]string{fa: "1", fb: "1"}))

	require.NoError(t, e.RemoveFile(ctx, fa))

	// The monolithic search sees the definition gone immediately.
	result, err := e.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, result.Paths)

	// The stitched search does too: a's fragments were evicted with it.
	result, err = e.ResolveStitched(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, result.Paths)
}
