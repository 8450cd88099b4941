// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stackscope/intern"
)

func TestRegisterFile_Idempotent(t *testing.T) {
	g := New(intern.NewTable())

	a := g.RegisterFile("src/a.py")
	b := g.RegisterFile("src/b.py")
	again := g.RegisterFile("src/a.py")

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	path, ok := g.FilePath(a)
	require.True(t, ok)
	assert.Equal(t, "src/a.py", path)
}

func TestBuildFile_Invariants(t *testing.T) {
	syms := intern.NewTable()
	x := syms.Intern("x")

	t.Run("push and pop require a symbol", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			_, err := w.PushSymbol(intern.InvalidSymbol, false)
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidSymbol)

		_, err = g.BuildFile("a", func(w *FileWriter) error {
			_, err := w.PopSymbol(intern.InvalidSymbol, true)
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidSymbol)
	})

	t.Run("scoped push rejects non-exported scope", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			plain, err := w.Scope(false)
			if err != nil {
				return err
			}
			_, err = w.PushScopedSymbol(x, plain, true)
			return err
		})
		assert.ErrorIs(t, err, ErrNotExportedScope)
	})

	t.Run("scoped push rejects non-scope attachment", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			def, err := w.PopSymbol(x, true)
			if err != nil {
				return err
			}
			_, err = w.PushScopedSymbol(x, def, true)
			return err
		})
		assert.ErrorIs(t, err, ErrNotExportedScope)
	})

	t.Run("scoped push accepts exported scope", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			exported, err := w.Scope(true)
			if err != nil {
				return err
			}
			_, err = w.PushScopedSymbol(x, exported, true)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("edge endpoints must exist", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			s, err := w.Scope(false)
			if err != nil {
				return err
			}
			return w.Edge(s, NodeID(4096), 0)
		})
		assert.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("edge precedence must be non-negative", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			s, err := w.Scope(false)
			if err != nil {
				return err
			}
			return w.Edge(Root, s, -1)
		})
		assert.ErrorIs(t, err, ErrNegativePrecedence)
	})

	t.Run("failed build leaves no trace", func(t *testing.T) {
		g := New(syms)
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			if _, err := w.Scope(true); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.Equal(t, Stats{}, g.Stats())
	})
}

func TestEdges_DuplicatePolicy(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms)

	var scope NodeID
	_, err := g.BuildFile("a", func(w *FileWriter) error {
		var err error
		scope, err = w.Scope(false)
		if err != nil {
			return err
		}
		// Identical triple is idempotent.
		if err := w.Edge(Root, scope, 0); err != nil {
			return err
		}
		if err := w.Edge(Root, scope, 0); err != nil {
			return err
		}
		// Same endpoints, different precedence: kept as an alternative.
		return w.Edge(Root, scope, 2)
	})
	require.NoError(t, err)

	out := g.Outgoing(Root)
	require.Len(t, out, 2)
	assert.Equal(t, Edge{From: Root, To: scope, Precedence: 0}, out[0])
	assert.Equal(t, Edge{From: Root, To: scope, Precedence: 2}, out[1])
	assert.Equal(t, 2, g.Stats().Edges)
}

func TestOutgoing_InsertionOrder(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms)

	var targets []NodeID
	_, err := g.BuildFile("a", func(w *FileWriter) error {
		src, err := w.Scope(false)
		if err != nil {
			return err
		}
		for i := 0; i < 5; i++ {
			tgt, err := w.Scope(false)
			if err != nil {
				return err
			}
			targets = append(targets, tgt)
			if err := w.Edge(src, tgt, 0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	nodes := g.FileNodes(1)
	out := g.Outgoing(nodes[0])
	require.Len(t, out, 5)
	for i, e := range out {
		assert.Equal(t, targets[i], e.To, "edge %d out of insertion order", i)
	}
}

func TestRemoveFile(t *testing.T) {
	syms := intern.NewTable()
	helper := syms.Intern("helper")
	g := New(syms)

	// File a: an exported module scope off the root with one definition.
	var moduleScope, def NodeID
	fa, err := g.BuildFile("a", func(w *FileWriter) error {
		var err error
		moduleScope, err = w.Scope(true)
		if err != nil {
			return err
		}
		def, err = w.PopSymbol(helper, true)
		if err != nil {
			return err
		}
		if err := w.Edge(Root, moduleScope, 0); err != nil {
			return err
		}
		return w.Edge(moduleScope, def, 0)
	})
	require.NoError(t, err)

	// File b: a reference reaching into the root.
	var ref NodeID
	fb, err := g.BuildFile("b", func(w *FileWriter) error {
		var err error
		ref, err = w.PushSymbol(helper, true)
		if err != nil {
			return err
		}
		return w.Edge(ref, Root, 0)
	})
	require.NoError(t, err)

	before := g.Stats()
	require.Equal(t, Stats{Nodes: 3, Edges: 3, Files: 2}, before)

	// Evicting a removes its nodes and the root edge into it, but leaves b
	// and the singletons untouched.
	require.NoError(t, g.RemoveFile(fa))

	_, ok := g.Node(moduleScope)
	assert.False(t, ok, "evicted node still visible")
	_, ok = g.Node(def)
	assert.False(t, ok)
	_, ok = g.Node(ref)
	assert.True(t, ok, "node of another file was evicted")
	_, ok = g.Node(Root)
	assert.True(t, ok, "singleton was evicted")

	assert.Empty(t, g.Outgoing(Root))
	assert.Len(t, g.Outgoing(ref), 1)
	assert.Equal(t, Stats{Nodes: 1, Edges: 1, Files: 1}, g.Stats())
	assert.Empty(t, g.FileNodes(fa))

	// Same-path registration keeps the handle stable after eviction.
	assert.Equal(t, fa, g.RegisterFile("a"))
	assert.Equal(t, fb, g.RegisterFile("b"))
}

func TestRemoveFile_Unknown(t *testing.T) {
	g := New(intern.NewTable())
	assert.ErrorIs(t, g.RemoveFile(FileID(7)), ErrUnknownFile)
	assert.ErrorIs(t, g.RemoveFile(InvalidFile), ErrUnknownFile)
}

func TestSourceInfo(t *testing.T) {
	syms := intern.NewTable()
	x := syms.Intern("x")
	g := New(syms)

	var def NodeID
	fa, err := g.BuildFile("a", func(w *FileWriter) error {
		var err error
		def, err = w.PopSymbol(x, true)
		if err != nil {
			return err
		}
		return w.SetSourceInfo(def, SourceInfo{
			Span: Span{
				StartByte: 10, EndByte: 11,
				StartLine: 2, StartColumn: 4,
				EndLine: 2, EndColumn: 5,
			},
			SyntaxType: "variable",
		})
	})
	require.NoError(t, err)

	info, ok := g.SourceInfo(def)
	require.True(t, ok)
	assert.Equal(t, "variable", info.SyntaxType)
	assert.Equal(t, 10, info.Span.StartByte)

	t.Run("rejects inverted span", func(t *testing.T) {
		_, err := g.BuildFile("a", func(w *FileWriter) error {
			n, err := w.Scope(false)
			if err != nil {
				return err
			}
			return w.SetSourceInfo(n, SourceInfo{
				Span: Span{StartByte: 5, EndByte: 1},
			})
		})
		assert.ErrorIs(t, err, ErrInvalidSpan)
	})

	t.Run("rejects foreign node", func(t *testing.T) {
		_, err := g.BuildFile("b", func(w *FileWriter) error {
			return w.SetSourceInfo(def, SourceInfo{})
		})
		assert.ErrorIs(t, err, ErrForeignNode)
	})

	_ = fa
}

func TestNodeAtPosition(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms)

	// An outer span enclosing an inner one on the same line:
	//   line 3 (1-based):  outer covers cols 1-30, inner covers cols 10-15.
	var outer, inner NodeID
	fa, err := g.BuildFile("a", func(w *FileWriter) error {
		var err error
		outer, err = w.Scope(false)
		if err != nil {
			return err
		}
		inner, err = w.PushSymbol(syms.Intern("x"), true)
		if err != nil {
			return err
		}
		if err := w.SetSourceInfo(outer, SourceInfo{
			Span: Span{StartByte: 40, EndByte: 70, StartLine: 2, StartColumn: 0, EndLine: 2, EndColumn: 30},
		}); err != nil {
			return err
		}
		return w.SetSourceInfo(inner, SourceInfo{
			Span: Span{StartByte: 49, EndByte: 55, StartLine: 2, StartColumn: 9, EndLine: 2, EndColumn: 15},
		})
	})
	require.NoError(t, err)

	t.Run("innermost wins", func(t *testing.T) {
		got, ok := g.NodeAtPosition(fa, 3, 12)
		require.True(t, ok)
		assert.Equal(t, inner, got)
	})

	t.Run("outside inner falls back to outer", func(t *testing.T) {
		got, ok := g.NodeAtPosition(fa, 3, 20)
		require.True(t, ok)
		assert.Equal(t, outer, got)
	})

	t.Run("end column is exclusive", func(t *testing.T) {
		got, ok := g.NodeAtPosition(fa, 3, 16)
		require.True(t, ok)
		assert.Equal(t, outer, got)
	})

	t.Run("miss is absence", func(t *testing.T) {
		_, ok := g.NodeAtPosition(fa, 9, 1)
		assert.False(t, ok)
		_, ok = g.NodeAtPosition(FileID(42), 1, 1)
		assert.False(t, ok)
	})
}

func TestNodeRef_RoundTrip(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms)

	var def NodeID
	_, err := g.BuildFile("a", func(w *FileWriter) error {
		if _, err := w.Scope(false); err != nil {
			return err
		}
		var err error
		def, err = w.PopSymbol(syms.Intern("x"), true)
		return err
	})
	require.NoError(t, err)

	ref, ok := g.NodeRef(def)
	require.True(t, ok)
	assert.Equal(t, Ref{File: "a", Ordinal: 1}, ref)

	back, ok := g.ResolveRef(ref)
	require.True(t, ok)
	assert.Equal(t, def, back)

	rootRef, ok := g.NodeRef(Root)
	require.True(t, ok)
	assert.Equal(t, Ref{Singleton: "root"}, rootRef)
	back, ok = g.ResolveRef(rootRef)
	require.True(t, ok)
	assert.Equal(t, Root, back)

	t.Run("stale after eviction", func(t *testing.T) {
		fa, _ := g.File("a")
		require.NoError(t, g.RemoveFile(fa))
		_, ok := g.ResolveRef(ref)
		assert.False(t, ok)
	})
}

func TestNodeLimit(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms, WithMaxNodes(2))

	_, err := g.BuildFile("a", func(w *FileWriter) error {
		for i := 0; i < 3; i++ {
			if _, err := w.Scope(false); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrTooManyNodes)
	// The rejected build rolled back entirely.
	assert.Equal(t, Stats{}, g.Stats())
}

func TestEdgeLimit(t *testing.T) {
	syms := intern.NewTable()
	g := New(syms, WithMaxEdges(1))

	_, err := g.BuildFile("a", func(w *FileWriter) error {
		a, err := w.Scope(false)
		if err != nil {
			return err
		}
		b, err := w.Scope(false)
		if err != nil {
			return err
		}
		if err := w.Edge(a, b, 0); err != nil {
			return err
		}
		return w.Edge(b, a, 0)
	})
	assert.ErrorIs(t, err, ErrTooManyEdges)
}
