// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stitch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/paths"
)

var stitchTracer = otel.Tracer("stitch.stitcher")

// Stitcher joins per-file partial paths into complete paths.
//
// Thread Safety: safe for concurrent use against one graph snapshot.
type Stitcher struct {
	g      *graph.Graph
	db     Database
	logger *slog.Logger
}

// NewStitcher creates a stitcher reading fragments from db. If logger is
// nil, slog.Default() is used.
func NewStitcher(g *graph.Graph, db Database, logger *slog.Logger) *Stitcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stitcher{g: g, db: db, logger: logger}
}

// pathState is a composed path under construction. All stack entries are
// concrete: composition binds fragment scope variables on the spot, and a
// composition that cannot be satisfied from the empty initial stacks is
// dropped.
type pathState struct {
	end     graph.NodeID
	symbols paths.SymbolStack
	scopes  paths.ScopeStack
	edges   []graph.Edge
	prec    int
}

type pathKey struct {
	end graph.NodeID
	ss  uint64
	cs  uint64
}

// Resolve stitches fragments into every complete path from the reference
// node ref to a definition.
//
// Description:
//
//	Seeds with the reference's own fragments, then joins breadth-first:
//	a path ending at the root continues with fragments starting there; a
//	path ending at JumpToScope pops its concrete jump target off the
//	scope stack and continues with fragments starting at that scope.
//	Precedences add across fragments; the precedence mode, limits, and
//	cancellation behave exactly as in the monolithic finder.
func (s *Stitcher) Resolve(ctx context.Context, ref graph.NodeID, opts ...paths.Option) (*paths.Result, error) {
	options := applyStitchOptions(opts)
	queryID := uuid.NewString()

	ctx, span := stitchTracer.Start(ctx, "stitch.Resolve",
		trace.WithAttributes(
			attribute.String("query_id", queryID),
			attribute.Int("start_node", int(ref)),
		),
	)
	defer span.End()

	info, ok := s.g.Node(ref)
	if !ok {
		err := graph.ErrUnknownNode
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !info.Reference {
		err := paths.ErrNotReference
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &paths.Result{QueryID: queryID}

	seeds, err := s.db.PartialPathsFrom(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var worklist []pathState
	for _, frag := range seeds {
		if len(frag.SymbolPre) > 0 {
			// The query starts with empty stacks; a fragment demanding a
			// symbol prefix can never apply here.
			continue
		}
		worklist = append(worklist, pathState{
			end:     frag.End,
			symbols: paths.SymbolStackOf(frag.SymbolPost),
			scopes:  paths.ScopeStackOf(frag.ScopePost),
			edges:   frag.Edges,
			prec:    frag.Precedence,
		})
	}

	seen := make(map[pathKey]struct{})
	joins := 0

	for len(worklist) > 0 {
		if stitchCancelled(ctx, options) {
			result.Cancelled = true
			break
		}

		st := worklist[0]
		worklist = worklist[1:]

		key := pathKey{end: st.end, ss: st.symbols.Hash(), cs: st.scopes.Hash()}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		endInfo, ok := s.g.Node(st.end)
		if !ok {
			// The fragment referenced a node that has since been evicted;
			// treat the path as dead rather than failing the query.
			continue
		}

		if endInfo.Definition && st.symbols.IsEmpty() {
			result.Paths = append(result.Paths, paths.Path{
				Start:      ref,
				End:        st.end,
				Edges:      st.edges,
				Symbols:    st.symbols,
				Scopes:     st.scopes,
				Precedence: st.prec,
			})
			if len(result.Paths) >= options.MaxPaths {
				result.Truncated = true
				break
			}
			continue
		}

		if len(st.edges) >= options.MaxPathLength {
			result.Truncated = true
			continue
		}

		base := st
		var continueFrom graph.NodeID
		switch st.end {
		case graph.Root:
			continueFrom = graph.Root
		case graph.JumpToScope:
			top, rest, ok := st.scopes.Pop()
			if !ok || top.Node == graph.InvalidNode {
				continue
			}
			base.scopes = rest
			base.edges = appendEdges(st.edges, []graph.Edge{{From: graph.JumpToScope, To: top.Node}})
			continueFrom = top.Node
		default:
			// A definition with symbols still pending, or a dead end.
			continue
		}

		candidates, err := s.db.PartialPathsFrom(ctx, continueFrom)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for i := range candidates {
			next, ok := composeConcrete(base, &candidates[i])
			if !ok {
				continue
			}
			joins++
			worklist = append(worklist, next)
		}
	}

	result.Paths = paths.Rank(result.Paths, options.Mode)
	span.SetAttributes(
		attribute.Int("paths_found", len(result.Paths)),
		attribute.Int("joins", joins),
		attribute.Bool("truncated", result.Truncated),
		attribute.Bool("cancelled", result.Cancelled),
	)
	s.logger.Debug("reference stitched",
		slog.String("query_id", queryID),
		slog.Int("paths", len(result.Paths)),
		slog.Int("joins", joins),
	)
	return result, nil
}

// composeConcrete applies a fragment to a concrete path state: the
// fragment's symbol requirement is unified against the path's symbol
// stack, binding the fragment's scope variables, and the substituted
// postconditions are pushed back on.
func composeConcrete(st pathState, frag *paths.PartialPath) (pathState, bool) {
	bindings := make(map[uint32]paths.ScopeRef, len(frag.SymbolPre))

	ss := st.symbols
	for _, req := range frag.SymbolPre {
		top, rest, ok := ss.Pop()
		if !ok || top.Symbol != req.Symbol {
			return st, false
		}
		if req.RequiresScope && top.Scope.IsNone() {
			return st, false
		}
		if req.Scope.Var != 0 {
			bindings[req.Scope.Var] = top.Scope
		}
		ss = rest
	}

	for i := len(frag.SymbolPost) - 1; i >= 0; i-- {
		entry := frag.SymbolPost[i]
		scope, ok := substitute(entry.Scope, bindings)
		if !ok {
			return st, false
		}
		ss = ss.Push(paths.SymbolEntry{Symbol: entry.Symbol, Scope: scope})
	}

	cs := st.scopes
	if frag.ScopePostExact {
		cs = paths.ScopeStack{}
	}
	for i := len(frag.ScopePost) - 1; i >= 0; i-- {
		scope, ok := substitute(frag.ScopePost[i], bindings)
		if !ok {
			return st, false
		}
		cs = cs.Push(scope)
	}

	return pathState{
		end:     frag.End,
		symbols: ss,
		scopes:  cs,
		edges:   appendEdges(st.edges, frag.Edges),
		prec:    st.prec + frag.Precedence,
	}, true
}

// substitute resolves a possibly-variable scope reference against the
// bindings collected during unification.
func substitute(r paths.ScopeRef, bindings map[uint32]paths.ScopeRef) (paths.ScopeRef, bool) {
	if !r.IsVar() {
		return r, true
	}
	bound, ok := bindings[r.Var]
	if !ok {
		return paths.ScopeRef{}, false
	}
	return bound, true
}

func appendEdges(a, b []graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

func applyStitchOptions(opts []paths.Option) paths.Options {
	options := paths.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// stitchCancelled polls the context and the token between fragment joins.
func stitchCancelled(ctx context.Context, options paths.Options) bool {
	if options.Token.Cancelled() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
