// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package paths

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/stackscope/cancel"
	"github.com/AleutianAI/stackscope/graph"
)

var finderTracer = otel.Tracer("paths.finder")

// Finder computes resolution paths over one graph.
//
// Thread Safety: safe for concurrent use; each query takes a read snapshot
// of the graph for its whole duration.
type Finder struct {
	g      *graph.Graph
	logger *slog.Logger
}

// NewFinder creates a finder over g. If logger is nil, slog.Default() is
// used.
func NewFinder(g *graph.Graph, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{g: g, logger: logger}
}

// searchState is one worklist entry. The stacks are the state BEFORE the
// node's effect is applied.
type searchState struct {
	node       graph.NodeID
	symbols    SymbolStack
	scopes     ScopeStack
	edges      []graph.Edge
	precedence int
}

// stateKey is the cycle signature of a state.
type stateKey struct {
	node graph.NodeID
	ss   uint64
	cs   uint64
}

// FindDefinitions returns every complete path from the reference node ref
// to a definition, under the configured bounds.
//
// Description:
//
//	Runs a breadth-first forward search applying each node's stack effect.
//	A complete path ends at a definition with an empty symbol stack.
//	States repeating a (node, symbol stack, scope stack) signature are
//	cycles and are pruned. Limit hits and cancellation are reported in the
//	result envelope, not as errors.
//
// Inputs:
//   - ctx: carries the trace span; context cancellation is honoured
//     between worklist pops like the token.
//   - ref: the reference node to resolve. Must carry the reference flag.
//
// Outputs:
//   - *Result: complete paths ordered per the precedence mode, plus the
//     truncated/cancelled flags.
//   - error: ErrNotReference or graph.ErrUnknownNode for a bad start node.
func (f *Finder) FindDefinitions(ctx context.Context, ref graph.NodeID, opts ...Option) (*Result, error) {
	options := applyOptions(opts)
	queryID := uuid.NewString()

	ctx, span := finderTracer.Start(ctx, "paths.FindDefinitions",
		trace.WithAttributes(
			attribute.String("query_id", queryID),
			attribute.Int("start_node", int(ref)),
			attribute.String("precedence_mode", options.Mode.String()),
		),
	)
	defer span.End()

	result := &Result{QueryID: queryID}
	err := f.g.Read(func(v graph.View) error {
		info, ok := v.Node(ref)
		if !ok {
			return graph.ErrUnknownNode
		}
		if !info.Reference {
			return ErrNotReference
		}
		return f.search(ctx, v, searchState{node: ref}, options, result)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Paths = Rank(result.Paths, options.Mode)
	span.SetAttributes(
		attribute.Int("paths_found", len(result.Paths)),
		attribute.Bool("truncated", result.Truncated),
		attribute.Bool("cancelled", result.Cancelled),
	)
	f.logger.Debug("reference resolved",
		slog.String("query_id", queryID),
		slog.Int("paths", len(result.Paths)),
		slog.Bool("truncated", result.Truncated),
		slog.Bool("cancelled", result.Cancelled),
	)
	return result, nil
}

// search drains the worklist, appending complete paths to result.
func (f *Finder) search(ctx context.Context, v graph.View, initial searchState, options Options, result *Result) error {
	worklist := []searchState{initial}
	seen := make(map[stateKey]struct{})

	for len(worklist) > 0 {
		if cancelled(ctx, options.Token) {
			result.Cancelled = true
			return nil
		}

		st := worklist[0]
		worklist = worklist[1:]

		key := stateKey{node: st.node, ss: st.symbols.Hash(), cs: st.scopes.Hash()}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		info, ok := v.Node(st.node)
		if !ok {
			return fmt.Errorf("%w: node %d vanished mid-query", ErrInternal, st.node)
		}

		symbols, scopes, jump, ok := applyEffect(info, st.symbols, st.scopes)
		if !ok {
			continue
		}

		if info.Definition && symbols.IsEmpty() {
			result.Paths = append(result.Paths, Path{
				Start:      initial.node,
				End:        st.node,
				Edges:      st.edges,
				Symbols:    symbols,
				Scopes:     scopes,
				Precedence: st.precedence,
			})
			if len(result.Paths) >= options.MaxPaths {
				result.Truncated = true
				return nil
			}
			continue
		}

		if len(st.edges) >= options.MaxPathLength {
			result.Truncated = true
			continue
		}

		if info.Kind == graph.KindJumpToScope {
			// The destination came off the scope stack, not an out-edge.
			worklist = append(worklist, searchState{
				node:       jump,
				symbols:    symbols,
				scopes:     scopes,
				edges:      appendEdge(st.edges, graph.Edge{From: graph.JumpToScope, To: jump}),
				precedence: st.precedence,
			})
			continue
		}

		for _, e := range v.Outgoing(st.node) {
			worklist = append(worklist, searchState{
				node:       e.To,
				symbols:    symbols,
				scopes:     scopes,
				edges:      appendEdge(st.edges, e),
				precedence: st.precedence + e.Precedence,
			})
		}
	}
	return nil
}

// applyEffect applies the node's stack effect. For JumpToScope the popped
// concrete scope is returned as the jump destination. ok is false when the
// effect's requirement fails, which kills the path.
func applyEffect(info graph.NodeInfo, ss SymbolStack, cs ScopeStack) (SymbolStack, ScopeStack, graph.NodeID, bool) {
	switch info.Kind {
	case graph.KindScope, graph.KindRoot:
		return ss, cs, graph.InvalidNode, true

	case graph.KindPushSymbol:
		return ss.Push(SymbolEntry{Symbol: info.Symbol}), cs, graph.InvalidNode, true

	case graph.KindPushScopedSymbol:
		entry := SymbolEntry{Symbol: info.Symbol, Scope: ScopeRef{Node: info.AttachedScope}}
		return ss.Push(entry), cs, graph.InvalidNode, true

	case graph.KindPopSymbol:
		top, rest, ok := ss.Pop()
		if !ok || top.Symbol != info.Symbol {
			return ss, cs, graph.InvalidNode, false
		}
		return rest, cs, graph.InvalidNode, true

	case graph.KindPopScopedSymbol:
		top, rest, ok := ss.Pop()
		if !ok || top.Symbol != info.Symbol || top.Scope.IsNone() {
			return ss, cs, graph.InvalidNode, false
		}
		return rest, cs.Push(top.Scope), graph.InvalidNode, true

	case graph.KindDropScopes:
		return ss, ScopeStack{}, graph.InvalidNode, true

	case graph.KindJumpToScope:
		top, rest, ok := cs.Pop()
		if !ok || top.Node == graph.InvalidNode {
			return ss, cs, graph.InvalidNode, false
		}
		return ss, rest, top.Node, true

	default:
		return ss, cs, graph.InvalidNode, false
	}
}

// appendEdge copies the edge list; states branching from a shared prefix
// must not alias each other's backing arrays.
func appendEdge(edges []graph.Edge, e graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(edges)+1)
	copy(out, edges)
	out[len(edges)] = e
	return out
}

// cancelled polls the context and the token; this is the only suspension
// point of the search.
func cancelled(ctx context.Context, t *cancel.Token) bool {
	if t.Cancelled() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
