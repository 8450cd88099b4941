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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/intern"
)

var partialTracer = otel.Tracer("paths.partial")

// SymbolRequirement is one entry of a partial path's symbol stack
// precondition: the incoming stack must start with this symbol. The scope
// slot is a fresh variable; unification binds it when fragments are
// composed. RequiresScope marks entries consumed by a scoped pop, which
// only match stack entries carrying an attached scope.
type SymbolRequirement struct {
	Symbol        intern.Symbol `json:"symbol"`
	Scope         ScopeRef      `json:"scope"`
	RequiresScope bool          `json:"requires_scope,omitempty"`
}

// PartialPath is a path fragment local to one file.
//
// Semantics: given an incoming symbol stack SymbolPre ++ rest, the fragment
// rewrites it to SymbolPost ++ rest. The scope stack has no precondition —
// a fragment that would consume scopes it did not produce ends at
// JumpToScope instead — so its effect is ScopePost ++ rest, or exactly
// ScopePost when ScopePostExact records that a drop happened inside the
// fragment.
//
// Fragments start at references, exported scopes, or the root; they end at
// the root, at JumpToScope, or at an in-file definition. Cross-file
// resolution composes fragments at those endpoints.
type PartialPath struct {
	Start graph.NodeID `json:"start"`
	End   graph.NodeID `json:"end"`

	SymbolPre  []SymbolRequirement `json:"symbol_pre,omitempty"`
	SymbolPost []SymbolEntry       `json:"symbol_post,omitempty"`

	ScopePost      []ScopeRef `json:"scope_post,omitempty"`
	ScopePostExact bool       `json:"scope_post_exact,omitempty"`

	Edges      []graph.Edge `json:"edges,omitempty"`
	Precedence int          `json:"precedence,omitempty"`
}

// PartialResult is the envelope of one file's partial-path computation.
type PartialResult struct {
	File      graph.FileID
	Paths     []PartialPath
	Truncated bool
	Cancelled bool
}

// partialState is one worklist entry of the per-file search. Stacks are
// pre-effect of node. pre accumulates the requirement: pops that underflow
// the produced stack consume the incoming stack instead.
type partialState struct {
	start   graph.NodeID
	node    graph.NodeID
	pre     []SymbolRequirement
	preHash uint64
	symbols SymbolStack
	scopes  ScopeStack
	dropped bool
	nextVar uint32
	edges   []graph.Edge
	prec    int
}

type partialKey struct {
	node    graph.NodeID
	pre     uint64
	ss      uint64
	cs      uint64
	dropped bool
}

// ComputePartialPaths enumerates the partial paths of one file's subgraph.
//
// Description:
//
//	Runs the forward search within the file, treating the singletons as
//	shared boundary nodes. Start nodes are the file's references and
//	exported scopes plus the root. A pop against an empty produced stack
//	extends the fragment's requirement rather than failing. Fragments are
//	recorded on reaching the root, a jump whose target is not locally
//	determined, or an in-file definition that empties the produced stack.
//
// Limitations:
//   - Edges leading directly into another file's nodes are not followed;
//     files communicate through the singletons only.
func (f *Finder) ComputePartialPaths(ctx context.Context, file graph.FileID, opts ...Option) (*PartialResult, error) {
	options := applyOptions(opts)

	ctx, span := partialTracer.Start(ctx, "paths.ComputePartialPaths",
		trace.WithAttributes(attribute.Int("file", int(file))),
	)
	defer span.End()

	result := &PartialResult{File: file}
	err := f.g.Read(func(v graph.View) error {
		if !v.ValidFile(file) {
			return ErrUnknownFile
		}

		var starts []graph.NodeID
		starts = append(starts, v.References(file)...)
		starts = append(starts, v.ExportedScopes(file)...)
		starts = append(starts, graph.Root)

		for _, start := range starts {
			if err := f.partialSearch(ctx, v, file, start, options, result); err != nil {
				return err
			}
			if result.Cancelled || result.Truncated {
				break
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("fragments", len(result.Paths)),
		attribute.Bool("truncated", result.Truncated),
		attribute.Bool("cancelled", result.Cancelled),
	)
	f.logger.Debug("partial paths computed",
		slog.Int("file", int(file)),
		slog.Int("fragments", len(result.Paths)),
	)
	return result, nil
}

func (f *Finder) partialSearch(ctx context.Context, v graph.View, file graph.FileID, start graph.NodeID, options Options, result *PartialResult) error {
	worklist := []partialState{{start: start, node: start, preHash: emptyHash}}
	seen := make(map[partialKey]struct{})

	for len(worklist) > 0 {
		if cancelled(ctx, options.Token) {
			result.Cancelled = true
			return nil
		}

		st := worklist[0]
		worklist = worklist[1:]

		key := partialKey{
			node:    st.node,
			pre:     st.preHash,
			ss:      st.symbols.Hash(),
			cs:      st.scopes.Hash(),
			dropped: st.dropped,
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		info, ok := v.Node(st.node)
		if !ok {
			return fmt.Errorf("%w: node %d vanished mid-computation", ErrInternal, st.node)
		}

		// Arriving at the root ends the fragment; its out-edges may leave
		// the file, so the stitcher owns the continuation.
		if info.Kind == graph.KindRoot && len(st.edges) > 0 {
			result.Paths = append(result.Paths, st.record(graph.Root))
			if len(result.Paths) >= options.MaxPaths {
				result.Truncated = true
				return nil
			}
			continue
		}

		if info.Kind == graph.KindJumpToScope {
			target, next, resolved := st.resolveJump(v, file)
			if !resolved {
				// The destination depends on scopes the fragment did not
				// produce, or lies in another file. Defer to stitching.
				result.Paths = append(result.Paths, st.record(graph.JumpToScope))
				if len(result.Paths) >= options.MaxPaths {
					result.Truncated = true
					return nil
				}
				continue
			}
			if target == graph.InvalidNode {
				// Provably empty scope stack: the jump can never fire.
				continue
			}
			worklist = append(worklist, next)
			continue
		}

		next, ok := st.applyPartialEffect(info)
		if !ok {
			continue
		}

		if info.Definition && next.symbols.IsEmpty() {
			result.Paths = append(result.Paths, next.record(st.node))
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

		for _, e := range v.Outgoing(st.node) {
			tgt, ok := v.Node(e.To)
			if !ok {
				continue
			}
			if tgt.File != file && tgt.Kind != graph.KindRoot && tgt.Kind != graph.KindJumpToScope {
				continue
			}
			succ := next
			succ.node = e.To
			succ.edges = appendEdge(st.edges, e)
			succ.prec = st.prec + e.Precedence
			worklist = append(worklist, succ)
		}
	}
	return nil
}

// applyPartialEffect applies a non-singleton node's effect, extending the
// requirement when a pop underflows the produced stack.
func (st partialState) applyPartialEffect(info graph.NodeInfo) (partialState, bool) {
	next := st
	switch info.Kind {
	case graph.KindScope, graph.KindRoot:
		return next, true

	case graph.KindPushSymbol:
		next.symbols = st.symbols.Push(SymbolEntry{Symbol: info.Symbol})
		return next, true

	case graph.KindPushScopedSymbol:
		next.symbols = st.symbols.Push(SymbolEntry{
			Symbol: info.Symbol,
			Scope:  ScopeRef{Node: info.AttachedScope},
		})
		return next, true

	case graph.KindPopSymbol:
		if top, rest, ok := st.symbols.Pop(); ok {
			if top.Symbol != info.Symbol {
				return st, false
			}
			next.symbols = rest
			return next, true
		}
		next.requireSymbol(info.Symbol, false)
		return next, true

	case graph.KindPopScopedSymbol:
		if top, rest, ok := st.symbols.Pop(); ok {
			if top.Symbol != info.Symbol || top.Scope.IsNone() {
				return st, false
			}
			next.symbols = rest
			next.scopes = st.scopes.Push(top.Scope)
			return next, true
		}
		v := next.requireSymbol(info.Symbol, true)
		next.scopes = st.scopes.Push(ScopeRef{Var: v})
		return next, true

	case graph.KindDropScopes:
		next.scopes = ScopeStack{}
		next.dropped = true
		return next, true

	default:
		return st, false
	}
}

// requireSymbol appends a requirement entry with a fresh scope variable and
// returns the variable.
func (st *partialState) requireSymbol(sym intern.Symbol, scoped bool) uint32 {
	st.nextVar++
	v := st.nextVar
	pre := make([]SymbolRequirement, len(st.pre)+1)
	copy(pre, st.pre)
	pre[len(st.pre)] = SymbolRequirement{
		Symbol:        sym,
		Scope:         ScopeRef{Var: v},
		RequiresScope: scoped,
	}
	st.pre = pre
	scopedBit := uint32(0)
	if scoped {
		scopedBit = 1
	}
	st.preHash = hashCell(st.preHash, uint32(sym), v, scopedBit)
	return v
}

// resolveJump decides whether a jump can be taken within the file. It
// returns (InvalidNode, _, true) when the scope stack is provably empty,
// a successor state when the target is a concrete in-file scope, and
// resolved == false when the stitcher must take over.
func (st partialState) resolveJump(v graph.View, file graph.FileID) (graph.NodeID, partialState, bool) {
	top, rest, ok := st.scopes.Pop()
	if !ok {
		if st.dropped {
			// Nothing on the produced stack and the incoming stack was
			// discarded by a drop: the jump dead-ends.
			return graph.InvalidNode, st, true
		}
		// The target would come off the incoming stack.
		return graph.InvalidNode, st, false
	}
	if top.IsVar() {
		return graph.InvalidNode, st, false
	}
	info, found := v.Node(top.Node)
	if !found || info.File != file {
		return graph.InvalidNode, st, false
	}

	next := st
	next.node = top.Node
	next.scopes = rest
	next.edges = appendEdge(st.edges, graph.Edge{From: graph.JumpToScope, To: top.Node})
	return top.Node, next, true
}

// record snapshots the state as a finished fragment ending at end.
func (st partialState) record(end graph.NodeID) PartialPath {
	return PartialPath{
		Start:          st.start,
		End:            end,
		SymbolPre:      st.pre,
		SymbolPost:     st.symbols.Entries(),
		ScopePost:      st.scopes.Entries(),
		ScopePostExact: st.dropped,
		Edges:          st.edges,
		Precedence:     st.prec,
	}
}
