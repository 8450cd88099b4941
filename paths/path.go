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
	"sort"

	"github.com/AleutianAI/stackscope/cancel"
	"github.com/AleutianAI/stackscope/graph"
)

// Default query limits.
const (
	// DefaultMaxPaths is the default cap on complete paths per query.
	DefaultMaxPaths = 10_000

	// DefaultMaxPathLength is the default cap on edges per path.
	DefaultMaxPathLength = 512
)

// PrecedenceMode selects how competing complete paths are reported.
type PrecedenceMode int

const (
	// PrecedenceAll reports every complete path, sorted by descending
	// cumulative precedence with a stable discovery-order tie-break.
	PrecedenceAll PrecedenceMode = iota

	// PrecedenceTopOnly reports only the maximum-precedence set.
	PrecedenceTopOnly
)

// String returns the string representation of the mode.
func (m PrecedenceMode) String() string {
	switch m {
	case PrecedenceAll:
		return "all_sorted"
	case PrecedenceTopOnly:
		return "top_only"
	default:
		return "unknown"
	}
}

// Path is a complete or in-progress resolution path.
type Path struct {
	// Start is the node the path begins at, usually a reference.
	Start graph.NodeID

	// End is the node the path currently ends at; for a complete path, a
	// definition.
	End graph.NodeID

	// Edges lists the traversed edges in order. Jumps through the scope
	// stack appear as synthetic zero-precedence edges out of JumpToScope.
	Edges []graph.Edge

	// Symbols is the symbol stack after the end node's effect.
	Symbols SymbolStack

	// Scopes is the scope stack after the end node's effect.
	Scopes ScopeStack

	// Precedence is the cumulative precedence of all traversed edges.
	Precedence int
}

// Result is the envelope of one query. Truncation and cancellation are
// successful outcomes carrying whatever was collected; callers must not
// read a cancelled result as "no definitions".
type Result struct {
	// QueryID identifies the query in logs and traces.
	QueryID string

	// Paths holds the complete paths, ordered per the precedence mode.
	Paths []Path

	// Truncated is set when a limit stopped the search early.
	Truncated bool

	// Cancelled is set when the cancellation token tripped.
	Cancelled bool
}

// Options bound a query.
type Options struct {
	// MaxPaths caps the number of complete paths collected.
	// Default: 10,000
	MaxPaths int

	// MaxPathLength caps the number of edges along one path.
	// Default: 512
	MaxPathLength int

	// Mode selects precedence reporting. Default: PrecedenceAll.
	Mode PrecedenceMode

	// Token is polled between worklist pops. Nil means non-cancellable.
	Token *cancel.Token
}

// DefaultOptions returns the default query bounds.
func DefaultOptions() Options {
	return Options{
		MaxPaths:      DefaultMaxPaths,
		MaxPathLength: DefaultMaxPathLength,
		Mode:          PrecedenceAll,
	}
}

// Option is a functional option for one query.
type Option func(*Options)

// WithMaxPaths caps the number of complete paths collected.
func WithMaxPaths(n int) Option {
	return func(o *Options) {
		o.MaxPaths = n
	}
}

// WithMaxPathLength caps the number of edges along one path.
func WithMaxPathLength(n int) Option {
	return func(o *Options) {
		o.MaxPathLength = n
	}
}

// WithPrecedenceMode selects precedence reporting.
func WithPrecedenceMode(m PrecedenceMode) Option {
	return func(o *Options) {
		o.Mode = m
	}
}

// WithCancellation attaches a cancellation token to the query.
func WithCancellation(t *cancel.Token) Option {
	return func(o *Options) {
		o.Token = t
	}
}

func applyOptions(opts []Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Rank orders complete paths per the precedence mode: descending
// cumulative precedence, stable on discovery order, optionally filtered to
// the top set. The finder and the stitcher share this policy.
func Rank(found []Path, mode PrecedenceMode) []Path {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Precedence > found[j].Precedence
	})
	if mode == PrecedenceTopOnly && len(found) > 0 {
		top := found[0].Precedence
		cut := len(found)
		for i, p := range found {
			if p.Precedence < top {
				cut = i
				break
			}
		}
		found = found[:cut]
	}
	return found
}
