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

import "github.com/AleutianAI/stackscope/intern"

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	DefaultMaxEdges = 10_000_000
)

// NodeID is an opaque node handle, unique within one graph.
type NodeID uint32

// Singleton node handles. Every graph owns exactly one root node and one
// jump-to-scope node; they are created with the graph, belong to no file,
// and are immortal.
const (
	// InvalidNode is the zero NodeID. It never refers to a real node.
	InvalidNode NodeID = 0

	// Root anchors globally visible definitions and references.
	Root NodeID = 1

	// JumpToScope is the symbolic target whose destination is determined by
	// the top of the scope stack at traversal time.
	JumpToScope NodeID = 2
)

// FileID is an opaque handle for a registered file.
type FileID uint32

// InvalidFile is the zero FileID, used for nodes that belong to no file.
const InvalidFile FileID = 0

// NodeKind discriminates the closed set of node variants.
type NodeKind int

const (
	// KindScope is a pure connector; it may be exported so scoped pushes
	// can name it.
	KindScope NodeKind = iota

	// KindPushSymbol pushes its symbol onto the symbol stack.
	KindPushSymbol

	// KindPopSymbol pops a matching symbol off the symbol stack.
	KindPopSymbol

	// KindPushScopedSymbol pushes its symbol with an attached exported scope.
	KindPushScopedSymbol

	// KindPopScopedSymbol pops a matching scoped symbol and transfers the
	// attached scope onto the scope stack.
	KindPopScopedSymbol

	// KindDropScopes clears the scope stack.
	KindDropScopes

	// KindRoot is the root singleton.
	KindRoot

	// KindJumpToScope is the jump-to-scope singleton.
	KindJumpToScope
)

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case KindScope:
		return "scope"
	case KindPushSymbol:
		return "push_symbol"
	case KindPopSymbol:
		return "pop_symbol"
	case KindPushScopedSymbol:
		return "push_scoped_symbol"
	case KindPopScopedSymbol:
		return "pop_scoped_symbol"
	case KindDropScopes:
		return "drop_scopes"
	case KindRoot:
		return "root"
	case KindJumpToScope:
		return "jump_to_scope"
	default:
		return "unknown"
	}
}

// Edge is a directed link with a non-negative precedence. Duplicate edges
// with identical precedence are idempotent; duplicates that differ in
// precedence are preserved as alternatives.
type Edge struct {
	// From is the source node.
	From NodeID

	// To is the sink node.
	To NodeID

	// Precedence ranks competing paths; higher wins.
	Precedence int
}

// Span is a half-open source range. Offsets are 0-based bytes; lines and
// columns are 0-based, with columns counted in Unicode scalar values. The
// public API converts from the 1-based convention at the boundary.
type Span struct {
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`

	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Contains reports whether the 0-based point (line, column) falls inside
// the span. The end position is exclusive.
func (s Span) Contains(line, column int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && column < s.StartColumn {
		return false
	}
	if line == s.EndLine && column >= s.EndColumn {
		return false
	}
	return true
}

// lineExtent returns how many lines the span extends past its start line
// (0 for a span on a single line).
func (s Span) lineExtent() int {
	return s.EndLine - s.StartLine
}

// width returns the byte width of the span.
func (s Span) width() int {
	return s.EndByte - s.StartByte
}

// SourceInfo is the optional source provenance of a node.
type SourceInfo struct {
	// Span is the source range the node was produced from.
	Span Span `json:"span"`

	// SyntaxType tags the syntactic construct (e.g. "function", "class").
	SyntaxType string `json:"syntax_type,omitempty"`

	// DefiniensSpan covers the whole definiens of a definition node, as
	// opposed to Span which covers just the defined name.
	DefiniensSpan *Span `json:"definiens_span,omitempty"`
}

// NodeInfo is the immutable public view of a node.
type NodeInfo struct {
	// ID is the node's handle.
	ID NodeID

	// Kind discriminates the node variant.
	Kind NodeKind

	// Symbol is set for push and pop kinds.
	Symbol intern.Symbol

	// AttachedScope is set for scoped pushes; it names an exported scope.
	AttachedScope NodeID

	// Exported marks a scope node that scoped pushes may name.
	Exported bool

	// Definition marks a pop node that resolves a name.
	Definition bool

	// Reference marks a push node that introduces a name to resolve.
	Reference bool

	// File is the owning file, or InvalidFile for the singletons.
	File FileID
}

// IsDefinition reports whether the node is a definition pop.
func (n NodeInfo) IsDefinition() bool { return n.Definition }

// IsReference reports whether the node is a reference push.
func (n NodeInfo) IsReference() bool { return n.Reference }

// Ref is the graph-independent identity of a node, used by the persistence
// layer. Singleton nodes are identified by name; file nodes by their owning
// file path and creation ordinal within that file.
type Ref struct {
	File      string `json:"file,omitempty"`
	Ordinal   uint32 `json:"ordinal,omitempty"`
	Singleton string `json:"singleton,omitempty"`
}

// Stats is a point-in-time snapshot of store contents.
type Stats struct {
	Nodes int
	Edges int
	Files int
}

// Options configures graph limits.
type Options struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 10,000,000
	MaxEdges int
}

// DefaultOptions returns sensible defaults for graph configuration.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// Option is a functional option for configuring a Graph.
type Option func(*Options)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		o.MaxEdges = n
	}
}
