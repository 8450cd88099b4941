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
	"fmt"
	"sync"

	"github.com/AleutianAI/stackscope/intern"
)

// node is the internal arena slot backing one NodeID.
type node struct {
	info     NodeInfo
	live     bool
	ordinal  uint32
	outgoing []Edge
	incoming []Edge
}

// fileData is the internal record backing one FileID.
type fileData struct {
	path string
	// nodes lists owned nodes in creation order; a node's ordinal is its
	// index here at creation time. Reset on eviction.
	nodes []NodeID
}

// Graph is the stack graph store.
//
// See the package documentation for the lifecycle and locking model.
type Graph struct {
	mu   sync.RWMutex
	opts Options

	symbols *intern.Table

	// nodes is the node arena, indexed by NodeID. Slot 0 is unused so the
	// zero NodeID stays invalid.
	nodes []node

	// files is the file arena, indexed by FileID. Slot 0 is unused.
	files   []fileData
	fileIDs map[string]FileID

	source map[NodeID]SourceInfo

	// lineIndex buckets nodes with source info by (file, 0-based line) for
	// positional lookup.
	lineIndex map[FileID]map[int][]NodeID

	// bySymbol indexes push/pop nodes by symbol.
	bySymbol map[intern.Symbol][]NodeID

	edgeCount int
}

// New creates an empty graph holding the two singleton nodes. The interner
// is shared with the caller: node symbols are handles into it.
func New(symbols *intern.Table, opts ...Option) *Graph {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	g := &Graph{
		opts:      options,
		symbols:   symbols,
		nodes:     make([]node, 3),
		files:     make([]fileData, 1),
		fileIDs:   make(map[string]FileID),
		source:    make(map[NodeID]SourceInfo),
		lineIndex: make(map[FileID]map[int][]NodeID),
		bySymbol:  make(map[intern.Symbol][]NodeID),
	}
	g.nodes[Root] = node{info: NodeInfo{ID: Root, Kind: KindRoot}, live: true}
	g.nodes[JumpToScope] = node{info: NodeInfo{ID: JumpToScope, Kind: KindJumpToScope}, live: true}
	return g
}

// Symbols returns the interner backing this graph's node symbols.
func (g *Graph) Symbols() *intern.Table {
	return g.symbols
}

// RegisterFile returns the handle for path, allocating one on first use.
// Idempotent: the same path always yields the same handle, including after
// the file's contents were evicted.
func (g *Graph) RegisterFile(path string) FileID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registerLocked(path)
}

func (g *Graph) registerLocked(path string) FileID {
	if id, ok := g.fileIDs[path]; ok {
		return id
	}
	id := FileID(len(g.files))
	g.files = append(g.files, fileData{path: path})
	g.fileIDs[path] = id
	return id
}

// BuildFile populates the file at path under the single mutation lock.
//
// Description:
//
//	The callback receives a FileWriter bound to the file and adds nodes,
//	edges, and source info through it. The lock is held for the whole
//	callback, so concurrent readers observe the file either entirely
//	before or entirely after the build. If the callback returns an error,
//	every node and edge it added is removed and the error is returned.
//
// Example:
//
//	id, err := g.BuildFile("a.py", func(w *graph.FileWriter) error {
//	    def, err := w.PopSymbol(sym, true)
//	    if err != nil {
//	        return err
//	    }
//	    return w.Edge(graph.Root, def, 0)
//	})
func (g *Graph) BuildFile(path string, fn func(*FileWriter) error) (FileID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.registerLocked(path)
	mark := len(g.files[id].nodes)

	w := &FileWriter{g: g, file: id}
	if err := fn(w); err != nil {
		g.rollbackLocked(id, mark, w)
		return InvalidFile, fmt.Errorf("building %s: %w", path, err)
	}
	return id, nil
}

// rollbackLocked undoes everything a failed BuildFile callback did: the
// nodes it added (with their edges), the edges it added between
// pre-existing nodes, and the source info it set or overwrote.
func (g *Graph) rollbackLocked(id FileID, mark int, w *FileWriter) {
	added := g.files[id].nodes[mark:]
	g.removeNodesLocked(added)
	g.files[id].nodes = g.files[id].nodes[:mark]

	// Edges whose endpoints pre-existed were not touched by the node
	// removal above.
	for _, e := range w.addedEdges {
		g.removeEdgeLocked(e)
	}
	for _, undo := range w.sourceUndo {
		if undo.had {
			g.source[undo.node] = undo.prev
		} else {
			delete(g.source, undo.node)
		}
	}
}

// removeEdgeLocked deletes one occurrence of e, if still present.
func (g *Graph) removeEdgeLocked(e Edge) {
	if int(e.From) >= len(g.nodes) || int(e.To) >= len(g.nodes) {
		return
	}
	if !g.nodes[e.From].live || !g.nodes[e.To].live {
		return
	}
	out := g.nodes[e.From].outgoing
	for i, cur := range out {
		if cur == e {
			g.nodes[e.From].outgoing = append(out[:i:i], out[i+1:]...)
			in := g.nodes[e.To].incoming
			for j, ie := range in {
				if ie == e {
					g.nodes[e.To].incoming = append(in[:j:j], in[j+1:]...)
					break
				}
			}
			g.edgeCount--
			return
		}
	}
}

// RemoveFile evicts every node and edge the file owns, together with the
// edges incident on those nodes from other files or the singletons. The
// file stays registered; its handle remains valid and stable.
func (g *Graph) RemoveFile(id FileID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if int(id) <= 0 || int(id) >= len(g.files) {
		return ErrUnknownFile
	}
	f := &g.files[id]
	g.removeNodesLocked(f.nodes)
	f.nodes = nil
	delete(g.lineIndex, id)
	return nil
}

// removeNodesLocked kills the given nodes and detaches every edge incident
// on them. Caller holds the write lock.
func (g *Graph) removeNodesLocked(ids []NodeID) {
	dead := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		dead[id] = true
	}

	for _, id := range ids {
		n := &g.nodes[id]
		if !n.live {
			continue
		}

		// Every outgoing edge dies with its source; mirror entries on live
		// sinks are dropped. Edges between two dead nodes are counted once,
		// at the source.
		g.edgeCount -= len(n.outgoing)
		for _, e := range n.outgoing {
			if !dead[e.To] {
				g.nodes[e.To].incoming = dropEdges(g.nodes[e.To].incoming, dead)
			}
		}
		// Incoming edges from live sources die too; they are not in any
		// dead node's outgoing list, so count them here.
		for _, e := range n.incoming {
			if !dead[e.From] {
				g.nodes[e.From].outgoing = dropEdges(g.nodes[e.From].outgoing, dead)
				g.edgeCount--
			}
		}

		if sym := n.info.Symbol; sym != intern.InvalidSymbol {
			g.bySymbol[sym] = dropNodes(g.bySymbol[sym], dead)
			if len(g.bySymbol[sym]) == 0 {
				delete(g.bySymbol, sym)
			}
		}
		delete(g.source, id)

		n.live = false
		n.outgoing = nil
		n.incoming = nil
	}
}

// dropEdges filters out edges whose other endpoint is dead. The kept edges
// preserve insertion order.
func dropEdges(edges []Edge, dead map[NodeID]bool) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if !dead[e.From] && !dead[e.To] {
			kept = append(kept, e)
		}
	}
	return kept
}

func dropNodes(ids []NodeID, dead map[NodeID]bool) []NodeID {
	kept := ids[:0]
	for _, id := range ids {
		if !dead[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

// -----------------------------------------------------------------------------
// FileWriter
// -----------------------------------------------------------------------------

// FileWriter adds nodes and edges to one file inside a BuildFile callback.
// It is only valid for the duration of the callback. The writer keeps an
// undo log so a failed build leaves no trace.
type FileWriter struct {
	g    *Graph
	file FileID

	addedEdges []Edge
	sourceUndo []sourceUndo
}

type sourceUndo struct {
	node NodeID
	had  bool
	prev SourceInfo
}

// File returns the handle of the file being built.
func (w *FileWriter) File() FileID {
	return w.file
}

func (w *FileWriter) addNode(info NodeInfo) (NodeID, error) {
	g := w.g
	// The two singleton slots never count against the limit.
	if len(g.nodes)-3 >= g.opts.MaxNodes {
		return InvalidNode, ErrTooManyNodes
	}

	id := NodeID(len(g.nodes))
	info.ID = id
	info.File = w.file

	f := &g.files[w.file]
	g.nodes = append(g.nodes, node{
		info:    info,
		live:    true,
		ordinal: uint32(len(f.nodes)),
	})
	f.nodes = append(f.nodes, id)
	if info.Symbol != intern.InvalidSymbol {
		g.bySymbol[info.Symbol] = append(g.bySymbol[info.Symbol], id)
	}
	return id, nil
}

// Scope adds a scope node. Exported scopes may be named as the attached
// scope of a scoped push.
func (w *FileWriter) Scope(exported bool) (NodeID, error) {
	return w.addNode(NodeInfo{Kind: KindScope, Exported: exported})
}

// PushSymbol adds a push node for sym. A reference push is a query start.
func (w *FileWriter) PushSymbol(sym intern.Symbol, reference bool) (NodeID, error) {
	if sym == intern.InvalidSymbol {
		return InvalidNode, ErrInvalidSymbol
	}
	return w.addNode(NodeInfo{Kind: KindPushSymbol, Symbol: sym, Reference: reference})
}

// PopSymbol adds a pop node for sym. A definition pop is a query target.
func (w *FileWriter) PopSymbol(sym intern.Symbol, definition bool) (NodeID, error) {
	if sym == intern.InvalidSymbol {
		return InvalidNode, ErrInvalidSymbol
	}
	return w.addNode(NodeInfo{Kind: KindPopSymbol, Symbol: sym, Definition: definition})
}

// PushScopedSymbol adds a scoped push for sym carrying attached, which must
// be an exported scope node already present in the graph.
func (w *FileWriter) PushScopedSymbol(sym intern.Symbol, attached NodeID, reference bool) (NodeID, error) {
	if sym == intern.InvalidSymbol {
		return InvalidNode, ErrInvalidSymbol
	}
	target, ok := w.g.nodeLocked(attached)
	if !ok {
		return InvalidNode, ErrUnknownNode
	}
	if target.Kind != KindScope || !target.Exported {
		return InvalidNode, ErrNotExportedScope
	}
	return w.addNode(NodeInfo{
		Kind:          KindPushScopedSymbol,
		Symbol:        sym,
		AttachedScope: attached,
		Reference:     reference,
	})
}

// PopScopedSymbol adds a scoped pop for sym.
func (w *FileWriter) PopScopedSymbol(sym intern.Symbol, definition bool) (NodeID, error) {
	if sym == intern.InvalidSymbol {
		return InvalidNode, ErrInvalidSymbol
	}
	return w.addNode(NodeInfo{Kind: KindPopScopedSymbol, Symbol: sym, Definition: definition})
}

// DropScopes adds a node that clears the scope stack.
func (w *FileWriter) DropScopes() (NodeID, error) {
	return w.addNode(NodeInfo{Kind: KindDropScopes})
}

// Edge links from to to with the given precedence. Both endpoints must
// exist; a duplicate of an existing (from, to, precedence) triple is a
// no-op, while the same endpoints with a different precedence are kept as
// an alternative.
func (w *FileWriter) Edge(from, to NodeID, precedence int) error {
	if precedence < 0 {
		return ErrNegativePrecedence
	}
	g := w.g
	src, ok := g.nodeLocked(from)
	if !ok {
		return fmt.Errorf("edge source: %w", ErrUnknownNode)
	}
	sink, ok := g.nodeLocked(to)
	if !ok {
		return fmt.Errorf("edge sink: %w", ErrUnknownNode)
	}
	if src.File != w.file && sink.File != w.file {
		return fmt.Errorf("edge endpoints: %w", ErrForeignNode)
	}
	for _, e := range g.nodes[from].outgoing {
		if e.To == to && e.Precedence == precedence {
			return nil
		}
	}
	if g.edgeCount >= g.opts.MaxEdges {
		return ErrTooManyEdges
	}

	e := Edge{From: from, To: to, Precedence: precedence}
	g.nodes[from].outgoing = append(g.nodes[from].outgoing, e)
	g.nodes[to].incoming = append(g.nodes[to].incoming, e)
	g.edgeCount++
	w.addedEdges = append(w.addedEdges, e)
	return nil
}

// SetSourceInfo attaches source provenance to a node owned by this file.
func (w *FileWriter) SetSourceInfo(id NodeID, info SourceInfo) error {
	g := w.g
	n, ok := g.nodeLocked(id)
	if !ok {
		return ErrUnknownNode
	}
	if n.File != w.file {
		return ErrForeignNode
	}
	if err := validateSpan(info.Span); err != nil {
		return err
	}
	if info.DefiniensSpan != nil {
		if err := validateSpan(*info.DefiniensSpan); err != nil {
			return err
		}
	}

	prev, had := g.source[id]
	w.sourceUndo = append(w.sourceUndo, sourceUndo{node: id, had: had, prev: prev})
	g.source[id] = info
	lines := g.lineIndex[w.file]
	if lines == nil {
		lines = make(map[int][]NodeID)
		g.lineIndex[w.file] = lines
	}
	for line := info.Span.StartLine; line <= info.Span.EndLine; line++ {
		lines[line] = append(lines[line], id)
	}
	return nil
}

func validateSpan(s Span) error {
	if s.EndByte < s.StartByte || s.EndLine < s.StartLine {
		return ErrInvalidSpan
	}
	if s.StartLine == s.EndLine && s.EndColumn < s.StartColumn {
		return ErrInvalidSpan
	}
	return nil
}
