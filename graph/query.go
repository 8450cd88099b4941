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

// nodeLocked returns the public view of a live node. Caller holds a lock.
func (g *Graph) nodeLocked(id NodeID) (NodeInfo, bool) {
	if int(id) <= 0 || int(id) >= len(g.nodes) || !g.nodes[id].live {
		return NodeInfo{}, false
	}
	return g.nodes[id].info, true
}

// Node returns the public view of a live node.
func (g *Graph) Node(id NodeID) (NodeInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeLocked(id)
}

// Outgoing returns the node's outgoing edges in insertion order. The slice
// is a copy and safe to retain.
func (g *Graph) Outgoing(id NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodeLocked(id); !ok {
		return nil
	}
	out := make([]Edge, len(g.nodes[id].outgoing))
	copy(out, g.nodes[id].outgoing)
	return out
}

// Incoming returns the node's incoming edges in insertion order. The slice
// is a copy and safe to retain.
func (g *Graph) Incoming(id NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodeLocked(id); !ok {
		return nil
	}
	in := make([]Edge, len(g.nodes[id].incoming))
	copy(in, g.nodes[id].incoming)
	return in
}

// File returns the handle for a registered path.
func (g *Graph) File(path string) (FileID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.fileIDs[path]
	return id, ok
}

// FilePath returns the path a file handle was registered under.
func (g *Graph) FilePath(id FileID) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(g.files) {
		return "", false
	}
	return g.files[id].path, true
}

// FileNodes returns the live nodes owned by the file, in creation order.
func (g *Graph) FileNodes(id FileID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(g.files) {
		return nil
	}
	out := make([]NodeID, 0, len(g.files[id].nodes))
	for _, n := range g.files[id].nodes {
		if g.nodes[n].live {
			out = append(out, n)
		}
	}
	return out
}

// References returns the file's reference push nodes in creation order.
func (g *Graph) References(id FileID) []NodeID {
	return g.filterFileNodes(id, func(n NodeInfo) bool { return n.Reference })
}

// Definitions returns the file's definition pop nodes in creation order.
func (g *Graph) Definitions(id FileID) []NodeID {
	return g.filterFileNodes(id, func(n NodeInfo) bool { return n.Definition })
}

// ExportedScopes returns the file's exported scope nodes in creation order.
func (g *Graph) ExportedScopes(id FileID) []NodeID {
	return g.filterFileNodes(id, func(n NodeInfo) bool {
		return n.Kind == KindScope && n.Exported
	})
}

func (g *Graph) filterFileNodes(id FileID, keep func(NodeInfo) bool) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(g.files) {
		return nil
	}
	var out []NodeID
	for _, n := range g.files[id].nodes {
		if g.nodes[n].live && keep(g.nodes[n].info) {
			out = append(out, n)
		}
	}
	return out
}

// NodesForSymbol returns the push/pop nodes carrying sym. Debugging aid.
func (g *Graph) NodesForSymbol(sym intern.Symbol) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.bySymbol[sym]
	out := make([]NodeID, len(ids))
	copy(out, ids)
	return out
}

// SourceInfo returns a node's source provenance, if any was attached.
func (g *Graph) SourceInfo(id NodeID) (SourceInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodeLocked(id); !ok {
		return SourceInfo{}, false
	}
	info, ok := g.source[id]
	return info, ok
}

// NodeAtPosition returns the node whose span covers the given position,
// preferring the innermost span on ties. Line and column are 1-based, with
// columns counted in Unicode scalar values, per the public convention; the
// store's 0-based spans are consulted internally. A miss is reported as
// absence, not an error.
func (g *Graph) NodeAtPosition(file FileID, line, column int) (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if line < 1 || column < 1 {
		return InvalidNode, false
	}
	line0, col0 := line-1, column-1

	lines := g.lineIndex[file]
	if lines == nil {
		return InvalidNode, false
	}

	best := InvalidNode
	var bestSpan Span
	for _, id := range lines[line0] {
		if !g.nodes[id].live {
			continue
		}
		span := g.source[id].Span
		if !span.Contains(line0, col0) {
			continue
		}
		if best == InvalidNode || narrower(span, bestSpan) {
			best = id
			bestSpan = span
		}
	}
	return best, best != InvalidNode
}

// narrower reports whether a is strictly inside b by extent: fewer lines,
// or equal lines and fewer bytes.
func narrower(a, b Span) bool {
	if a.lineExtent() != b.lineExtent() {
		return a.lineExtent() < b.lineExtent()
	}
	return a.width() < b.width()
}

// Stats returns a snapshot of store contents. Node and file counts exclude
// the singletons and evicted entries.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Edges: g.edgeCount}
	for i := 3; i < len(g.nodes); i++ {
		if g.nodes[i].live {
			s.Nodes++
		}
	}
	for i := 1; i < len(g.files); i++ {
		if len(g.files[i].nodes) > 0 {
			s.Files++
		}
	}
	return s
}

// NodeRef returns the graph-independent identity of a node for persistence.
func (g *Graph) NodeRef(id NodeID) (Ref, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	info, ok := g.nodeLocked(id)
	if !ok {
		return Ref{}, false
	}
	switch info.Kind {
	case KindRoot:
		return Ref{Singleton: "root"}, true
	case KindJumpToScope:
		return Ref{Singleton: "jump_to_scope"}, true
	}
	return Ref{
		File:    g.files[info.File].path,
		Ordinal: g.nodes[id].ordinal,
	}, true
}

// ResolveRef maps a persisted identity back onto a handle in this graph.
func (g *Graph) ResolveRef(ref Ref) (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch ref.Singleton {
	case "root":
		return Root, true
	case "jump_to_scope":
		return JumpToScope, true
	case "":
	default:
		return InvalidNode, false
	}

	file, ok := g.fileIDs[ref.File]
	if !ok {
		return InvalidNode, false
	}
	nodes := g.files[file].nodes
	if int(ref.Ordinal) >= len(nodes) {
		return InvalidNode, false
	}
	id := nodes[ref.Ordinal]
	if !g.nodes[id].live || g.nodes[id].ordinal != ref.Ordinal {
		return InvalidNode, false
	}
	return id, true
}
