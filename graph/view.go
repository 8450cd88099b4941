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

// View is read access to a consistent snapshot of the graph. It is only
// valid inside the callback passed to Read; the shared lock is held for
// the whole callback, so a query spanning many lookups observes either the
// pre- or post-mutation state of any file, never a mix.
//
// Slices returned by View methods alias internal storage and must not be
// mutated or retained past the callback.
type View struct {
	g *Graph
}

// Read runs fn against a consistent snapshot of the graph.
func (g *Graph) Read(fn func(View) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(View{g: g})
}

// Node returns the public view of a live node.
func (v View) Node(id NodeID) (NodeInfo, bool) {
	return v.g.nodeLocked(id)
}

// Outgoing returns the node's outgoing edges in insertion order.
func (v View) Outgoing(id NodeID) []Edge {
	if _, ok := v.g.nodeLocked(id); !ok {
		return nil
	}
	return v.g.nodes[id].outgoing
}

// ValidFile reports whether the handle names a registered file.
func (v View) ValidFile(id FileID) bool {
	return int(id) > 0 && int(id) < len(v.g.files)
}

// FileNodes returns the live nodes owned by the file, in creation order.
func (v View) FileNodes(id FileID) []NodeID {
	if !v.ValidFile(id) {
		return nil
	}
	var out []NodeID
	for _, n := range v.g.files[id].nodes {
		if v.g.nodes[n].live {
			out = append(out, n)
		}
	}
	return out
}

// References returns the file's reference push nodes in creation order.
func (v View) References(id FileID) []NodeID {
	return v.filter(id, func(n NodeInfo) bool { return n.Reference })
}

// ExportedScopes returns the file's exported scope nodes in creation order.
func (v View) ExportedScopes(id FileID) []NodeID {
	return v.filter(id, func(n NodeInfo) bool {
		return n.Kind == KindScope && n.Exported
	})
}

func (v View) filter(id FileID, keep func(NodeInfo) bool) []NodeID {
	if !v.ValidFile(id) {
		return nil
	}
	var out []NodeID
	for _, n := range v.g.files[id].nodes {
		if v.g.nodes[n].live && keep(v.g.nodes[n].info) {
			out = append(out, n)
		}
	}
	return out
}
