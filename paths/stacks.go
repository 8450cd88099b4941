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
	"encoding/binary"

	"github.com/minio/highwayhash"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/intern"
)

// hashKey seeds the stack signature hashes. The value is arbitrary but must
// be stable so signatures are comparable within a process.
var hashKey = []byte("stackscope.paths.signature.key!!")

// emptyHash is the signature of an empty stack.
const emptyHash uint64 = 0xcbf29ce484222325

// ScopeRef names the scope attached to a symbol stack entry. Either Node is
// set (a concrete exported scope), or Var is set (a placeholder introduced
// by a partial path's requirement), or neither (no attached scope).
type ScopeRef struct {
	Node graph.NodeID `json:"node,omitempty"`
	Var  uint32       `json:"var,omitempty"`
}

// IsNone reports whether the entry carries no scope at all.
func (r ScopeRef) IsNone() bool { return r.Node == graph.InvalidNode && r.Var == 0 }

// IsVar reports whether the scope is a requirement placeholder.
func (r ScopeRef) IsVar() bool { return r.Var != 0 }

// SymbolEntry is one symbol stack entry: a name plus an optional attached
// scope for qualified lookups.
type SymbolEntry struct {
	Symbol intern.Symbol `json:"symbol"`
	Scope  ScopeRef      `json:"scope,omitempty"`
}

func hashCell(tail uint64, a, b, c uint32) uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:], tail)
	binary.LittleEndian.PutUint32(buf[8:], a)
	binary.LittleEndian.PutUint32(buf[12:], b)
	binary.LittleEndian.PutUint32(buf[16:], c)
	return highwayhash.Sum64(buf[:], hashKey)
}

// -----------------------------------------------------------------------------
// Symbol stack
// -----------------------------------------------------------------------------

type symbolCell struct {
	entry SymbolEntry
	tail  *symbolCell
	size  int
	hash  uint64
}

// SymbolStack is a persistent stack of SymbolEntry. The zero value is the
// empty stack. Push and Pop share structure with the original, so keeping
// many search states alive is cheap, and the memoized hash makes
// (node, stacks) cycle keys O(1).
type SymbolStack struct {
	cell *symbolCell
}

// Push returns a stack with e on top.
func (s SymbolStack) Push(e SymbolEntry) SymbolStack {
	var tailHash uint64 = emptyHash
	size := 1
	if s.cell != nil {
		tailHash = s.cell.hash
		size = s.cell.size + 1
	}
	return SymbolStack{cell: &symbolCell{
		entry: e,
		tail:  s.cell,
		size:  size,
		hash:  hashCell(tailHash, uint32(e.Symbol), uint32(e.Scope.Node), e.Scope.Var),
	}}
}

// Pop returns the top entry and the remaining stack.
func (s SymbolStack) Pop() (SymbolEntry, SymbolStack, bool) {
	if s.cell == nil {
		return SymbolEntry{}, s, false
	}
	return s.cell.entry, SymbolStack{cell: s.cell.tail}, true
}

// Top returns the top entry without popping.
func (s SymbolStack) Top() (SymbolEntry, bool) {
	if s.cell == nil {
		return SymbolEntry{}, false
	}
	return s.cell.entry, true
}

// IsEmpty reports whether the stack has no entries.
func (s SymbolStack) IsEmpty() bool { return s.cell == nil }

// Len returns the number of entries.
func (s SymbolStack) Len() int {
	if s.cell == nil {
		return 0
	}
	return s.cell.size
}

// Hash returns the stack's signature.
func (s SymbolStack) Hash() uint64 {
	if s.cell == nil {
		return emptyHash
	}
	return s.cell.hash
}

// Entries returns the stack contents, top first.
func (s SymbolStack) Entries() []SymbolEntry {
	if s.cell == nil {
		return nil
	}
	out := make([]SymbolEntry, 0, s.cell.size)
	for c := s.cell; c != nil; c = c.tail {
		out = append(out, c.entry)
	}
	return out
}

// SymbolStackOf builds a stack from entries given top first.
func SymbolStackOf(entries []SymbolEntry) SymbolStack {
	var s SymbolStack
	for i := len(entries) - 1; i >= 0; i-- {
		s = s.Push(entries[i])
	}
	return s
}

// -----------------------------------------------------------------------------
// Scope stack
// -----------------------------------------------------------------------------

type scopeCell struct {
	entry ScopeRef
	tail  *scopeCell
	size  int
	hash  uint64
}

// ScopeStack is a persistent stack of scope references. The zero value is
// the empty stack.
type ScopeStack struct {
	cell *scopeCell
}

// Push returns a stack with r on top.
func (s ScopeStack) Push(r ScopeRef) ScopeStack {
	var tailHash uint64 = emptyHash
	size := 1
	if s.cell != nil {
		tailHash = s.cell.hash
		size = s.cell.size + 1
	}
	return ScopeStack{cell: &scopeCell{
		entry: r,
		tail:  s.cell,
		size:  size,
		hash:  hashCell(tailHash, uint32(r.Node), r.Var, 0x5c09e5),
	}}
}

// Pop returns the top entry and the remaining stack.
func (s ScopeStack) Pop() (ScopeRef, ScopeStack, bool) {
	if s.cell == nil {
		return ScopeRef{}, s, false
	}
	return s.cell.entry, ScopeStack{cell: s.cell.tail}, true
}

// Top returns the top entry without popping.
func (s ScopeStack) Top() (ScopeRef, bool) {
	if s.cell == nil {
		return ScopeRef{}, false
	}
	return s.cell.entry, true
}

// IsEmpty reports whether the stack has no entries.
func (s ScopeStack) IsEmpty() bool { return s.cell == nil }

// Len returns the number of entries.
func (s ScopeStack) Len() int {
	if s.cell == nil {
		return 0
	}
	return s.cell.size
}

// Hash returns the stack's signature.
func (s ScopeStack) Hash() uint64 {
	if s.cell == nil {
		return emptyHash
	}
	return s.cell.hash
}

// Entries returns the stack contents, top first.
func (s ScopeStack) Entries() []ScopeRef {
	if s.cell == nil {
		return nil
	}
	out := make([]ScopeRef, 0, s.cell.size)
	for c := s.cell; c != nil; c = c.tail {
		out = append(out, c.entry)
	}
	return out
}

// ScopeStackOf builds a stack from entries given top first.
func ScopeStackOf(entries []ScopeRef) ScopeStack {
	var s ScopeStack
	for i := len(entries) - 1; i >= 0; i-- {
		s = s.Push(entries[i])
	}
	return s
}
