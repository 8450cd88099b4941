// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathdb

import (
	"fmt"

	"github.com/AleutianAI/stackscope/graph"
	"github.com/AleutianAI/stackscope/intern"
	"github.com/AleutianAI/stackscope/paths"
)

// The stored form never contains node or symbol handles: nodes are
// identified by graph.Ref and symbols by their string content, so a stored
// set survives process restarts and graph rebuilds with unchanged content.

type scopeRefRecord struct {
	Node *graph.Ref `json:"node,omitempty"`
	Var  uint32     `json:"var,omitempty"`
}

type symbolEntryRecord struct {
	Name  string          `json:"name"`
	Scope *scopeRefRecord `json:"scope,omitempty"`
}

type symbolReqRecord struct {
	Name          string          `json:"name"`
	Scope         *scopeRefRecord `json:"scope,omitempty"`
	RequiresScope bool            `json:"requires_scope,omitempty"`
}

type edgeRecord struct {
	From       graph.Ref `json:"from"`
	To         graph.Ref `json:"to"`
	Precedence int       `json:"precedence,omitempty"`
}

type fragmentRecord struct {
	Start          graph.Ref           `json:"start"`
	End            graph.Ref           `json:"end"`
	SymbolPre      []symbolReqRecord   `json:"symbol_pre,omitempty"`
	SymbolPost     []symbolEntryRecord `json:"symbol_post,omitempty"`
	ScopePost      []scopeRefRecord    `json:"scope_post,omitempty"`
	ScopePostExact bool                `json:"scope_post_exact,omitempty"`
	Edges          []edgeRecord        `json:"edges,omitempty"`
	Precedence     int                 `json:"precedence,omitempty"`
}

func (s *Store) encodeFragment(p *paths.PartialPath) (*fragmentRecord, error) {
	start, err := s.encodeNode(p.Start)
	if err != nil {
		return nil, err
	}
	end, err := s.encodeNode(p.End)
	if err != nil {
		return nil, err
	}

	rec := &fragmentRecord{
		Start:          start,
		End:            end,
		ScopePostExact: p.ScopePostExact,
		Precedence:     p.Precedence,
	}
	for _, req := range p.SymbolPre {
		scope, err := s.encodeScopeRef(req.Scope)
		if err != nil {
			return nil, err
		}
		rec.SymbolPre = append(rec.SymbolPre, symbolReqRecord{
			Name:          s.g.Symbols().String(req.Symbol),
			Scope:         scope,
			RequiresScope: req.RequiresScope,
		})
	}
	for _, entry := range p.SymbolPost {
		scope, err := s.encodeScopeRef(entry.Scope)
		if err != nil {
			return nil, err
		}
		rec.SymbolPost = append(rec.SymbolPost, symbolEntryRecord{
			Name:  s.g.Symbols().String(entry.Symbol),
			Scope: scope,
		})
	}
	for _, ref := range p.ScopePost {
		scope, err := s.encodeScopeRef(ref)
		if err != nil {
			return nil, err
		}
		if scope == nil {
			scope = &scopeRefRecord{}
		}
		rec.ScopePost = append(rec.ScopePost, *scope)
	}
	for _, e := range p.Edges {
		from, err := s.encodeNode(e.From)
		if err != nil {
			return nil, err
		}
		to, err := s.encodeNode(e.To)
		if err != nil {
			return nil, err
		}
		rec.Edges = append(rec.Edges, edgeRecord{From: from, To: to, Precedence: e.Precedence})
	}
	return rec, nil
}

func (s *Store) encodeNode(id graph.NodeID) (graph.Ref, error) {
	ref, ok := s.g.NodeRef(id)
	if !ok {
		return graph.Ref{}, fmt.Errorf("node %d has no stable identity", id)
	}
	return ref, nil
}

func (s *Store) encodeScopeRef(r paths.ScopeRef) (*scopeRefRecord, error) {
	if r.IsNone() {
		return nil, nil
	}
	if r.IsVar() {
		return &scopeRefRecord{Var: r.Var}, nil
	}
	ref, err := s.encodeNode(r.Node)
	if err != nil {
		return nil, err
	}
	return &scopeRefRecord{Node: &ref}, nil
}

func (s *Store) decodeFragment(rec *fragmentRecord) (paths.PartialPath, error) {
	start, err := s.decodeNode(rec.Start)
	if err != nil {
		return paths.PartialPath{}, err
	}
	end, err := s.decodeNode(rec.End)
	if err != nil {
		return paths.PartialPath{}, err
	}

	p := paths.PartialPath{
		Start:          start,
		End:            end,
		ScopePostExact: rec.ScopePostExact,
		Precedence:     rec.Precedence,
	}
	for _, req := range rec.SymbolPre {
		scope, err := s.decodeScopeRef(req.Scope)
		if err != nil {
			return paths.PartialPath{}, err
		}
		p.SymbolPre = append(p.SymbolPre, paths.SymbolRequirement{
			Symbol:        s.decodeSymbol(req.Name),
			Scope:         scope,
			RequiresScope: req.RequiresScope,
		})
	}
	for _, entry := range rec.SymbolPost {
		scope, err := s.decodeScopeRef(entry.Scope)
		if err != nil {
			return paths.PartialPath{}, err
		}
		p.SymbolPost = append(p.SymbolPost, paths.SymbolEntry{
			Symbol: s.decodeSymbol(entry.Name),
			Scope:  scope,
		})
	}
	for i := range rec.ScopePost {
		scope, err := s.decodeScopeRef(&rec.ScopePost[i])
		if err != nil {
			return paths.PartialPath{}, err
		}
		p.ScopePost = append(p.ScopePost, scope)
	}
	for _, e := range rec.Edges {
		from, err := s.decodeNode(e.From)
		if err != nil {
			return paths.PartialPath{}, err
		}
		to, err := s.decodeNode(e.To)
		if err != nil {
			return paths.PartialPath{}, err
		}
		p.Edges = append(p.Edges, graph.Edge{From: from, To: to, Precedence: e.Precedence})
	}
	return p, nil
}

func (s *Store) decodeNode(ref graph.Ref) (graph.NodeID, error) {
	id, ok := s.g.ResolveRef(ref)
	if !ok {
		return graph.InvalidNode, fmt.Errorf("stored node %+v not present in graph", ref)
	}
	return id, nil
}

func (s *Store) decodeScopeRef(rec *scopeRefRecord) (paths.ScopeRef, error) {
	if rec == nil {
		return paths.ScopeRef{}, nil
	}
	if rec.Var != 0 {
		return paths.ScopeRef{Var: rec.Var}, nil
	}
	if rec.Node == nil {
		return paths.ScopeRef{}, nil
	}
	id, err := s.decodeNode(*rec.Node)
	if err != nil {
		return paths.ScopeRef{}, err
	}
	return paths.ScopeRef{Node: id}, nil
}

func (s *Store) decodeSymbol(name string) intern.Symbol {
	return s.g.Symbols().Intern(name)
}
