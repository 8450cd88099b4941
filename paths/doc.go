// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package paths implements path finding over stack graphs.
//
// # Overview
//
// Name binding is a path-finding problem: a reference resolves to every
// definition reachable along a path whose node effects keep two runtime
// stacks consistent. The symbol stack holds the names still being resolved;
// the scope stack holds deferred scope contexts for qualified lookups.
// Neither stack is part of the graph — both belong to the search state.
//
// # Search
//
// FindDefinitions runs a breadth-first forward search from a reference
// node. Each state is (node, symbol stack, scope stack); a state whose
// (node, stacks) signature was already visited is a cycle and is pruned,
// which makes the search terminate on any finite graph. Stacks are
// persistent linked cells with memoized hashes, so duplicating a state is
// O(1) and cycle keys are cheap.
//
// # Partial paths
//
// ComputePartialPaths runs the same search restricted to one file's
// subgraph, starting from the file's references and exported scopes and
// from the root. Pops that would underflow the symbol stack instead extend
// the fragment's requirement: the prefix of the incoming stack under which
// the fragment applies. Fragments end at the singletons, at in-file
// definitions, or where a jump target cannot be determined locally; the
// stitch package later composes them across files.
//
// # Ordering
//
// Within a query, emission order is deterministic: complete paths sort by
// descending cumulative precedence, ties broken by discovery order, which
// itself follows out-edge insertion order.
package paths
