// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stackscope is an incremental name-resolution engine built on
// stack graphs.
//
// # Overview
//
// A stack graph reduces "where is this name defined?" to path finding over
// a labelled graph whose traversal manipulates a symbol stack and a scope
// stack. Graph builders populate per-file subgraphs through the graph
// package; queries either search the whole graph directly or stitch
// together per-file partial paths, which is what makes the engine
// incremental: when a file changes, only that file's fragments are
// recomputed, and cross-file answers stay correct because fragments only
// meet at the graph-global root and jump nodes.
//
// # Subsystems
//
//   - intern: symbol interning
//   - graph: the stack graph store
//   - paths: the path finder and per-file partial-path builder
//   - stitch: cross-file composition of partial paths
//   - pathdb: badger-backed persistence of partial paths
//   - manifest: content fingerprints driving invalidation
//   - watch: filesystem-event driven invalidation
//   - cancel, telemetry: cooperative cancellation and observability
//
// The Engine in this package wires them together for the common case; the
// subsystem packages remain usable on their own.
package stackscope
