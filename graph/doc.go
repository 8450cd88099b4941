// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the stack graph store.
//
// # Overview
//
// A stack graph is a labelled directed multigraph whose paths resolve names.
// Nodes carry a kind (scope, push, pop, drop, or one of the two process-wide
// singletons) and edges carry a non-negative precedence used to rank
// competing resolutions. Every non-singleton node is owned by exactly one
// registered file; the unit of deletion is the file.
//
// # Lifecycle
//
// The store is append-mostly. Files are populated through BuildFile, which
// holds the single mutation lock for the whole insertion so readers observe
// either the pre-insertion or the post-insertion state of that file, never a
// mix. Individual nodes and edges are never mutated after creation; the only
// way to delete them is RemoveFile, which bulk-frees everything the file
// owns together with the edges incident on it.
//
// # Handles
//
// Nodes, files, and symbols are referenced by opaque integer handles. All
// inter-node references (edge endpoints, attached scopes) are expressed as
// handles, which sidesteps ownership cycles and makes per-file eviction a
// bulk operation. Handles are only meaningful within the graph that issued
// them; the persistence layer identifies nodes by (file path, ordinal)
// instead.
//
// # Thread Safety
//
// The store is single-writer, many-reader. Mutations (BuildFile, RemoveFile,
// RegisterFile) take an exclusive lock; all query methods take a shared lock
// and can run concurrently.
package graph
