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

import "errors"

// Sentinel errors for graph construction. All of them mean the build was
// rejected synchronously; the store never recovers a rejected mutation.
var (
	// ErrUnknownFile indicates a file handle that was never registered.
	ErrUnknownFile = errors.New("unknown file handle")

	// ErrUnknownNode indicates a node handle that does not exist in the graph.
	ErrUnknownNode = errors.New("unknown node handle")

	// ErrInvalidSymbol indicates a push or pop node without a symbol.
	ErrInvalidSymbol = errors.New("push and pop nodes require a symbol")

	// ErrNotExportedScope indicates a scoped push naming a node that is not
	// an exported scope.
	ErrNotExportedScope = errors.New("attached scope must be an exported scope node")

	// ErrNegativePrecedence indicates an edge with precedence below zero.
	ErrNegativePrecedence = errors.New("edge precedence must be non-negative")

	// ErrInvalidSpan indicates a source span whose end precedes its start.
	ErrInvalidSpan = errors.New("span end precedes span start")

	// ErrForeignNode indicates source info attached to a node the writer's
	// file does not own.
	ErrForeignNode = errors.New("node is not owned by this file")

	// ErrTooManyNodes indicates the configured node limit was reached.
	ErrTooManyNodes = errors.New("graph node limit reached")

	// ErrTooManyEdges indicates the configured edge limit was reached.
	ErrTooManyEdges = errors.New("graph edge limit reached")
)
