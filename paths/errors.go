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

import "errors"

var (
	// ErrNotReference indicates a query start node that is not a reference.
	ErrNotReference = errors.New("start node is not a reference")

	// ErrUnknownFile indicates a partial-path computation over a file handle
	// that was never registered.
	ErrUnknownFile = errors.New("unknown file handle")

	// ErrInternal indicates an invariant violation inside the finder. It
	// should not happen; seeing it means a bug, not bad input.
	ErrInternal = errors.New("internal invariant violation in path finder")
)
