// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"path"
	"strings"
)

// GlobMatcher filters slash-separated relative paths by include and
// exclude patterns. Patterns use path.Match syntax per segment, plus "**"
// as a segment matching any number of directories (including none).
// Excludes take precedence; an empty include list admits everything.
type GlobMatcher struct {
	includes []string
	excludes []string
}

// NewGlobMatcher creates a matcher with the given pattern lists.
func NewGlobMatcher(includes, excludes []string) *GlobMatcher {
	return &GlobMatcher{includes: includes, excludes: excludes}
}

// Match reports whether p passes the pattern lists.
func (m *GlobMatcher) Match(p string) bool {
	for _, pattern := range m.excludes {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, p string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(p, "/"))
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		// "**" swallows zero or more leading segments.
		for skip := 0; skip <= len(segs); skip++ {
			if matchSegments(pattern[1:], segs[skip:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}
