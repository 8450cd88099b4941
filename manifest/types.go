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
	"sort"
	"time"
)

// FileEntry records one file's fingerprint at scan time.
type FileEntry struct {
	// Hash is the content fingerprint.
	Hash string `json:"hash"`

	// Size is the file size in bytes at scan time.
	Size int64 `json:"size"`

	// ModTime is the file's modification time at scan time.
	ModTime time.Time `json:"mod_time"`
}

// Manifest maps a project's files (slash-separated paths relative to the
// project root) to their fingerprints.
type Manifest struct {
	// ProjectRoot is the root path the scan started at, as passed to Scan.
	ProjectRoot string `json:"project_root"`

	// GeneratedAt is when the scan completed.
	GeneratedAt time.Time `json:"generated_at"`

	// Files maps relative path to fingerprint entry.
	Files map[string]FileEntry `json:"files"`
}

// Diff is the difference between two manifests, each list sorted.
type Diff struct {
	// Added lists paths present only in the new manifest.
	Added []string

	// Changed lists paths whose hash differs.
	Changed []string

	// Removed lists paths present only in the old manifest.
	Removed []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// ComputeDiff compares two manifests. A nil manifest is treated as empty,
// so diffing nil against a scan reports every file as added.
func ComputeDiff(old, new *Manifest) Diff {
	var d Diff
	oldFiles := map[string]FileEntry{}
	if old != nil {
		oldFiles = old.Files
	}
	newFiles := map[string]FileEntry{}
	if new != nil {
		newFiles = new.Files
	}

	for p, entry := range newFiles {
		prev, ok := oldFiles[p]
		switch {
		case !ok:
			d.Added = append(d.Added, p)
		case prev.Hash != entry.Hash:
			d.Changed = append(d.Changed, p)
		}
	}
	for p := range oldFiles {
		if _, ok := newFiles[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}
