// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fingerprint

import (
	"path/filepath"
	"strings"
)

// DefaultExcludes lists paths that never contribute to a fingerprint:
// version-control metadata, dependency caches, build output, and logs.
// A change under any of these must not mark a service dirty.
var DefaultExcludes = []string{
	".git/**",
	"node_modules/**",
	"__pycache__/**",
	"**/__pycache__/**",
	".venv/**",
	"venv/**",
	"dist/**",
	"build/**",
	".next/**",
	"target/**",
	"**/*.pyc",
	"**/*.log",
	".DS_Store",
}

// ExcludeMatcher reports whether a relative path is excluded from
// fingerprinting.
//
// Patterns use glob syntax with ** for recursive matching:
//   - * matches any sequence of non-separator characters
//   - ** matches any sequence of characters including separators
//   - ? matches any single non-separator character
//
// Thread Safety: ExcludeMatcher is safe for concurrent use after creation.
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher creates a matcher over the given exclude patterns.
// Nil or empty patterns means nothing is excluded.
func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	return &ExcludeMatcher{patterns: patterns}
}

// Excluded returns true if path (slash-separated, relative to the service
// root) matches any exclude pattern. Directory paths may be passed with or
// without a trailing slash.
func (m *ExcludeMatcher) Excluded(path string) bool {
	path = strings.TrimSuffix(filepath.ToSlash(path), "/")
	for _, pattern := range m.patterns {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated path against a glob pattern.
func matchGlob(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, path)
	}
	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	// A bare pattern like ".DS_Store" matches at any depth.
	ok, _ := filepath.Match(pattern, filepath.Base(path))
	return ok
}

// matchDoublestar handles patterns containing ** segments.
func matchDoublestar(pattern, path string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return false
		}
		path = strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
	}
	if suffix == "" {
		return true
	}
	if strings.Contains(suffix, "**") {
		// Nested ** on the suffix side: try every sub-path.
		segs := strings.Split(path, "/")
		for i := range segs {
			if matchDoublestar(suffix, strings.Join(segs[i:], "/")) {
				return true
			}
		}
		return false
	}
	// The suffix may match any trailing sub-path.
	segs := strings.Split(path, "/")
	for i := range segs {
		if ok, _ := filepath.Match(suffix, strings.Join(segs[i:], "/")); ok {
			return true
		}
	}
	return false
}
