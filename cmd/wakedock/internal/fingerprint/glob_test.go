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

import "testing"

// TestExcludeMatcher_DefaultExcludes verifies the stock patterns catch the
// usual noise directories at any depth.
func TestExcludeMatcher_DefaultExcludes(t *testing.T) {
	matcher := NewExcludeMatcher(DefaultExcludes)

	excluded := []string{
		".git/HEAD",
		".git/objects/ab/cdef",
		"node_modules/react/index.js",
		"__pycache__/mod.cpython-312.pyc",
		"src/__pycache__/mod.cpython-312.pyc",
		"dist/bundle.js",
		"build/main.o",
		"app/server.log",
		"src/util.pyc",
		".DS_Store",
		"docs/.DS_Store",
	}
	for _, path := range excluded {
		if !matcher.Excluded(path) {
			t.Errorf("Excluded(%q) = false, want true", path)
		}
	}

	included := []string{
		"src/main.go",
		"Dockerfile",
		"gitlog.txt",
		"builds.md",
		"src/node_modules.md",
	}
	for _, path := range included {
		if matcher.Excluded(path) {
			t.Errorf("Excluded(%q) = true, want false", path)
		}
	}
}

// TestExcludeMatcher_CustomPatterns verifies user-supplied patterns.
func TestExcludeMatcher_CustomPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"single star", "*.tmp", "scratch.tmp", true},
		{"single star no separator", "*.tmp", "sub/scratch.tmp", true},
		{"prefix doublestar", "vendor/**", "vendor/pkg/a.go", true},
		{"prefix doublestar dir itself", "vendor/**", "vendor", true},
		{"prefix doublestar miss", "vendor/**", "cmd/vendor.go", false},
		{"suffix doublestar", "**/testdata/**", "a/b/testdata/x.json", true},
		{"question mark", "v?", "v2", true},
		{"question mark miss", "v?", "v12", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := NewExcludeMatcher([]string{tt.pattern})
			if got := matcher.Excluded(tt.path); got != tt.want {
				t.Errorf("Excluded(%q) with %q = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

// TestExcludeMatcher_Empty verifies nothing is excluded without patterns.
func TestExcludeMatcher_Empty(t *testing.T) {
	matcher := NewExcludeMatcher(nil)
	if matcher.Excluded(".git/HEAD") {
		t.Error("empty matcher excluded a path")
	}
}

// TestExcludeMatcher_TrailingSlash verifies directory paths match with or
// without the trailing slash.
func TestExcludeMatcher_TrailingSlash(t *testing.T) {
	matcher := NewExcludeMatcher([]string{"node_modules/**"})
	if !matcher.Excluded("node_modules/") {
		t.Error("trailing slash directory was not excluded")
	}
}
