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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func localUnit(root string, excludes ...string) ServiceUnit {
	return ServiceUnit{
		Name:            "backend",
		Mode:            ModeLocal,
		LocalPath:       root,
		ExcludePatterns: excludes,
	}
}

// TestLocalSource_Deterministic verifies the same unchanged tree produces the
// same digest across runs.
func TestLocalSource_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":        "package main",
		"pkg/util.go":    "package pkg",
		"pkg/sub/lib.go": "package sub",
	})

	src := NewLocalSource()
	first, err := src.Fingerprint(context.Background(), localUnit(root))
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	second, err := src.Fingerprint(context.Background(), localUnit(root))
	if err != nil {
		t.Fatalf("second Fingerprint() failed: %v", err)
	}
	if first != second {
		t.Errorf("fingerprints differ on unchanged tree: %s vs %s", first, second)
	}
	if first == FingerprintUnknown || first == "" {
		t.Errorf("unexpected fingerprint value %q", first)
	}
}

// TestLocalSource_ContentChange verifies any file change flips the digest:
// content (via mtime), addition, and removal.
func TestLocalSource_ContentChange(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.go": "package main"})
	src := NewLocalSource()

	base, err := src.Fingerprint(context.Background(), localUnit(root))
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}

	t.Run("mtime bump", func(t *testing.T) {
		future := time.Now().Add(2 * time.Second)
		if err := os.Chtimes(filepath.Join(root, "main.go"), future, future); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		got, err := src.Fingerprint(context.Background(), localUnit(root))
		if err != nil {
			t.Fatalf("Fingerprint() failed: %v", err)
		}
		if got == base {
			t.Error("mtime change did not change the fingerprint")
		}
		base = got
	})

	t.Run("file added", func(t *testing.T) {
		writeTree(t, root, map[string]string{"extra.go": "package main"})
		got, err := src.Fingerprint(context.Background(), localUnit(root))
		if err != nil {
			t.Fatalf("Fingerprint() failed: %v", err)
		}
		if got == base {
			t.Error("file addition did not change the fingerprint")
		}
		base = got
	})

	t.Run("file removed", func(t *testing.T) {
		if err := os.Remove(filepath.Join(root, "extra.go")); err != nil {
			t.Fatalf("remove: %v", err)
		}
		got, err := src.Fingerprint(context.Background(), localUnit(root))
		if err != nil {
			t.Fatalf("Fingerprint() failed: %v", err)
		}
		if got == base {
			t.Error("file removal did not change the fingerprint")
		}
	})
}

// TestLocalSource_ExcludedPaths verifies changes under excluded paths never
// affect the digest.
func TestLocalSource_ExcludedPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":       "package main",
		".git/HEAD":     "ref: refs/heads/main",
		"app/debug.log": "old",
	})
	src := NewLocalSource()

	before, err := src.Fingerprint(context.Background(), localUnit(root))
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}

	// Churn only excluded paths.
	writeTree(t, root, map[string]string{
		".git/HEAD":     "ref: refs/heads/feature",
		".git/FETCH":    "new file",
		"app/debug.log": "newer and longer content",
	})

	after, err := src.Fingerprint(context.Background(), localUnit(root))
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	if before != after {
		t.Error("changes under excluded paths changed the fingerprint")
	}
}

// TestLocalSource_MissingRoot verifies a nonexistent path is fatal.
func TestLocalSource_MissingRoot(t *testing.T) {
	src := NewLocalSource()
	_, err := src.Fingerprint(context.Background(), localUnit(filepath.Join(t.TempDir(), "gone")))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

// TestServiceUnit_Validate covers the exactly-one-of source invariant.
func TestServiceUnit_Validate(t *testing.T) {
	tests := []struct {
		name    string
		unit    ServiceUnit
		wantErr bool
	}{
		{"valid local", ServiceUnit{Name: "a", Mode: ModeLocal, LocalPath: "/x"}, false},
		{"valid remote", ServiceUnit{Name: "a", Mode: ModeRemoteGit, RemoteURL: "https://github.com/o/r", Branch: "main"}, false},
		{"no name", ServiceUnit{Mode: ModeLocal, LocalPath: "/x"}, true},
		{"local without path", ServiceUnit{Name: "a", Mode: ModeLocal}, true},
		{"local with remote url", ServiceUnit{Name: "a", Mode: ModeLocal, LocalPath: "/x", RemoteURL: "https://github.com/o/r"}, true},
		{"remote without branch", ServiceUnit{Name: "a", Mode: ModeRemoteGit, RemoteURL: "https://github.com/o/r"}, true},
		{"remote with local path", ServiceUnit{Name: "a", Mode: ModeRemoteGit, RemoteURL: "https://github.com/o/r", Branch: "main", LocalPath: "/x"}, true},
		{"bad mode", ServiceUnit{Name: "a", Mode: "svn", LocalPath: "/x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestAll_FansOut verifies concurrent fingerprinting returns every unit.
func TestAll_FansOut(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTree(t, rootA, map[string]string{"a.go": "a"})
	writeTree(t, rootB, map[string]string{"b.go": "b"})

	unitA := localUnit(rootA)
	unitA.Name = "svc-a"
	unitB := localUnit(rootB)
	unitB.Name = "svc-b"

	got, err := All(context.Background(), NewLocalSource(), []ServiceUnit{unitA, unitB})
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("All() returned %d entries, want 2", len(got))
	}
	if got["svc-a"] == "" || got["svc-b"] == "" {
		t.Errorf("missing fingerprints: %v", got)
	}
	if got["svc-a"] == got["svc-b"] {
		t.Error("distinct trees produced identical fingerprints")
	}
}

// TestAll_PropagatesError verifies the first failure aborts the batch.
func TestAll_PropagatesError(t *testing.T) {
	good := localUnit(t.TempDir())
	good.Name = "good"
	bad := localUnit(filepath.Join(t.TempDir(), "missing"))
	bad.Name = "bad"

	_, err := All(context.Background(), NewLocalSource(), []ServiceUnit{good, bad})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}
