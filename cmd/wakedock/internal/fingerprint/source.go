// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package fingerprint computes content fingerprints for deployable services.

A fingerprint is an opaque digest of everything that feeds a service's image
build. Two sources exist:

  - LocalSource hashes a checked-out source tree (path, size, mtime of every
    non-excluded file) for Development deployments.
  - RemoteSource asks the hosting API for the latest commit of a branch and
    uses the revision identifier itself for Production deployments.

The special value FingerprintUnknown marks a remote lookup that could not be
completed. Unknown compares unequal to every stored fingerprint, including a
previously stored unknown, so the planner always rebuilds rather than silently
skipping a service it cannot reason about.
*/
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// FingerprintUnknown is the sentinel returned when a remote revision lookup
// fails after retries. It must never be committed to the build cache.
const FingerprintUnknown = "unknown"

// SourceMode selects where a service's fingerprint comes from.
type SourceMode string

const (
	// ModeLocal hashes the local source tree (Development deployments).
	ModeLocal SourceMode = "local"

	// ModeRemoteGit queries the hosting API for the branch head
	// (Production deployments).
	ModeRemoteGit SourceMode = "remote_git"
)

// ServiceUnit is one independently buildable component of the stack.
//
// Exactly one of LocalPath or RemoteURL is populated, depending on Mode.
// The deployment mode decides this, not the service itself. Units are
// constructed once per run and are immutable afterwards.
type ServiceUnit struct {
	// Name is the compose service name and the build-cache key.
	Name string

	// Mode selects local-tree or remote-revision fingerprinting.
	Mode SourceMode

	// LocalPath is the root of the source tree. Set iff Mode == ModeLocal.
	LocalPath string

	// RemoteURL is the hosted repository URL. Set iff Mode == ModeRemoteGit.
	RemoteURL string

	// Branch is the branch whose head revision identifies the service state
	// in remote mode.
	Branch string

	// ExcludePatterns are glob patterns whose matches never contribute to a
	// local fingerprint. Empty means DefaultExcludes.
	ExcludePatterns []string
}

// Validate checks the mode invariant.
func (u ServiceUnit) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidUnit)
	}
	switch u.Mode {
	case ModeLocal:
		if u.LocalPath == "" {
			return fmt.Errorf("%w: %s: local mode requires a local path", ErrInvalidUnit, u.Name)
		}
		if u.RemoteURL != "" {
			return fmt.Errorf("%w: %s: local mode must not set a remote URL", ErrInvalidUnit, u.Name)
		}
	case ModeRemoteGit:
		if u.RemoteURL == "" || u.Branch == "" {
			return fmt.Errorf("%w: %s: remote mode requires URL and branch", ErrInvalidUnit, u.Name)
		}
		if u.LocalPath != "" {
			return fmt.Errorf("%w: %s: remote mode must not set a local path", ErrInvalidUnit, u.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unknown mode %q", ErrInvalidUnit, u.Name, u.Mode)
	}
	return nil
}

// Source produces a content fingerprint for a service unit.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; All fans units out across
// goroutines.
type Source interface {
	// Fingerprint returns the current fingerprint of the unit.
	//
	// Local mode fails with ErrSourceUnavailable when the tree is missing.
	// Remote mode degrades to FingerprintUnknown with a nil error when the
	// hosting API cannot be reached, because a rebuild is safer than a
	// silent skip.
	Fingerprint(ctx context.Context, unit ServiceUnit) (string, error)
}

// LocalSource fingerprints a local directory tree.
//
// The digest covers the relative path, size, and modification time of every
// non-excluded regular file. File contents are deliberately not read: a
// content change always bumps the mtime, and hashing metadata keeps the scan
// cheap enough to run on every deploy.
type LocalSource struct{}

// NewLocalSource creates a LocalSource.
func NewLocalSource() *LocalSource {
	return &LocalSource{}
}

// Fingerprint walks unit.LocalPath and digests the tree.
//
// Entries are sorted before hashing so the digest is independent of the
// enumeration order the OS reports. Symlinks are skipped.
func (s *LocalSource) Fingerprint(ctx context.Context, unit ServiceUnit) (string, error) {
	if err := unit.Validate(); err != nil {
		return "", err
	}
	if unit.Mode != ModeLocal {
		return "", fmt.Errorf("%w: %s: LocalSource requires local mode", ErrInvalidUnit, unit.Name)
	}

	root, err := filepath.Abs(unit.LocalPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, unit.LocalPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, unit.LocalPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s: not a directory", ErrSourceUnavailable, unit.LocalPath)
	}

	patterns := unit.ExcludePatterns
	if len(patterns) == 0 {
		patterns = DefaultExcludes
	}
	matcher := NewExcludeMatcher(patterns)

	var lines []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.Excluded(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Excluded(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s|%d|%d", rel, fi.Size(), fi.ModTime().UnixNano()))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, unit.LocalPath, err)
	}

	sort.Strings(lines)
	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// All fingerprints every unit concurrently and returns name -> fingerprint.
//
// Units are read-only and independent, so fan-out is safe. The first error
// cancels the remaining lookups.
func All(ctx context.Context, src Source, units []ServiceUnit) (map[string]string, error) {
	results := make([]string, len(units))
	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			fp, err := src.Fingerprint(gctx, unit)
			if err != nil {
				return fmt.Errorf("%s: %w", unit.Name, err)
			}
			results[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(units))
	for i, unit := range units {
		out[unit.Name] = results[i]
	}
	return out, nil
}
