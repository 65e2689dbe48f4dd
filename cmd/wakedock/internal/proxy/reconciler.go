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
Package proxy keeps a sentinel-delimited managed block present in the reverse
proxy configuration file.

Only the text strictly between the markers is owned by wakedock; everything
outside it belongs to the user and is never touched. A structurally
inconsistent marker pair (end before start, or only one marker present) is a
fatal error rather than an auto-repair: silently rewriting unrelated proxy
configuration is a correctness risk.
*/
package proxy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedManagedBlock is returned when the marker pair in the target
// file is structurally inconsistent. Requires human inspection.
var ErrMalformedManagedBlock = errors.New("malformed managed block")

// ManagedBlock describes the reconciliation target.
type ManagedBlock struct {
	// StartMarker and EndMarker are the sentinel lines delimiting the
	// managed region. Both must be non-empty and distinct.
	StartMarker string
	EndMarker   string

	// DesiredContent is the text kept between the markers. Stored and
	// compared without a trailing newline; the reconciler renders the block
	// with one newline after the start marker and one before the end marker.
	DesiredContent string
}

// ReconcileResult reports what Reconcile did.
type ReconcileResult struct {
	// Changed is true when the file's bytes differ from before the call.
	Changed bool

	// Created is true when the target file did not exist.
	Created bool
}

// Reconcile ensures path contains exactly one managed block.
//
// A missing file is treated as empty content. When both markers are present
// in order, the text strictly between them is replaced; Changed is reported
// only if the replacement actually differed. When neither marker is present
// the block is appended once. Writes are atomic (write-temp-then-rename) and
// the call is idempotent: a second run with the same block reports
// Changed=false and leaves the file byte-identical.
func Reconcile(path string, block ManagedBlock) (*ReconcileResult, error) {
	if err := validateBlock(block); err != nil {
		return nil, err
	}

	original, err := os.ReadFile(path)
	created := false
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read proxy config: %w", err)
		}
		created = true
		original = nil
	}

	updated, err := apply(string(original), block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	result := &ReconcileResult{Created: created, Changed: updated != string(original)}
	if !result.Changed {
		return result, nil
	}
	if err := writeAtomic(path, []byte(updated)); err != nil {
		return nil, err
	}
	return result, nil
}

func validateBlock(block ManagedBlock) error {
	if block.StartMarker == "" || block.EndMarker == "" {
		return fmt.Errorf("%w: empty marker", ErrMalformedManagedBlock)
	}
	if block.StartMarker == block.EndMarker {
		return fmt.Errorf("%w: identical start and end markers", ErrMalformedManagedBlock)
	}
	return nil
}

// apply returns the reconciled file content.
func apply(content string, block ManagedBlock) (string, error) {
	start := strings.Index(content, block.StartMarker)
	end := strings.Index(content, block.EndMarker)

	switch {
	case start == -1 && end == -1:
		return appendBlock(content, block), nil
	case start == -1 || end == -1:
		return "", fmt.Errorf("%w: only one marker present", ErrMalformedManagedBlock)
	case end < start:
		return "", fmt.Errorf("%w: end marker precedes start marker", ErrMalformedManagedBlock)
	}

	// Reject duplicated markers after the managed region.
	tail := content[end+len(block.EndMarker):]
	if strings.Contains(tail, block.StartMarker) || strings.Contains(tail, block.EndMarker) {
		return "", fmt.Errorf("%w: duplicate markers", ErrMalformedManagedBlock)
	}
	inner := content[start+len(block.StartMarker) : end]
	if strings.Contains(inner, block.StartMarker) {
		return "", fmt.Errorf("%w: duplicate start marker", ErrMalformedManagedBlock)
	}

	desired := "\n" + block.DesiredContent + "\n"
	if inner == desired {
		return content, nil
	}
	return content[:start+len(block.StartMarker)] + desired + content[end:], nil
}

func appendBlock(content string, block ManagedBlock) string {
	var b strings.Builder
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(block.StartMarker)
	b.WriteString("\n")
	b.WriteString(block.DesiredContent)
	b.WriteString("\n")
	b.WriteString(block.EndMarker)
	b.WriteString("\n")
	return b.String()
}

// writeAtomic replaces path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create proxy config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp proxy config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write proxy config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync proxy config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close proxy config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace proxy config: %w", err)
	}
	return nil
}
