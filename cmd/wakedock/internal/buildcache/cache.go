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
Package buildcache persists the last successfully built fingerprint per
service.

The cache is the unit of truth for rebuild decisions: an entry is written only
after that service's build succeeded, so a failed build leaves the previous
entry (or its absence) intact and the next run still sees the service as
dirty.

Production and Development fingerprints are keyed separately so the two modes
never invalidate each other.
*/
package buildcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Cache maps (mode, service) to the last successfully built fingerprint.
//
// # Thread Safety
//
// Implementations must be safe for concurrent readers. Writes are
// single-writer: only the orchestrator commits, and only after a successful
// build.
type Cache interface {
	// Get returns the stored fingerprint and true, or "" and false on a
	// miss. A corrupt or unreadable entry is a miss, never an error: the
	// system must always be able to proceed by rebuilding.
	Get(mode, service string) (string, bool)

	// Commit durably records fingerprint for (mode, service).
	Commit(mode, service, fingerprint string) error

	// Entries returns all stored entries for a mode, keyed by service name.
	// Used by the status command.
	Entries(mode string) (map[string]string, error)
}

// keyPattern restricts cache key components to names that are safe as file
// name fragments.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ErrInvalidCacheKey is returned when a mode or service name cannot be used
// as part of a cache file name.
var ErrInvalidCacheKey = errors.New("invalid cache key")

// FileCache stores one fingerprint file per (mode, service) pair under a
// directory, named "<mode>-<service>.fp". Writes go through a temp file and
// rename so a crash mid-write cannot leave a truncated entry that would
// suppress a needed rebuild.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

// NewFileCache creates a FileCache rooted at dir. The directory is created
// on first Commit, not here, so a read-only status call never mutates disk.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) entryPath(mode, service string) (string, error) {
	if !keyPattern.MatchString(mode) {
		return "", fmt.Errorf("%w: mode %q", ErrInvalidCacheKey, mode)
	}
	if !keyPattern.MatchString(service) {
		return "", fmt.Errorf("%w: service %q", ErrInvalidCacheKey, service)
	}
	return filepath.Join(c.dir, mode+"-"+service+".fp"), nil
}

// Get reads the entry for (mode, service). Any read problem is a miss.
func (c *FileCache) Get(mode, service string) (string, bool) {
	path, err := c.entryPath(mode, service)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	fp := strings.TrimSpace(string(data))
	if fp == "" || strings.ContainsAny(fp, "\n\r") {
		return "", false
	}
	return fp, true
}

// Commit atomically replaces the entry for (mode, service).
func (c *FileCache) Commit(mode, service, fingerprint string) error {
	path, err := c.entryPath(mode, service)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(fingerprint + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}

// Entries lists all entries for a mode.
func (c *FileCache) Entries(mode string) (map[string]string, error) {
	if !keyPattern.MatchString(mode) {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidCacheKey, mode)
	}
	out := make(map[string]string)
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return nil, err
	}
	prefix := mode + "-"
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".fp") {
			continue
		}
		service := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".fp")
		if fp, ok := c.Get(mode, service); ok {
			out[service] = fp
		}
	}
	return out, nil
}

// MemCache is an in-memory Cache for tests.
type MemCache struct {
	mu      sync.Mutex
	data    map[string]string
	Commits int
}

// NewMemCache creates an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{data: make(map[string]string)}
}

// Get returns the stored fingerprint for (mode, service).
func (c *MemCache) Get(mode, service string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, ok := c.data[mode+"/"+service]
	return fp, ok
}

// Commit records fingerprint for (mode, service) and counts the write.
func (c *MemCache) Commit(mode, service, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[mode+"/"+service] = fingerprint
	c.Commits++
	return nil
}

// Entries lists all entries for a mode.
func (c *MemCache) Entries(mode string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for k, v := range c.data {
		if strings.HasPrefix(k, mode+"/") {
			out[strings.TrimPrefix(k, mode+"/")] = v
		}
	}
	return out, nil
}
