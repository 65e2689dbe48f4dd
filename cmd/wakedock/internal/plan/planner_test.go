// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/buildcache"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/fingerprint"
)

// stubSource returns canned fingerprints per service name.
type stubSource struct {
	fingerprints map[string]string
	err          error
}

func (s *stubSource) Fingerprint(ctx context.Context, unit fingerprint.ServiceUnit) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.fingerprints[unit.Name], nil
}

func units(names ...string) []fingerprint.ServiceUnit {
	out := make([]fingerprint.ServiceUnit, 0, len(names))
	for _, name := range names {
		out = append(out, fingerprint.ServiceUnit{Name: name, Mode: fingerprint.ModeLocal, LocalPath: "/src/" + name})
	}
	return out
}

const mode = "production"

// TestPlanner_FirstRunIsDirty verifies an empty cache marks everything dirty.
func TestPlanner_FirstRunIsDirty(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": "fp-b", "frontend": "fp-f"}}
	planner := NewPlanner(source, buildcache.NewMemCache())

	got, err := planner.Plan(context.Background(), units("backend", "frontend"), Session{Mode: mode})
	if err != nil {
		t.Fatalf("Plan() failed: %v", err)
	}
	for name, decision := range got {
		if !decision.Dirty {
			t.Errorf("%s: dirty = false on first run", name)
		}
		if decision.Reason != "no cache entry" {
			t.Errorf("%s: reason = %q", name, decision.Reason)
		}
	}
	if !got.AnyDirty() {
		t.Error("AnyDirty() = false")
	}
}

// TestPlanner_UnchangedIsClean verifies a matching cache entry skips.
func TestPlanner_UnchangedIsClean(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": "fp-b"}}
	cache := buildcache.NewMemCache()
	if err := cache.Commit(mode, "backend", "fp-b"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	planner := NewPlanner(source, cache)

	got, err := planner.Plan(context.Background(), units("backend"), Session{Mode: mode})
	if err != nil {
		t.Fatalf("Plan() failed: %v", err)
	}
	decision := got["backend"]
	if decision.Dirty {
		t.Error("unchanged service planned dirty")
	}
	if decision.Reason != "unchanged" {
		t.Errorf("reason = %q", decision.Reason)
	}
	if decision.Current != "fp-b" {
		t.Errorf("Current = %q", decision.Current)
	}
	if got.AnyDirty() {
		t.Error("AnyDirty() = true for a clean plan")
	}
}

// TestPlanner_ChangedIsDirty verifies a differing fingerprint rebuilds.
func TestPlanner_ChangedIsDirty(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": "fp-new"}}
	cache := buildcache.NewMemCache()
	if err := cache.Commit(mode, "backend", "fp-old"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	planner := NewPlanner(source, cache)

	got, err := planner.Plan(context.Background(), units("backend"), Session{Mode: mode})
	if err != nil {
		t.Fatalf("Plan() failed: %v", err)
	}
	if !got["backend"].Dirty || got["backend"].Reason != "fingerprint changed" {
		t.Errorf("decision = %+v", got["backend"])
	}
}

// TestPlanner_ForceOverridesCleanCache verifies --force wins even when the
// cache matches, and still carries the computed fingerprint for committing.
func TestPlanner_ForceOverridesCleanCache(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": "fp-b"}}
	cache := buildcache.NewMemCache()
	if err := cache.Commit(mode, "backend", "fp-b"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	for _, session := range []Session{
		{Mode: mode, ForceRebuild: true},
		{Mode: mode, SkipCacheCheck: true},
	} {
		got, err := NewPlanner(source, cache).Plan(context.Background(), units("backend"), session)
		if err != nil {
			t.Fatalf("Plan() failed: %v", err)
		}
		decision := got["backend"]
		if !decision.Dirty || decision.Reason != "forced" {
			t.Errorf("session %+v: decision = %+v", session, decision)
		}
		if decision.Current != "fp-b" {
			t.Errorf("forced decision lost the computed fingerprint: %+v", decision)
		}
	}
}

// TestPlanner_UnknownAlwaysDirty verifies the unknown sentinel rebuilds even
// against a stored unknown.
func TestPlanner_UnknownAlwaysDirty(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": fingerprint.FingerprintUnknown}}

	t.Run("no stored entry", func(t *testing.T) {
		got, err := NewPlanner(source, buildcache.NewMemCache()).Plan(
			context.Background(), units("backend"), Session{Mode: mode})
		if err != nil {
			t.Fatalf("Plan() failed: %v", err)
		}
		if !got["backend"].Dirty {
			t.Error("unknown fingerprint planned clean")
		}
	})

	t.Run("stored unknown", func(t *testing.T) {
		cache := buildcache.NewMemCache()
		if err := cache.Commit(mode, "backend", fingerprint.FingerprintUnknown); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		got, err := NewPlanner(source, cache).Plan(
			context.Background(), units("backend"), Session{Mode: mode})
		if err != nil {
			t.Fatalf("Plan() failed: %v", err)
		}
		if !got["backend"].Dirty {
			t.Error("unknown vs stored unknown planned clean; must rebuild")
		}
	})
}

// TestPlanner_StoredUnknownWithKnownCurrent verifies a leaked stored unknown
// behaves like a miss.
func TestPlanner_StoredUnknownWithKnownCurrent(t *testing.T) {
	source := &stubSource{fingerprints: map[string]string{"backend": "fp-b"}}
	cache := buildcache.NewMemCache()
	if err := cache.Commit(mode, "backend", fingerprint.FingerprintUnknown); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	got, err := NewPlanner(source, cache).Plan(context.Background(), units("backend"), Session{Mode: mode})
	if err != nil {
		t.Fatalf("Plan() failed: %v", err)
	}
	if !got["backend"].Dirty || got["backend"].Reason != "no cache entry" {
		t.Errorf("decision = %+v", got["backend"])
	}
}

// TestPlanner_SourceErrorIsFatal verifies planning propagates source errors.
func TestPlanner_SourceErrorIsFatal(t *testing.T) {
	source := &stubSource{err: fingerprint.ErrSourceUnavailable}
	_, err := NewPlanner(source, buildcache.NewMemCache()).Plan(
		context.Background(), units("backend"), Session{Mode: mode})
	if !errors.Is(err, fingerprint.ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

// TestSession_AlwaysDirty covers the short-circuit flags.
func TestSession_AlwaysDirty(t *testing.T) {
	if (Session{}).AlwaysDirty() {
		t.Error("empty session is always dirty")
	}
	if !(Session{ForceRebuild: true}).AlwaysDirty() {
		t.Error("ForceRebuild not always dirty")
	}
	if !(Session{SkipCacheCheck: true}).AlwaysDirty() {
		t.Error("SkipCacheCheck not always dirty")
	}
	if (Session{CleanBuild: true}).AlwaysDirty() {
		t.Error("CleanBuild alone should not short-circuit planning")
	}
}
