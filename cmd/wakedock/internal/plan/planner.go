// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan decides which services need a rebuild by comparing current
// fingerprints against the build cache.
package plan

import (
	"context"
	"fmt"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/buildcache"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/fingerprint"
)

// Session holds the run-scoped flags that influence planning. Parsed from the
// CLI once at process start, immutable afterwards.
type Session struct {
	// Mode is the build-cache namespace: "production" or "development".
	Mode string

	// ForceRebuild marks every service dirty regardless of fingerprints.
	ForceRebuild bool

	// CleanBuild requests a destructive prune and a no-cache build. It does
	// not by itself affect planning (the orchestrator builds everything on
	// clean), but it is carried here so the whole session travels together.
	CleanBuild bool

	// SkipTests disables the post-convergence smoke probes.
	SkipTests bool

	// SkipCacheCheck is ForceRebuild without the destructive implications
	// of CleanBuild.
	SkipCacheCheck bool
}

// AlwaysDirty reports whether planning is short-circuited for every unit.
func (s Session) AlwaysDirty() bool {
	return s.ForceRebuild || s.SkipCacheCheck
}

// Decision is the per-service outcome of planning.
type Decision struct {
	// Dirty is true when the service must be rebuilt.
	Dirty bool

	// Current is the fingerprint computed for this run. The orchestrator
	// commits this value after a successful build; FingerprintUnknown is
	// never committed.
	Current string

	// Reason is a human-readable explanation for the report
	// ("forced", "no cache entry", "fingerprint changed", "unchanged",
	// "remote revision unknown").
	Reason string
}

// Plan maps service name to its rebuild decision.
type Plan map[string]Decision

// AnyDirty reports whether at least one service needs a rebuild.
func (p Plan) AnyDirty() bool {
	for _, d := range p {
		if d.Dirty {
			return true
		}
	}
	return false
}

// Planner combines fingerprints, the build cache, and session flags into a
// per-service rebuild plan. Decisions are independent per service; ordering
// is the orchestrator's concern.
type Planner struct {
	source fingerprint.Source
	cache  buildcache.Cache
}

// NewPlanner creates a Planner over the given fingerprint source and cache.
func NewPlanner(source fingerprint.Source, cache buildcache.Cache) *Planner {
	return &Planner{source: source, cache: cache}
}

// Plan computes the rebuild decision for every unit.
//
// Fingerprints are always computed, even under ForceRebuild or
// SkipCacheCheck, because a successful build commits the run's fingerprint.
// With either flag set the comparison is skipped and every unit is dirty.
// Otherwise a unit is dirty when the cache has no entry, the fingerprint
// changed, or the remote revision is unknown. Unknown compares unequal to
// everything, including a stored "unknown", so a flaky hosting API causes a
// rebuild rather than a silent skip.
func (p *Planner) Plan(ctx context.Context, units []fingerprint.ServiceUnit, session Session) (Plan, error) {
	out := make(Plan, len(units))

	current, err := fingerprint.All(ctx, p.source, units)
	if err != nil {
		return nil, fmt.Errorf("fingerprint services: %w", err)
	}

	if session.AlwaysDirty() {
		for _, unit := range units {
			out[unit.Name] = Decision{Dirty: true, Current: current[unit.Name], Reason: "forced"}
		}
		return out, nil
	}

	for _, unit := range units {
		fp := current[unit.Name]
		if fp == fingerprint.FingerprintUnknown {
			out[unit.Name] = Decision{Dirty: true, Current: fp, Reason: "remote revision unknown"}
			continue
		}
		stored, ok := p.cache.Get(session.Mode, unit.Name)
		switch {
		case !ok:
			out[unit.Name] = Decision{Dirty: true, Current: fp, Reason: "no cache entry"}
		case stored == fingerprint.FingerprintUnknown:
			// A stored unknown should not happen (it is never committed),
			// but if one leaks in, treat it as a miss.
			out[unit.Name] = Decision{Dirty: true, Current: fp, Reason: "no cache entry"}
		case stored != fp:
			out[unit.Name] = Decision{Dirty: true, Current: fp, Reason: "fingerprint changed"}
		default:
			out[unit.Name] = Decision{Dirty: false, Current: fp, Reason: "unchanged"}
		}
	}
	return out, nil
}
