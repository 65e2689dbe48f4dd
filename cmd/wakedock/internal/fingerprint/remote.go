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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RemoteHTTPClient abstracts the HTTP client for revision lookups.
// *http.Client satisfies it; tests inject a mock.
type RemoteHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteConfig configures a RemoteSource.
type RemoteConfig struct {
	// APIBaseURL is the hosting API root. Default: "https://api.github.com".
	APIBaseURL string

	// Token is an optional bearer token for private repositories.
	Token string

	// MaxRetries is the number of attempts per lookup. Default: 3.
	MaxRetries int

	// RetryBackoff is the pause between attempts. Default: 2s.
	RetryBackoff time.Duration

	// RequestTimeout bounds a single API call. Default: 10s.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles API calls across all units so a large
	// stack cannot trip the hosting API's rate limit. Default: 2.
	RequestsPerSecond float64
}

// RemoteSource resolves a unit's fingerprint to the head commit SHA of its
// branch, via the GitHub commits API.
//
// A lookup that still fails after retries yields FingerprintUnknown and a nil
// error: the deploy continues and the planner schedules a rebuild.
type RemoteSource struct {
	config  RemoteConfig
	client  RemoteHTTPClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRemoteSource creates a RemoteSource with defaults applied.
func NewRemoteSource(cfg RemoteConfig, logger *slog.Logger) *RemoteSource {
	applyRemoteDefaults(&cfg)
	return &RemoteSource{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

// NewRemoteSourceWithClient creates a RemoteSource with an injected HTTP
// client. Used by tests to mock the hosting API.
func NewRemoteSourceWithClient(cfg RemoteConfig, client RemoteHTTPClient, logger *slog.Logger) *RemoteSource {
	applyRemoteDefaults(&cfg)
	return &RemoteSource{
		config:  cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.github.com"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 2
	}
}

// Fingerprint returns the head commit SHA of unit.Branch, or
// FingerprintUnknown when the API cannot be reached after retries.
func (s *RemoteSource) Fingerprint(ctx context.Context, unit ServiceUnit) (string, error) {
	if err := unit.Validate(); err != nil {
		return "", err
	}
	if unit.Mode != ModeRemoteGit {
		return "", fmt.Errorf("%w: %s: RemoteSource requires remote mode", ErrInvalidUnit, unit.Name)
	}

	owner, repo, err := parseRemoteURL(unit.RemoteURL)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits/%s",
		strings.TrimSuffix(s.config.APIBaseURL, "/"), owner, repo, url.PathEscape(unit.Branch))

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
		sha, err := s.lookupOnce(ctx, endpoint)
		if err == nil {
			return sha, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < s.config.MaxRetries {
			select {
			case <-time.After(s.config.RetryBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	s.logger.Warn("remote revision lookup failed, treating service as dirty",
		"service", unit.Name, "branch", unit.Branch, "error", lastErr)
	return FingerprintUnknown, nil
}

func (s *RemoteSource) lookupOnce(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	// The SHA media type makes the API return the bare revision identifier.
	req.Header.Set("Accept", "application/vnd.github.sha")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	sha := strings.TrimSpace(string(body))
	if sha == "" {
		return "", fmt.Errorf("empty revision in API response")
	}
	return sha, nil
}

// parseRemoteURL extracts owner and repository from a hosted repo URL such as
// https://github.com/acme/backend.git or git@github.com:acme/backend.
func parseRemoteURL(remote string) (owner, repo string, err error) {
	cleaned := strings.TrimSuffix(remote, ".git")
	if at := strings.Index(cleaned, "@"); at != -1 && strings.Contains(cleaned, ":") && !strings.Contains(cleaned, "://") {
		// scp-like syntax: git@host:owner/repo
		cleaned = cleaned[strings.Index(cleaned, ":")+1:]
	} else if u, perr := url.Parse(cleaned); perr == nil && u.Path != "" {
		cleaned = strings.TrimPrefix(u.Path, "/")
	}
	parts := strings.Split(strings.Trim(cleaned, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRemoteURL, remote)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
