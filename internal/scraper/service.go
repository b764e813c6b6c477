// Package scraper ties the target registry, session cache and pipeline
// runner together behind a single entry point used by both the HTTP API
// and the background job worker.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/config"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/ratelimit"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/targets"
)

// ErrUnknownPlatform is returned for platforms not in the target registry.
var ErrUnknownPlatform = errors.New("unknown platform")

type Service struct {
	targets  map[string]targets.Target
	sessions *session.Cache
	fetcher  pipeline.Fetcher
	metrics  *pipeline.Metrics
	logger   *slog.Logger

	pageDelay  time.Duration
	pageJitter time.Duration

	maxPagesDefault int
	maxPagesCap     int

	// sem bounds concurrent runs across the API and the job worker.
	sem chan struct{}
}

func NewService(reg map[string]targets.Target, sessions *session.Cache, fetcher pipeline.Fetcher, cfg config.ScraperConfig, metrics *pipeline.Metrics, logger *slog.Logger) *Service {
	for platform, target := range reg {
		sessions.Register(platform, target.Provider)
	}

	return &Service{
		targets:         reg,
		sessions:        sessions,
		fetcher:         fetcher,
		metrics:         metrics,
		logger:          logger.With("component", "scraper"),
		pageDelay:       cfg.PageDelay,
		pageJitter:      cfg.PageDelayJitter,
		maxPagesDefault: cfg.MaxPagesDefault,
		maxPagesCap:     cfg.MaxPagesCap,
		sem:             make(chan struct{}, cfg.MaxConcurrentRuns),
	}
}

// Platforms returns the registered platform names.
func (s *Service) Platforms() []string {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	return names
}

// Supported reports whether the platform has a registered target.
func (s *Service) Supported(platform string) bool {
	_, ok := s.targets[platform]
	return ok
}

// ClampPages applies the default and the hard cap to a requested page count.
func (s *Service) ClampPages(maxPages int) int {
	if maxPages <= 0 {
		return s.maxPagesDefault
	}
	if maxPages > s.maxPagesCap {
		return s.maxPagesCap
	}
	return maxPages
}

// Search runs one full paginated scrape for a query on the given platform.
// Blocks until a concurrency slot is free or the context is cancelled.
func (s *Service) Search(ctx context.Context, platform, query, location string, maxPages int) (*pipeline.Result, error) {
	target, ok := s.targets[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	delay := s.pageDelay
	if target.Profile.PageDelay > 0 {
		delay = target.Profile.PageDelay
	}
	runner := pipeline.NewRunner(
		target.Profile,
		s.fetcher,
		s.sessions,
		ratelimit.NewPageLimiter(delay, s.pageJitter),
		s.metrics,
		s.logger,
	)

	s.logger.Info("starting search",
		"platform", platform,
		"query", query,
		"location", location,
		"max_pages", s.ClampPages(maxPages),
	)

	return runner.Run(ctx, pipeline.RunConfig{
		Query:    query,
		Location: location,
		MaxPages: s.ClampPages(maxPages),
	})
}
