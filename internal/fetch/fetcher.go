// Package fetch supplies raw page content for a navigation target. It owns
// every retry, fallback and anti-block concern so callers only see
// (content, ok).
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/storefrontscraper/logger"
	"sjsage522/storefrontscraper/pkg/errors"
)

// Kind is the content type a target is expected to return
type Kind string

const (
	KindHTML Kind = "html"
	KindJSON Kind = "json"
)

// Target is one catalog page. Endpoints are alternate URLs serving the same
// page, tried in order.
type Target struct {
	Page      int
	Endpoints []string
	Kind      Kind
}

func (t Target) String() string {
	return fmt.Sprintf("page %d", t.Page)
}

// Engine fetches one URL
type Engine interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// PageFetcher is the contract the run loop consumes
type PageFetcher interface {
	Fetch(ctx context.Context, target Target) (string, bool)
}

// Options configures the fallback chain
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	MinPageBytes int
	Blocks       *BlockCache
	Pacer        *Pacer
	Robots       *RobotsPolicy
	Capture      *CaptureStore
}

// Fetcher runs every engine over every endpoint, then backs off and starts
// again until the retry budget is spent.
type Fetcher struct {
	engines []Engine
	opts    Options
	log     *logger.Logger
}

var _ PageFetcher = (*Fetcher)(nil)

// New creates a fetcher trying engines in the given order
func New(opts Options, engines ...Engine) *Fetcher {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Fetcher{
		engines: engines,
		opts:    opts,
		log:     logger.ForFetcher("chain"),
	}
}

// Fetch returns the page content, or ok=false when every engine, endpoint
// and retry failed or was blocked.
func (f *Fetcher) Fetch(ctx context.Context, target Target) (string, bool) {
	content, err := f.FetchContent(ctx, target)
	if err != nil {
		f.log.Warn().Err(err).Int("page", target.Page).Msg("Page fetch failed")
		return "", false
	}
	return content, true
}

// FetchContent is Fetch with the failure reason kept
func (f *Fetcher) FetchContent(ctx context.Context, target Target) (string, error) {
	if len(f.engines) == 0 || len(target.Endpoints) == 0 {
		return "", errors.NewFetch(target.String(), "nothing to fetch with", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			f.log.Debug().Int("page", target.Page).Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying page")
			if err := sleepCtx(ctx, backoff); err != nil {
				return "", errors.NewFetch(target.String(), "cancelled while backing off", err)
			}
		}

		for _, engine := range f.engines {
			for _, endpoint := range target.Endpoints {
				if err := ctx.Err(); err != nil {
					return "", errors.NewFetch(target.String(), "cancelled", err)
				}

				content, err := f.try(ctx, engine, endpoint)
				if err != nil {
					lastErr = err
					f.log.Debug().Err(err).Str("engine", engine.Name()).Str("url", endpoint).Msg("Fetch attempt failed")
					continue
				}

				f.capture(target, content)
				f.log.Info().Int("page", target.Page).Str("engine", engine.Name()).Int("bytes", len(content)).Msg("Page fetched")
				return content, nil
			}
		}
	}

	return "", errors.NewFetch(target.String(),
		fmt.Sprintf("all %d engines and %d endpoints exhausted after %d attempts", len(f.engines), len(target.Endpoints), f.opts.MaxRetries+1),
		lastErr)
}

func (f *Fetcher) try(ctx context.Context, engine Engine, endpoint string) (string, error) {
	if f.opts.Blocks.Blocked(engine.Name(), endpoint) {
		return "", errors.NewRateLimit(endpoint, f.opts.Blocks.Cooldown())
	}
	if !f.opts.Robots.Allowed(ctx, endpoint) {
		return "", errors.NewFetch(endpoint, "disallowed by robots.txt", nil)
	}
	if err := f.opts.Pacer.Wait(ctx, endpoint); err != nil {
		return "", errors.NewFetch(endpoint, "pacing interrupted", err)
	}

	content, err := engine.Fetch(ctx, endpoint)
	if err != nil {
		if strings.HasPrefix(err.Error(), "rate limited") {
			f.markBlocked(engine, endpoint)
		}
		return "", errors.NewFetch(endpoint, engine.Name()+" engine failed", err)
	}

	if reason, blocked := DetectBlock(content, f.opts.MinPageBytes); blocked {
		f.markBlocked(engine, endpoint)
		return "", errors.NewBlocked(endpoint, reason)
	}
	return content, nil
}

func (f *Fetcher) markBlocked(engine Engine, endpoint string) {
	if err := f.opts.Blocks.Mark(engine.Name(), endpoint); err != nil {
		f.log.Warn().Err(err).Str("url", endpoint).Msg("Failed to record block")
	}
}

func (f *Fetcher) capture(target Target, content string) {
	if f.opts.Capture == nil {
		return
	}
	ext := string(target.Kind)
	if ext == "" {
		ext = string(KindHTML)
	}
	path, err := f.opts.Capture.Save(target.Page, ext, content)
	if err != nil {
		f.log.Warn().Err(err).Int("page", target.Page).Msg("Failed to save page capture")
		return
	}
	f.log.Debug().Str("path", path).Msg("Page captured")
}
