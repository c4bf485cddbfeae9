// Package checker periodically re-validates links whose validation
// cooldown has expired.
package checker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vadimbarashkov/tinylink/internal/models"
)

const sweepLimit = 100

// LinkSource lists links that are due for re-validation.
type LinkSource interface {
	ListValidatable(ctx context.Context, before time.Time, limit int) ([]*models.Link, error)
}

// LinkValidator checks the reachability of a link's long URL and
// persists the verdict on the link.
type LinkValidator interface {
	Validate(ctx context.Context, link *models.Link, force bool) *models.Link
}

type Config struct {
	Interval       time.Duration
	MaxConcurrency int
}

// Checker sweeps the link table on a fixed interval and validates
// every link outside the cooldown window, bounded by a concurrency
// limit.
type Checker struct {
	source    LinkSource
	validator LinkValidator
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func New(source LinkSource, validator LinkValidator, logger *slog.Logger, cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}

	return &Checker{
		source:    source,
		validator: validator,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run blocks until the context is cancelled, sweeping once per
// interval. The first sweep happens immediately.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Checker) sweep(ctx context.Context) {
	const op = "checker.Checker.sweep"

	before := c.now().Add(-models.ValidationCooldown)

	links, err := c.source.ListValidatable(ctx, before, sweepLimit)
	if err != nil {
		c.logger.Error(
			"failed to list links for validation",
			slog.Group(op, slog.Any("err", err)),
		)
		return
	}

	if len(links) == 0 {
		return
	}

	c.logger.Info("starting validation sweep", slog.Int("link_count", len(links)))

	sem := make(chan struct{}, c.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for _, link := range links {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
			wg.Add(1)
			go func(l *models.Link) {
				defer wg.Done()
				defer func() { <-sem }()

				c.validator.Validate(ctx, l, false)
			}(link)
		}
	}

	wg.Wait()
	c.logger.Info("validation sweep completed")
}
