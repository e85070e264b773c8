// Package visibility freezes a player that scrolls out of view and resumes it
// when it comes back.
package visibility

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/surface"
)

const DefaultWatchInterval = 100 * time.Millisecond

type Target interface {
	State() domain.PlayerState
	Play() error
	Freeze() (bool, error)
}

type Coordinator struct {
	target Target
	logger *slog.Logger

	mu           sync.Mutex
	known        bool
	intersecting bool
}

func NewCoordinator(target Target, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{target: target, logger: logger}
}

// Update records the current intersection state. Only a change acts on the
// target: loss freezes a playing target, regain plays a frozen one. The
// first observation always counts as a change.
func (c *Coordinator) Update(intersecting bool) error {
	c.mu.Lock()
	if c.known && c.intersecting == intersecting {
		c.mu.Unlock()
		return nil
	}
	c.known = true
	c.intersecting = intersecting
	c.mu.Unlock()

	if !intersecting {
		froze, err := c.target.Freeze()
		if froze {
			c.logger.Debug("player frozen, out of view")
		}
		return err
	}

	if c.target.State() != domain.StateFrozen {
		return nil
	}
	c.logger.Debug("player back in view, resuming")
	return c.target.Play()
}

func (c *Coordinator) Intersecting() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.intersecting, c.known
}

// Watch polls the layout every interval until ctx is done.
func Watch(ctx context.Context, layout surface.Layout, interval time.Duration, c *Coordinator) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.Update(surface.Intersecting(layout)); err != nil {
			c.logger.Warn("failed to apply visibility change", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
