package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sharetube/vectorplayer/internal/domain"
)

// attempt is one in-flight bring-up. done is closed exactly once, after err is set.
type attempt struct {
	kind      domain.RendererKind
	done      chan struct{}
	err       error
	abandoned bool
}

// Context is the engine handle of one execution context (the primary side or
// one worker host). Every player in that context shares it and its InitStatus.
type Context struct {
	mu       sync.Mutex
	status   domain.InitStatus
	active   domain.RendererKind
	inflight *attempt
	backends map[domain.RendererKind]Backend
	logger   *slog.Logger
}

func NewContext(logger *slog.Logger, backends ...Backend) *Context {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Context{
		backends: make(map[domain.RendererKind]Backend, len(backends)),
		logger:   logger,
	}
	for _, b := range backends {
		c.backends[b.Kind()] = b
	}

	return c
}

// Register adds or replaces the backend for its kind.
func (c *Context) Register(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backends[b.Kind()] = b
}

func (c *Context) Status() domain.InitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

func (c *Context) Active() (domain.RendererKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active, c.status == domain.InitInitialized
}

type InitResult struct {
	Active           domain.RendererKind
	FallbackOccurred bool
	Fallbacks        []domain.FallbackEvent
}

// Initialize brings the requested tier up, degrading one tier at a time on
// failure. Only a failure of the software tier is returned as *InitError.
func (c *Context) Initialize(ctx context.Context, requested domain.RendererKind) (InitResult, error) {
	if !requested.Valid() {
		return InitResult{}, fmt.Errorf("invalid renderer kind: %d", int(requested))
	}

	res := InitResult{}
	kind := requested
	for {
		active, err := c.bringup(ctx, kind)
		if err == nil {
			if active < kind {
				res.Fallbacks = append(res.Fallbacks, domain.FallbackEvent{
					Requested: kind,
					Fallback:  active,
					Message:   fmt.Sprintf("engine context already running %s renderer", active),
				})
			}
			res.Active = active
			res.FallbackOccurred = active != requested
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		next, ok := kind.Fallback()
		if !ok {
			return res, &InitError{Kind: kind, Err: err}
		}

		c.logger.Warn("renderer bring-up failed, falling back",
			"requested", kind.String(),
			"fallback", next.String(),
			"error", err,
		)
		res.Fallbacks = append(res.Fallbacks, domain.FallbackEvent{
			Requested: kind,
			Fallback:  next,
			Message:   err.Error(),
		})
		c.resetFailed()
		kind = next
	}
}

func (c *Context) bringup(ctx context.Context, kind domain.RendererKind) (domain.RendererKind, error) {
	for {
		c.mu.Lock()
		switch c.status {
		case domain.InitInitialized:
			active := c.active
			c.mu.Unlock()
			return active, nil

		case domain.InitRequested:
			a := c.inflight
			c.mu.Unlock()

			select {
			case <-a.done:
			case <-ctx.Done():
				return kind, ctx.Err()
			}

			if a.kind == kind && a.err != nil && !a.abandoned {
				return kind, a.err
			}

		case domain.InitIdle, domain.InitFailed:
			b, ok := c.backends[kind]
			if !ok {
				c.status = domain.InitFailed
				c.mu.Unlock()
				return kind, fmt.Errorf("%s: %w", kind, ErrBackendNotRegistered)
			}

			if kind == domain.RendererSoftware {
				err := b.Bringup(ctx)
				c.finish(kind, err)
				c.mu.Unlock()
				return kind, err
			}

			a := &attempt{kind: kind, done: make(chan struct{})}
			c.status = domain.InitRequested
			c.inflight = a
			c.mu.Unlock()

			c.logger.Debug("renderer bring-up requested", "kind", kind.String())
			err := b.Bringup(ctx)

			c.mu.Lock()
			a.err = err
			a.abandoned = err != nil && ctx.Err() != nil
			c.inflight = nil
			c.finish(kind, err)
			if a.abandoned {
				c.status = domain.InitIdle
			}
			close(a.done)
			c.mu.Unlock()

			return kind, err

		default:
			c.mu.Unlock()
			return kind, errors.New("unknown init status")
		}
	}
}

// finish must be called with mu held.
func (c *Context) finish(kind domain.RendererKind, err error) {
	if err != nil {
		c.status = domain.InitFailed
		return
	}

	c.status = domain.InitInitialized
	c.active = kind
}

func (c *Context) resetFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == domain.InitFailed {
		c.status = domain.InitIdle
	}
}

// NewEngine creates a player-owned engine on the active tier.
func (c *Context) NewEngine() (Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != domain.InitInitialized {
		return nil, ErrNotInitialized
	}

	b, ok := c.backends[c.active]
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.active, ErrBackendNotRegistered)
	}

	eng, err := b.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", c.active, err)
	}

	return eng, nil
}
