// Package player is the player state machine. It owns PlayerState and the
// playback parameters, guards every transition and drives an execution mode
// through driver.Driver.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/sharetube/vectorplayer/internal/clock"
	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/driver"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/source"
)

var (
	ErrDestroyed = errors.New("player is destroyed")
	ErrNotLoaded = errors.New("no animation loaded")
)

type Config struct {
	Driver driver.Driver
	// Renderer is the requested tier. The active one may be lower.
	Renderer domain.RendererKind
	Autoplay bool
	// Params defaults to domain.DefaultPlaybackParameters.
	Params mo.Option[domain.PlaybackParameters]
	Logger *slog.Logger
}

type Player struct {
	id        string
	drv       driver.Driver
	requested domain.RendererKind
	autoplay  bool
	logger    *slog.Logger
	events    *emitter

	// ctx is cancelled by Destroy and bounds every blocking call.
	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes owner operations that reach the driver. Driver hooks
	// never take it.
	opMu sync.Mutex

	mu          sync.Mutex
	state       domain.PlayerState
	params      domain.PlaybackParameters
	frame       float64
	totalFrames float64
	duration    float64
	loadSeq     uint64
	initialized bool
	active      domain.RendererKind
}

func New(cfg *Config) (*Player, error) {
	if cfg.Driver == nil {
		return nil, errors.New("driver is required")
	}
	params := cfg.Params.OrElse(domain.DefaultPlaybackParameters())
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback parameters: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		id:        id,
		drv:       cfg.Driver,
		requested: cfg.Renderer,
		autoplay:  cfg.Autoplay,
		logger:    logger.With("player_id", id),
		events:    newEmitter(),
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.StateLoading,
		params:    params,
	}
	p.drv.Bind(driver.Hooks{
		OnFrame:       p.onFrame,
		OnLoop:        p.onLoop,
		OnComplete:    p.onComplete,
		OnRenderError: p.onRenderError,
		OnFatal:       p.onFatal,
	})

	return p, nil
}

func (p *Player) ID() string {
	return p.id
}

// Subscribe registers fn for every later event. Events are delivered in
// order on a dedicated goroutine. The returned func unsubscribes.
func (p *Player) Subscribe(fn func(domain.Event)) func() {
	return p.events.subscribe(fn)
}

func (p *Player) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Player) CurrentFrame() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.frame
}

func (p *Player) TotalFrames() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalFrames
}

func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.duration
}

func (p *Player) Params() domain.PlaybackParameters {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.params
}

// Renderer returns the active tier once the renderer is up.
func (p *Player) Renderer() (domain.RendererKind, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active, p.initialized
}

// Load brings the renderer up on first use and loads src. A newer Load
// supersedes this one: its result is then discarded and ErrSuperseded is
// returned.
func (p *Player) Load(ctx context.Context, src source.Source, fileType source.FileType) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	p.loadSeq++
	seq := p.loadSeq
	p.state = domain.StateLoading
	p.mu.Unlock()

	if err := p.ensureInit(ctx, seq); err != nil {
		return err
	}

	res, err := p.drv.Load(ctx, src, fileType)
	if err != nil {
		if errors.Is(err, driver.ErrSuperseded) {
			return err
		}
		p.failLoad(seq, err)
		return err
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if seq != p.loadSeq {
		p.mu.Unlock()
		return driver.ErrSuperseded
	}
	p.totalFrames = res.TotalFrames
	p.duration = res.Duration
	p.frame = clock.StartBoundary(res.TotalFrames, p.params.Direction)
	p.state = domain.StateStopped
	p.events.push(domain.Event{Kind: domain.EventLoad})
	autoplay := p.autoplay
	p.mu.Unlock()

	p.logger.Info("animation loaded",
		"total_frames", res.TotalFrames,
		"duration", res.Duration,
		"width", res.Width,
		"height", res.Height,
	)

	if autoplay {
		return p.playLocked()
	}
	return nil
}

// ensureInit reports ready and every renderer fallback the first time the
// driver comes up. A failed bring-up may be retried by a later Load.
func (p *Player) ensureInit(ctx context.Context, seq uint64) error {
	p.mu.Lock()
	done := p.initialized
	p.mu.Unlock()
	if done {
		return nil
	}

	res, err := p.drv.Init(ctx, p.requested)
	if err != nil {
		if ctx.Err() == nil {
			p.failLoad(seq, err)
		}
		return err
	}

	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	first := !p.initialized
	p.initialized = true
	p.active = res.Active
	params := p.params
	if first {
		for i := range res.Fallbacks {
			fb := res.Fallbacks[i]
			p.events.push(domain.Event{Kind: domain.EventRendererFallback, Message: fb.Message, Fallback: &fb})
		}
		p.events.push(domain.Event{Kind: domain.EventReady})
	}
	p.mu.Unlock()

	if !first {
		return nil
	}

	if res.FallbackOccurred {
		p.logger.Warn("renderer fell back", "requested", p.requested.String(), "active", res.Active.String())
	}

	// parameters set before the renderer came up
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.drv.SetPlayback(params)
}

// failLoad moves to Error unless the attempt was superseded.
func (p *Player) failLoad(seq uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateDestroyed || seq != p.loadSeq {
		return
	}

	p.totalFrames = 0
	p.duration = 0
	p.frame = 0
	p.toErrorLocked(err)
}

func (p *Player) toErrorLocked(err error) {
	p.state = domain.StateError
	p.events.push(domain.Event{Kind: domain.EventError, Message: err.Error()})
	p.logger.Error("player failed", "error", err)
}

// Play is a no-op when nothing is loaded or the player is already playing.
func (p *Player) Play() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	return p.playLocked()
}

// playLocked must be called with opMu held.
func (p *Player) playLocked() error {
	p.mu.Lock()
	switch {
	case p.state == domain.StateDestroyed:
		p.mu.Unlock()
		return ErrDestroyed
	case p.totalFrames < 1, p.state == domain.StatePlaying, p.state == domain.StateLoading, p.state == domain.StateError:
		p.mu.Unlock()
		return nil
	}
	p.state = domain.StatePlaying
	p.events.push(domain.Event{Kind: domain.EventPlay})
	p.mu.Unlock()

	return p.drive(p.drv.Play())
}

// Pause moves Playing or Frozen to Paused.
func (p *Player) Pause() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case domain.StateDestroyed:
		p.mu.Unlock()
		return ErrDestroyed
	case domain.StatePlaying, domain.StateFrozen:
	default:
		p.mu.Unlock()
		return nil
	}
	p.state = domain.StatePaused
	p.events.push(domain.Event{Kind: domain.EventPause})
	p.mu.Unlock()

	return p.drive(p.drv.Pause())
}

// Stop rewinds to the start boundary. Stopped to Stopped is a no-op.
func (p *Player) Stop() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case domain.StateDestroyed:
		p.mu.Unlock()
		return ErrDestroyed
	case domain.StatePlaying, domain.StatePaused, domain.StateFrozen:
	default:
		p.mu.Unlock()
		return nil
	}
	p.state = domain.StateStopped
	p.mu.Unlock()

	frame, err := p.drv.Stop()
	if err != nil {
		return p.drive(err)
	}

	p.mu.Lock()
	if p.state == domain.StateStopped {
		p.frame = frame
		p.events.push(domain.Event{Kind: domain.EventStop})
	}
	p.mu.Unlock()

	return nil
}

// Seek always leaves the player Paused and renders frame once. A later Play
// resumes from there.
func (p *Player) Seek(frame float64) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	switch {
	case p.state == domain.StateDestroyed:
		p.mu.Unlock()
		return ErrDestroyed
	case p.totalFrames < 1, p.state == domain.StateLoading, p.state == domain.StateError:
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if p.state != domain.StatePaused {
		p.state = domain.StatePaused
		p.events.push(domain.Event{Kind: domain.EventPause})
	}
	p.mu.Unlock()

	clamped, err := p.drv.Seek(frame)

	p.mu.Lock()
	if p.state == domain.StatePaused {
		p.frame = clamped
		p.events.push(domain.Event{Kind: domain.EventFrame, Frame: clamped})
	}
	p.mu.Unlock()

	var rerr *engine.RenderError
	if errors.As(err, &rerr) {
		p.onRenderError(err)
		return err
	}

	return p.drive(err)
}

// Resize picks up the surface geometry after a layout change.
func (p *Player) Resize() error {
	return p.withDriver(p.drv.Resize)
}

// Freeze pauses for a lost intersection. It reports whether the player was
// Playing; it is a no-op otherwise.
func (p *Player) Freeze() (bool, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.state != domain.StatePlaying {
		p.mu.Unlock()
		return false, nil
	}
	p.state = domain.StateFrozen
	p.events.push(domain.Event{Kind: domain.EventFreeze})
	p.mu.Unlock()

	return true, p.drive(p.drv.Pause())
}

func (p *Player) SetSpeed(speed float64) error {
	if speed <= 0 {
		return domain.ErrInvalidSpeed
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	p.params.Speed = speed
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return nil
	}
	return p.drive(p.drv.SetSpeed(speed))
}

func (p *Player) SetDirection(d domain.Direction) error {
	return p.updateParams(func(params *domain.PlaybackParameters) {
		params.Direction = d
	})
}

func (p *Player) SetLoop(loop bool) error {
	return p.updateParams(func(params *domain.PlaybackParameters) {
		params.Loop = loop
	})
}

func (p *Player) SetMode(m domain.Mode) error {
	return p.updateParams(func(params *domain.PlaybackParameters) {
		params.Mode = m
	})
}

// SetRepeatCount limits the number of repeats; mo.None removes the limit.
func (p *Player) SetRepeatCount(n mo.Option[int]) error {
	return p.updateParams(func(params *domain.PlaybackParameters) {
		params.RepeatCount = n
	})
}

func (p *Player) SetIntermission(seconds float64) error {
	return p.updateParams(func(params *domain.PlaybackParameters) {
		params.IntermissionSeconds = seconds
	})
}

func (p *Player) updateParams(fn func(*domain.PlaybackParameters)) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	params := p.params
	fn(&params)
	if err := params.Validate(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.params = params
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return nil
	}
	return p.drive(p.drv.SetPlayback(params))
}

func (p *Player) withDriver(fn func() error) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	state, initialized := p.state, p.initialized
	p.mu.Unlock()
	if state == domain.StateDestroyed {
		return ErrDestroyed
	}
	if !initialized {
		return nil
	}

	return p.drive(fn())
}

// drive turns a driver failure into the Error state. A closed driver only
// happens after Destroy and is not reported.
func (p *Player) drive(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrClosed) {
		return ErrDestroyed
	}

	p.mu.Lock()
	if p.state != domain.StateDestroyed && p.state != domain.StateError {
		p.toErrorLocked(err)
	}
	p.mu.Unlock()

	return err
}

// Destroy is terminal. It cancels pending init and load waits, stops every
// timer and emits destroyed as the last event.
func (p *Player) Destroy() {
	p.mu.Lock()
	if p.state == domain.StateDestroyed {
		p.mu.Unlock()
		return
	}
	p.state = domain.StateDestroyed
	p.events.close(domain.Event{Kind: domain.EventDestroyed})
	p.mu.Unlock()

	p.cancel()
	p.drv.Close()
	p.logger.Debug("player destroyed")
}

func (p *Player) onFrame(frame float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StatePlaying {
		return
	}
	p.frame = frame
	p.events.push(domain.Event{Kind: domain.EventFrame, Frame: frame})
}

func (p *Player) onLoop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StatePlaying {
		return
	}
	p.events.push(domain.Event{Kind: domain.EventLoop})
}

func (p *Player) onComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StatePlaying {
		return
	}
	p.state = domain.StateStopped
	p.events.push(domain.Event{Kind: domain.EventComplete})
}

func (p *Player) onRenderError(err error) {
	p.logger.Warn("render error", "error", err)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateDestroyed {
		return
	}
	p.events.push(domain.Event{Kind: domain.EventRenderError, Message: err.Error()})
}

func (p *Player) onFatal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateDestroyed || p.state == domain.StateError {
		return
	}
	p.toErrorLocked(err)
}
