package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sharetube/vectorplayer/internal/clock"
	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/playback"
	"github.com/sharetube/vectorplayer/internal/protocol"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
	"github.com/sharetube/vectorplayer/internal/transport"
)

// RemoteError is an ERROR response reported by the background context.
type RemoteError struct {
	Code    protocol.ErrorCode
	Message string
	Cause   string
}

func (e *RemoteError) Error() string {
	if e.Cause == "" || e.Cause == e.Message {
		return fmt.Sprintf("worker %s error: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("worker %s error: %s (%s)", e.Code, e.Message, e.Cause)
}

type DelegatedConfig struct {
	// Layout is read for canvas info. It stays with the primary side even when
	// the drawing surface is handed over.
	Layout surface.Layout
	// Surface receives pixel frames unless it is transferred.
	Surface surface.Surface
	// TransferSurface hands Surface to the background context in INIT. Only
	// in-process transports can carry it.
	TransferSurface bool
	// Frames schedules pixel blits on the host refresh. Blits happen on
	// arrival when nil.
	Frames        *playback.FrameCallbacks
	FrameInterval time.Duration
	Logger        *slog.Logger
}

type call[T any] struct {
	done chan struct{}
	res  T
	err  error
}

func newCall[T any]() *call[T] {
	return &call[T]{done: make(chan struct{})}
}

func (c *call[T]) finish(res T, err error) {
	c.res, c.err = res, err
	close(c.done)
}

func (c *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type initCall struct {
	*call[engine.InitResult]
	requested domain.RendererKind
}

type loadCall struct {
	*call[LoadResult]
	id uint64
}

// Delegated forwards every command to a background context over a transport
// endpoint. The background context owns clock, timer and engine.
type Delegated struct {
	ep       transport.Primary
	layout   surface.Layout
	transfer bool
	frames   *playback.FrameCallbacks
	interval time.Duration
	logger   *slog.Logger
	pixels   mailbox

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	hooks        hooks
	surf         surface.Surface
	initializing *initCall
	initialized  bool
	initRes      engine.InitResult
	loadSeq      uint64
	loading      *loadCall
	totalFrames  float64
	params       domain.PlaybackParameters
	lastCanvas   domain.CanvasInfo
	closed       bool
	gone         error
}

// NewDelegated starts reading responses from ep right away.
func NewDelegated(ep transport.Primary, cfg *DelegatedConfig) *Delegated {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	layout := cfg.Layout
	if layout == nil && cfg.Surface != nil {
		layout = cfg.Surface
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Delegated{
		ep:       ep,
		layout:   layout,
		transfer: cfg.TransferSurface,
		frames:   cfg.Frames,
		interval: cfg.FrameInterval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		surf:     cfg.Surface,
		params:   domain.DefaultPlaybackParameters(),
	}
	go d.readLoop()

	return d
}

func (d *Delegated) Bind(h Hooks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.hooks = hooks{h}
}

func (d *Delegated) currentHooks() hooks {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return hooks{}
	}
	return d.hooks
}

// HoldsSurface reports whether the primary side still owns the drawing surface.
func (d *Delegated) HoldsSurface() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.surf != nil
}

// DroppedFrames counts pixel frames overwritten before they were blitted.
func (d *Delegated) DroppedFrames() uint64 {
	return d.pixels.dropped()
}

func (d *Delegated) Init(ctx context.Context, requested domain.RendererKind) (engine.InitResult, error) {
	d.mu.Lock()
	if err := d.usableLocked(); err != nil {
		d.mu.Unlock()
		return engine.InitResult{}, err
	}
	if d.initialized {
		res := d.initRes
		d.mu.Unlock()
		return res, nil
	}
	if c := d.initializing; c != nil {
		d.mu.Unlock()
		return c.wait(ctx)
	}

	c := &initCall{call: newCall[engine.InitResult](), requested: requested}
	d.initializing = c

	cmd := protocol.Init{
		RenderConfig: &protocol.RenderConfig{
			Renderer:        requested,
			FrameIntervalMs: int(d.interval / time.Millisecond),
		},
	}
	if d.layout != nil {
		info := surface.CanvasInfo(d.layout)
		cmd.CanvasInfo = &info
		d.lastCanvas = info
	}
	if d.transfer {
		cmd.UseExclusiveSurface = true
		cmd.Surface = d.surf
		d.surf = nil
	}
	d.mu.Unlock()

	if err := d.ep.Send(ctx, cmd); err != nil {
		err = fmt.Errorf("failed to send INIT: %w", err)
		d.mu.Lock()
		if d.initializing == c {
			d.initializing = nil
			c.finish(engine.InitResult{}, err)
		}
		d.mu.Unlock()
		return engine.InitResult{}, err
	}

	return c.wait(ctx)
}

func (d *Delegated) Load(ctx context.Context, src source.Source, fileType source.FileType) (LoadResult, error) {
	d.mu.Lock()
	if err := d.usableLocked(); err != nil {
		d.mu.Unlock()
		return LoadResult{}, err
	}
	if !d.initialized {
		d.mu.Unlock()
		return LoadResult{}, engine.ErrNotInitialized
	}
	if prev := d.loading; prev != nil {
		prev.finish(LoadResult{}, ErrSuperseded)
	}
	d.loadSeq++
	c := &loadCall{call: newCall[LoadResult](), id: d.loadSeq}
	d.loading = c
	d.mu.Unlock()

	if err := d.ep.Send(ctx, protocol.Load{LoadID: c.id, Src: src, FileType: fileType}); err != nil {
		d.dropLoad(c)
		return LoadResult{}, fmt.Errorf("failed to send LOAD: %w", err)
	}

	res, err := c.wait(ctx)
	if err != nil && ctx.Err() != nil {
		d.dropLoad(c)
	}

	return res, err
}

func (d *Delegated) dropLoad(c *loadCall) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loading == c {
		d.loading = nil
	}
}

func (d *Delegated) Play() error {
	return d.send(protocol.Play{})
}

func (d *Delegated) Pause() error {
	return d.send(protocol.Pause{})
}

// Stop predicts the frame the worker rewinds to. The worker rewinds to the
// configured direction held in d.params, whatever the current bounce leg.
func (d *Delegated) Stop() (float64, error) {
	d.mu.Lock()
	boundary := clock.StartBoundary(d.totalFrames, d.params.Direction)
	d.mu.Unlock()

	return boundary, d.send(protocol.Stop{})
}

// Seek clamps locally; a rejection by the engine arrives later as a render error.
func (d *Delegated) Seek(frame float64) (float64, error) {
	d.mu.Lock()
	frame = lo.Clamp(frame, 0, d.totalFrames)
	d.mu.Unlock()

	return frame, d.send(protocol.Seek{Frame: frame})
}

// Resize sends RESIZE when the pixel size changed and UPDATE_CANVAS_INFO otherwise.
func (d *Delegated) Resize() error {
	if d.layout == nil {
		return nil
	}

	info := surface.CanvasInfo(d.layout)
	d.mu.Lock()
	sizeChanged := info.Width != d.lastCanvas.Width || info.Height != d.lastCanvas.Height
	d.lastCanvas = info
	d.mu.Unlock()

	if sizeChanged {
		return d.send(protocol.Resize{CanvasInfo: info})
	}
	return d.send(protocol.UpdateCanvasInfo{CanvasInfo: info})
}

func (d *Delegated) SetSpeed(speed float64) error {
	if speed <= 0 {
		return domain.ErrInvalidSpeed
	}

	d.mu.Lock()
	d.params.Speed = speed
	d.mu.Unlock()

	return d.send(protocol.SetSpeed{Speed: speed})
}

func (d *Delegated) SetPlayback(params domain.PlaybackParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.params = params
	d.mu.Unlock()

	if err := d.send(protocol.NewSetPlayback(params)); err != nil {
		return err
	}
	return d.send(protocol.SetSpeed{Speed: params.Speed})
}

// Close fails pending calls, cancels the read loop and closes the endpoint.
// No hook runs after Close returns.
func (d *Delegated) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.failPendingLocked(ErrClosed)
	d.surf = nil
	d.mu.Unlock()

	d.cancel()
	if err := d.ep.Close(); err != nil {
		d.logger.Debug("failed to close endpoint", "error", err)
	}
}

func (d *Delegated) send(cmd protocol.Command) error {
	d.mu.Lock()
	err := d.usableLocked()
	d.mu.Unlock()
	if err != nil {
		return err
	}

	if err := d.ep.Send(d.ctx, cmd); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Kind(), err)
	}
	return nil
}

func (d *Delegated) usableLocked() error {
	if d.closed {
		return ErrClosed
	}
	if d.gone != nil {
		return d.gone
	}
	return nil
}

func (d *Delegated) failPendingLocked(err error) {
	if c := d.initializing; c != nil {
		d.initializing = nil
		c.finish(engine.InitResult{}, err)
	}
	if c := d.loading; c != nil {
		d.loading = nil
		c.finish(LoadResult{}, err)
	}
}

func (d *Delegated) readLoop() {
	for {
		resp, err := d.ep.Receive(d.ctx)
		if err != nil {
			d.lost(err)
			return
		}

		d.dispatch(resp)
	}
}

// lost handles the end of the response stream.
func (d *Delegated) lost(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.gone = fmt.Errorf("%w: %v", ErrWorkerGone, err)
	gone := d.gone
	d.failPendingLocked(gone)
	h := d.hooks
	d.mu.Unlock()

	d.logger.Warn("background context lost", "error", err)
	h.fatal(gone)
}

func (d *Delegated) dispatch(resp protocol.Response) {
	switch r := resp.(type) {
	case protocol.Ready:
		d.mu.Lock()
		c := d.initializing
		d.initializing = nil
		res := engine.InitResult{Active: r.Renderer, Fallbacks: r.Fallbacks}
		if c != nil {
			res.FallbackOccurred = r.Renderer != c.requested
		}
		d.initialized = true
		d.initRes = res
		d.mu.Unlock()

		if c != nil {
			c.finish(res, nil)
		}

	case protocol.Loaded:
		d.mu.Lock()
		c := d.loading
		if c == nil || c.id != r.LoadID {
			d.mu.Unlock()
			d.logger.Debug("discarding stale LOADED", "load_id", r.LoadID)
			return
		}
		d.loading = nil
		d.totalFrames = r.TotalFrame
		d.mu.Unlock()

		c.finish(LoadResult{
			TotalFrames: r.TotalFrame,
			Duration:    r.Duration,
			Width:       r.Size[0],
			Height:      r.Size[1],
		}, nil)

	case protocol.Frame:
		// Ticks are announced without pixels; pixels follow once rendered.
		if len(r.ImageData) > 0 {
			d.deliver(r)
			return
		}
		d.currentHooks().frame(r.FrameNumber)

	case protocol.Loop:
		d.currentHooks().loop()

	case protocol.Complete:
		d.currentHooks().complete()

	case protocol.Error:
		d.dispatchError(r)

	default:
		d.logger.Warn("unexpected response", "type", resp.Kind())
	}
}

func (d *Delegated) dispatchError(r protocol.Error) {
	remote := &RemoteError{Code: r.Code, Message: r.Message, Cause: r.Cause}

	switch r.Code {
	case protocol.CodeInit:
		d.mu.Lock()
		c := d.initializing
		d.initializing = nil
		d.mu.Unlock()

		if c != nil {
			c.finish(engine.InitResult{}, &engine.InitError{Kind: c.requested, Err: remote})
		}

	case protocol.CodeLoad:
		d.mu.Lock()
		c := d.loading
		if c == nil || c.id != r.LoadID {
			d.mu.Unlock()
			d.logger.Debug("discarding stale load error", "load_id", r.LoadID)
			return
		}
		d.loading = nil
		d.mu.Unlock()

		c.finish(LoadResult{}, &engine.LoadError{Err: remote})

	case protocol.CodeRender:
		d.currentHooks().renderError(&engine.RenderError{Err: remote})

	default:
		d.logger.Warn("worker protocol error", "message", r.Message)
		d.currentHooks().fatal(remote)
	}
}

// deliver parks a pixel frame in the mailbox and blits it on the next refresh.
func (d *Delegated) deliver(f protocol.Frame) {
	if !d.pixels.put(f) {
		return
	}

	if d.frames == nil {
		d.blit(time.Now())
		return
	}
	d.frames.NextFrame(d.blit)
}

func (d *Delegated) blit(time.Time) {
	f := d.pixels.take()
	if f == nil {
		return
	}

	d.mu.Lock()
	surf := d.surf
	closed := d.closed
	d.mu.Unlock()
	if closed || surf == nil {
		return
	}

	img, err := surface.RGBA(f.ImageData, f.Width, f.Height)
	if err != nil {
		d.logger.Warn("discarding malformed frame", "frame", f.FrameNumber, "error", err)
		return
	}
	if err := surf.Present(img); err != nil && !errors.Is(err, surface.ErrDetached) {
		d.logger.Warn("failed to present frame", "frame", f.FrameNumber, "error", err)
	}
}
