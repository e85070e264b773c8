// Package playback runs the frame clock against a scheduler and a renderer.
// Both execution modes drive their ticks through a Loop.
package playback

import (
	"sync"
	"time"

	"github.com/sharetube/vectorplayer/internal/clock"
	"github.com/sharetube/vectorplayer/internal/domain"
)

// Renderer draws one frame and reports whether the engine accepted it.
type Renderer interface {
	RenderFrame(frame float64) bool
}

type RendererFunc func(frame float64) bool

func (f RendererFunc) RenderFrame(frame float64) bool {
	return f(frame)
}

// Hooks receive tick outcomes. They run on the scheduler's goroutine and never
// while a Loop method called by the owner is executing.
type Hooks struct {
	OnFrame    func(frame float64)
	OnLoop     func()
	OnComplete func()
	OnReject   func(frame float64)
}

type Config struct {
	Scheduler Scheduler
	Renderer  Renderer
	Hooks     Hooks
	// Now defaults to time.Now.
	Now func() time.Time
}

type Loop struct {
	mu       sync.Mutex
	renderMu sync.Mutex

	sched    Scheduler
	renderer Renderer
	hooks    Hooks
	now      func() time.Time

	st     clock.State
	params domain.PlaybackParameters
	// direction is the configured direction. params.Direction is the current
	// leg and differs from it after a bounce reversal.
	direction domain.Direction

	running bool
	// completed is set by a natural completion and cleared by any move.
	completed bool
	// halted is set when the engine rejected a frame while running.
	halted bool
	cancel func()
	// gen invalidates callbacks scheduled before the last owner command.
	gen    uint64
	closed bool
}

func NewLoop(cfg *Config) *Loop {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	params := domain.DefaultPlaybackParameters()

	return &Loop{
		sched:     cfg.Scheduler,
		renderer:  cfg.Renderer,
		hooks:     cfg.Hooks,
		now:       now,
		params:    params,
		direction: params.Direction,
	}
}

// Load resets the clock for a freshly loaded animation. The loop is left stopped.
func (l *Loop) Load(totalFrames, duration float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interruptLocked()
	l.running = false
	l.st = clock.State{TotalFrames: totalFrames, Duration: duration}
	l.rewindLocked(l.now())
}

// Start schedules ticks from the current frame. Playing again after a natural
// completion starts over from the start boundary. It reports whether ticking
// was (re)started.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.st.Loaded() || (l.running && !l.halted) {
		return false
	}

	now := l.now()
	if !l.running && l.completed {
		l.rewindLocked(now)
	} else {
		clock.Resume(&l.st, &l.params, now)
	}

	l.interruptLocked()
	l.running = true
	l.scheduleLocked()
	return true
}

func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interruptLocked()
	l.running = false
}

// Stop halts ticking, rewinds to the start boundary of the configured
// direction and redraws it.
func (l *Loop) Stop() float64 {
	l.mu.Lock()
	l.interruptLocked()
	l.running = false
	l.rewindLocked(l.now())
	frame := l.st.CurrentFrame
	loaded := l.st.Loaded() && !l.closed
	l.mu.Unlock()

	if loaded {
		l.renderSync(frame)
	}

	return frame
}

// Seek halts ticking and renders the target frame synchronously. It returns
// the clamped frame and whether the engine accepted it.
func (l *Loop) Seek(frame float64) (float64, bool) {
	l.mu.Lock()
	if l.closed || !l.st.Loaded() {
		l.mu.Unlock()
		return 0, false
	}
	l.interruptLocked()
	l.running = false
	l.completed = false
	clock.Seek(&l.st, &l.params, frame, l.now())
	frame = l.st.CurrentFrame
	l.mu.Unlock()

	return frame, l.renderSync(frame)
}

// SetParams replaces the playback parameters, keeping the current frame. The
// current bounce leg keeps its direction unless params changes the configured
// direction.
func (l *Loop) SetParams(params domain.PlaybackParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	configured := params.Direction
	if configured == l.direction {
		params.Direction = l.params.Direction
	}
	l.direction = configured
	l.params = params
	l.reanchorLocked()
	return nil
}

func (l *Loop) SetSpeed(speed float64) error {
	if speed <= 0 {
		return domain.ErrInvalidSpeed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.params.Speed = speed
	l.reanchorLocked()
	return nil
}

// Redraw renders the current frame again, after a resize for example. A loop
// halted by a rejected frame resumes ticking.
func (l *Loop) Redraw() bool {
	l.mu.Lock()
	if l.closed || !l.st.Loaded() {
		l.mu.Unlock()
		return false
	}
	frame := l.st.CurrentFrame
	if l.running && l.halted {
		l.halted = false
		clock.Resume(&l.st, &l.params, l.now())
		l.scheduleLocked()
	}
	l.mu.Unlock()

	return l.renderSync(frame)
}

// Close cancels every pending frame callback and intermission timer. No hook
// runs for callbacks scheduled before Close.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interruptLocked()
	l.running = false
	l.closed = true
}

// Params returns the configured parameters.
func (l *Loop) Params() domain.PlaybackParameters {
	l.mu.Lock()
	defer l.mu.Unlock()

	params := l.params
	params.Direction = l.direction
	return params
}

// Direction returns the direction of the current leg.
func (l *Loop) Direction() domain.Direction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.params.Direction
}

func (l *Loop) Frame() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.st.CurrentFrame
}

func (l *Loop) TotalFrames() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.st.TotalFrames
}

func (l *Loop) Duration() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.st.Duration
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}

func (l *Loop) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running && l.halted
}

// rewindLocked restarts from the configured direction's start boundary.
func (l *Loop) rewindLocked(now time.Time) {
	l.completed = false
	l.params.Direction = l.direction
	clock.Rewind(&l.st, &l.params, now)
}

// interruptLocked cancels the pending callback and invalidates in-flight ticks.
func (l *Loop) interruptLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.halted = false
	l.gen++
}

func (l *Loop) reanchorLocked() {
	if !l.st.Loaded() {
		return
	}

	clock.Resume(&l.st, &l.params, l.now())
	if l.running && l.halted {
		l.halted = false
		l.scheduleLocked()
	}
}

func (l *Loop) scheduleLocked() {
	gen := l.gen
	l.cancel = l.sched.NextFrame(func(now time.Time) {
		l.tick(gen, now)
	})
}

func (l *Loop) currentLocked(gen uint64) bool {
	return !l.closed && gen == l.gen
}

func (l *Loop) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.currentLocked(gen)
}

func (l *Loop) tick(gen uint64, now time.Time) {
	l.mu.Lock()
	if !l.currentLocked(gen) || !l.running {
		l.mu.Unlock()
		return
	}
	l.cancel = nil
	t := clock.Advance(&l.st, &l.params, now)
	if t.Outcome == clock.Completed {
		l.running = false
		l.completed = true
	}
	l.mu.Unlock()

	if l.hooks.OnFrame != nil && l.current(gen) {
		l.hooks.OnFrame(t.Frame)
	}

	accepted := l.render(gen, t.Frame)
	if !accepted {
		l.mu.Lock()
		stale := !l.currentLocked(gen)
		if !stale && l.running {
			l.halted = true
		}
		l.mu.Unlock()

		if stale {
			return
		}
		if l.hooks.OnReject != nil {
			l.hooks.OnReject(t.Frame)
		}
	}

	switch t.Outcome {
	case clock.Completed:
		if l.hooks.OnComplete != nil && l.current(gen) {
			l.hooks.OnComplete()
		}

	case clock.Looped:
		if !accepted {
			return
		}
		if l.hooks.OnLoop != nil && l.current(gen) {
			l.hooks.OnLoop()
		}

		l.mu.Lock()
		if l.currentLocked(gen) && l.running {
			if t.Intermission > 0 {
				l.cancel = l.sched.After(t.Intermission, func() { l.resume(gen) })
			} else {
				l.scheduleLocked()
			}
		}
		l.mu.Unlock()

	case clock.Advanced:
		if !accepted {
			return
		}

		l.mu.Lock()
		if l.currentLocked(gen) && l.running {
			l.scheduleLocked()
		}
		l.mu.Unlock()
	}
}

// resume continues after an intermission from the boundary the loop reset to.
func (l *Loop) resume(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.currentLocked(gen) || !l.running {
		return
	}

	clock.Resume(&l.st, &l.params, l.now())
	l.scheduleLocked()
}

func (l *Loop) render(gen uint64, frame float64) bool {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	if !l.current(gen) {
		return false
	}

	return l.renderer.RenderFrame(frame)
}

func (l *Loop) renderSync(frame float64) bool {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	return l.renderer.RenderFrame(frame)
}
