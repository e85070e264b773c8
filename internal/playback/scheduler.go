package playback

import (
	"context"
	"sync"
	"time"
)

const DefaultFrameInterval = time.Second / 60

// Scheduler requests future ticks. Cancel funcs are idempotent and safe to
// call after the callback already ran.
type Scheduler interface {
	NextFrame(fn func(now time.Time)) (cancel func())
	After(d time.Duration, fn func()) (cancel func())
}

// FrameCallbacks queues callbacks for the next display refresh. The host calls
// Flush once per refresh, the way a browser runs animation-frame callbacks.
type FrameCallbacks struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]func(time.Time)
	order   []uint64
}

func NewFrameCallbacks() *FrameCallbacks {
	return &FrameCallbacks{pending: make(map[uint64]func(time.Time))}
}

func (f *FrameCallbacks) NextFrame(fn func(now time.Time)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.pending[id] = fn
	f.order = append(f.order, id)

	return func() {
		f.mu.Lock()
		delete(f.pending, id)
		f.mu.Unlock()
	}
}

func (f *FrameCallbacks) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Flush runs every callback queued before the call. Callbacks queued while
// flushing wait for the next refresh. It returns the number of callbacks run.
func (f *FrameCallbacks) Flush(now time.Time) int {
	f.mu.Lock()
	batch := f.order
	f.order = nil
	f.mu.Unlock()

	ran := 0
	for _, id := range batch {
		f.mu.Lock()
		fn, ok := f.pending[id]
		delete(f.pending, id)
		f.mu.Unlock()

		if ok {
			fn(now)
			ran++
		}
	}

	return ran
}

func (f *FrameCallbacks) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

// Run flushes on every interval until ctx is done.
func (f *FrameCallbacks) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.Flush(now)
		}
	}
}

// TimerScheduler ticks on its own timer, independent of any display refresh.
type TimerScheduler struct {
	interval time.Duration
}

func NewTimerScheduler(interval time.Duration) *TimerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	return &TimerScheduler{interval: interval}
}

func (s *TimerScheduler) NextFrame(fn func(now time.Time)) func() {
	t := time.AfterFunc(s.interval, func() { fn(time.Now()) })
	return func() { t.Stop() }
}

func (s *TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
