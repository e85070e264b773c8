package driver

import (
	"sync"

	"github.com/sharetube/vectorplayer/internal/protocol"
)

// mailbox is a single-slot buffer for pixel frames. A newer frame overwrites
// an unconsumed one, so the primary only ever blits the latest.
type mailbox struct {
	mu        sync.Mutex
	frame     *protocol.Frame
	scheduled bool
	drops     uint64
}

// put stores f and reports whether the caller must schedule a consumer.
func (m *mailbox) put(f protocol.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frame != nil {
		m.drops++
	}
	m.frame = &f

	if m.scheduled {
		return false
	}
	m.scheduled = true
	return true
}

// take empties the slot. It returns nil when a previous take already
// consumed the frame.
func (m *mailbox) take() *protocol.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.frame
	m.frame = nil
	m.scheduled = false
	return f
}

func (m *mailbox) dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.drops
}
