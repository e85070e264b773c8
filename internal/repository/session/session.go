package session

import (
	"errors"
	"time"

	"github.com/sharetube/vectorplayer/internal/domain"
)

var (
	ErrAlreadyExists = errors.New("session already exists")
	ErrNotFound      = errors.New("session not found")
)

// Session is one worker runtime served over a websocket connection.
type Session struct {
	ID          string              `json:"id"`
	RemoteAddr  string              `json:"remote_addr"`
	StartedAt   time.Time           `json:"started_at"`
	Initialized bool                `json:"initialized"`
	Renderer    domain.RendererKind `json:"renderer"`
	Loads       int                 `json:"loads"`
}
