package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/repository/session"
	"github.com/sharetube/vectorplayer/internal/source"
)

type iSessionRepo interface {
	Add(s *session.Session) error
	Remove(id string) error
	Update(id string, fn func(s *session.Session)) error
	Get(id string) (session.Session, error)
	List() []session.Session
}

type iResolver interface {
	Resolve(ctx context.Context, src source.Source, fileType source.FileType) ([]byte, error)
}

type Config struct {
	// Engines builds the engine context of one worker session.
	Engines       func() *engine.Context
	Resolver      iResolver
	Sessions      iSessionRepo
	FrameInterval time.Duration

	// AllowedOrigins lists the origins accepted for websocket upgrades and
	// CORS. Empty means same-origin upgrades only.
	AllowedOrigins []string
}

type controller struct {
	engines        func() *engine.Context
	resolver       iResolver
	sessions       iSessionRepo
	frameInterval  time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

func NewController(cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		engines:        cfg.Engines,
		resolver:       cfg.Resolver,
		sessions:       cfg.Sessions,
		frameInterval:  cfg.FrameInterval,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
	// a nil CheckOrigin makes the upgrader reject cross-origin requests
	if len(cfg.AllowedOrigins) > 0 {
		c.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(cfg.AllowedOrigins, origin)
		}
	}

	return c
}
