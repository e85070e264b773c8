package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/protocol"
	"github.com/sharetube/vectorplayer/internal/repository/session"
	"github.com/sharetube/vectorplayer/internal/transport"
	"github.com/sharetube/vectorplayer/internal/worker"
	"github.com/sharetube/vectorplayer/pkg/ctxlogger"
)

func (c controller) listSessions(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(r.Context(), w, http.StatusOK, envelope{"data": c.sessions.List()})
}

func (c controller) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session-id")

	s, err := c.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.writeJSON(r.Context(), w, http.StatusNotFound, envelope{"error": err.Error()})
			return
		}
		c.writeJSON(r.Context(), w, http.StatusInternalServerError, envelope{"error": err.Error()})
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, envelope{"data": s})
}

// serveWorker runs one worker runtime for the lifetime of the websocket.
func (c controller) serveWorker(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	ctx := context.WithValue(r.Context(), sessionIDCtxKey, sessionID)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sessionID))

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}

	ep := transport.NewWorkerWS(conn, protocol.NewCodec())
	defer ep.Close()

	if err := c.sessions.Add(&session.Session{
		ID:         sessionID,
		RemoteAddr: r.RemoteAddr,
		StartedAt:  time.Now(),
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to register session", "error", err)
		return
	}
	defer c.disconnect(ctx)

	rt := worker.New(ep, &worker.Config{
		Engines:       c.engines(),
		Resolver:      c.resolver,
		FrameInterval: c.frameInterval,
		Logger:        c.logger,
		OnReady: func(kind domain.RendererKind) {
			c.updateSession(ctx, func(s *session.Session) {
				s.Initialized = true
				s.Renderer = kind
			})
		},
		OnLoaded: func(uint64) {
			c.updateSession(ctx, func(s *session.Session) {
				s.Loads++
			})
		},
	})

	c.logger.InfoContext(ctx, "worker session started", "remote_addr", r.RemoteAddr)
	if err := rt.Serve(ctx); err != nil {
		c.logger.WarnContext(ctx, "worker session failed", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "worker session closed")
}

func (c controller) updateSession(ctx context.Context, fn func(s *session.Session)) {
	if err := c.sessions.Update(c.getSessionIDFromCtx(ctx), fn); err != nil {
		c.logger.WarnContext(ctx, "failed to update session", "error", err)
	}
}

func (c controller) disconnect(ctx context.Context) {
	if err := c.sessions.Remove(c.getSessionIDFromCtx(ctx)); err != nil {
		c.logger.WarnContext(ctx, "failed to remove session", "error", err)
	}
}
