package inmemory

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/sharetube/vectorplayer/internal/repository/session"
)

type repo struct {
	sessions map[string]*session.Session
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		sessions: make(map[string]*session.Session),
	}
}

func (r *repo) Add(s *session.Session) error {
	funcName := "session.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "sessionID", s.ID)
	if _, ok := r.sessions[s.ID]; ok {
		slog.Info(funcName, "error", session.ErrAlreadyExists)
		return session.ErrAlreadyExists
	}

	copied := *s
	r.sessions[s.ID] = &copied

	slog.Debug(funcName, "result", "OK")
	return nil
}

func (r *repo) Remove(id string) error {
	funcName := "session.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "sessionID", id)
	if _, ok := r.sessions[id]; !ok {
		slog.Info(funcName, "error", session.ErrNotFound)
		return session.ErrNotFound
	}

	delete(r.sessions, id)

	slog.Debug(funcName, "result", "OK")
	return nil
}

// Update applies fn to the stored session under the write lock.
func (r *repo) Update(id string, fn func(s *session.Session)) error {
	funcName := "session.inmemory.Update"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "sessionID", id)
	s, ok := r.sessions[id]
	if !ok {
		slog.Info(funcName, "error", session.ErrNotFound)
		return session.ErrNotFound
	}

	fn(s)
	return nil
}

func (r *repo) Get(id string) (session.Session, error) {
	funcName := "session.inmemory.Get"
	r.mu.RLock()
	defer r.mu.RUnlock()

	slog.Debug(funcName, "sessionID", id)
	s, ok := r.sessions[id]
	if !ok {
		slog.Info(funcName, "error", session.ErrNotFound)
		return session.Session{}, session.ErrNotFound
	}

	return *s, nil
}

// List returns a snapshot ordered by start time.
func (r *repo) List() []session.Session {
	funcName := "session.inmemory.List"
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedAt.Before(list[j].StartedAt)
	})

	slog.Debug(funcName, "result", len(list))
	return list
}
