package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Store keeps the live sessions of one process.
type Store struct {
	mu       sync.RWMutex
	opts     Options
	sessions map[string]*Session
}

func NewStore(opts Options) *Store {
	return &Store{opts: opts, sessions: make(map[string]*Session)}
}

// Create starts a session with a fresh random id.
func (st *Store) Create() *Session {
	s := New(uuid.NewString(), st.opts)

	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()

	slog.Info("Session created.", "sessionId", s.id)
	return s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete forgets a session and reports whether it existed.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
