package session

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
)

// ErrSessionBusy is returned when another request holds a session's lock for
// longer than the bounded wait.
var ErrSessionBusy = fmt.Errorf("session_busy")

const defaultLockWait = 30 * time.Second

// Manager fronts the configured store with an in-process cache and keyed
// per-session locks. Writes go through to the store immediately; reads hit
// the cache first and fall back to the store.
type Manager struct {
	store Store

	// LockWait bounds how long Acquire blocks on a held session lock.
	LockWait time.Duration

	mu    sync.Mutex
	cache map[string]*Session
	locks map[string]chan struct{}
}

// NewManager builds the manager for the configured store type. The "memory"
// type runs cache-only with no persistence. Stores other than memory get a
// fresh boot-scoped namespace when none is configured, so concurrent runtimes
// sharing one backend stay isolated.
func NewManager(cfg config.SessionStore) (*Manager, error) {
	m := &Manager{
		LockWait: defaultLockWait,
		cache:    make(map[string]*Session),
		locks:    make(map[string]chan struct{}),
	}

	namespace := cfg.Namespace
	if namespace == "" && cfg.Type != "memory" {
		namespace = NewID("boot")
	}

	switch cfg.Type {
	case "", "memory":
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("session store type file requires a path")
		}
		if cfg.ResetOnBoot {
			if err := os.Remove(cfg.Path); err != nil && !os.IsNotExist(err) {
				slog.Warn("session store: reset on boot failed", "path", cfg.Path, "error", err)
			}
		}
		m.store = NewFileStore(cfg.Path, namespace)
	case "minimemory", "redis":
		m.store = NewRESPStore(cfg.Endpoint, cfg.Password, cfg.DB, namespace)
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}

	return m, nil
}

// EnsureSessionID returns preferred when set, otherwise a fresh "sess-..."
// identifier.
func (m *Manager) EnsureSessionID(preferred string) string {
	if preferred != "" {
		return preferred
	}
	return NewID("sess")
}

// Acquire takes the per-session lock, waiting up to LockWait before giving
// up with ErrSessionBusy. The returned func releases the lock.
func (m *Manager) Acquire(sessionID string) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = make(chan struct{}, 1)
		m.locks[sessionID] = lock
	}
	wait := m.LockWait
	m.mu.Unlock()

	if wait <= 0 {
		wait = defaultLockWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-timer.C:
		return nil, ErrSessionBusy
	}
}

// GetOrCreate returns a copy of the session, hydrating the cache from the
// store on first access.
func (m *Manager) GetOrCreate(sessionID string) *Session {
	m.mu.Lock()
	if s, ok := m.cache[sessionID]; ok {
		out := s.Clone()
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	var loaded *Session
	if m.store != nil {
		s, err := m.store.Load(sessionID)
		if err != nil {
			slog.Warn("session store: load failed", "session_id", sessionID, "error", err)
		}
		loaded = s
	}
	if loaded == nil {
		loaded = &Session{SessionID: sessionID}
	}

	m.mu.Lock()
	m.cache[sessionID] = loaded
	out := loaded.Clone()
	m.mu.Unlock()
	return out
}

// AppendToHistory appends messages to the session history and writes through
// to the store.
func (m *Manager) AppendToHistory(sessionID string, messages ...llms.Message) {
	m.mu.Lock()
	s, ok := m.cache[sessionID]
	if !ok {
		s = &Session{SessionID: sessionID}
	}
	s.SessionID = sessionID
	s.History = append(s.History, messages...)
	m.cache[sessionID] = s
	snapshot := s.Clone()
	m.mu.Unlock()

	m.saveToStore(snapshot)
}

// AppendTurn records a completed turn and writes through to the store.
func (m *Manager) AppendTurn(sessionID string, turn TurnRecord) {
	m.mu.Lock()
	s, ok := m.cache[sessionID]
	if !ok {
		s = &Session{SessionID: sessionID}
	}
	s.SessionID = sessionID
	s.Turns = append(s.Turns, turn)
	m.cache[sessionID] = s
	snapshot := s.Clone()
	m.mu.Unlock()

	m.saveToStore(snapshot)
}

func (m *Manager) saveToStore(s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(s); err != nil {
		slog.Warn("session store: save failed", "session_id", s.SessionID, "error", err)
	}
}
