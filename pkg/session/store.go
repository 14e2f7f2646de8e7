package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Store is the explicit session registry. It replaces any ambient global
// state: every operation that touches a session goes through a Store passed
// by reference.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session and returns it.
func (st *Store) Create(patientID int, doctorID, locale string, consent bool, snapshot map[string]any) *Session {
	id := "sess_" + uuid.New().String()[:12]
	s := newSession(id, patientID, doctorID, locale, consent, snapshot)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[id] = s
	return s
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session from the registry.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of registered sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
