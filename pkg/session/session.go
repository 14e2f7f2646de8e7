// Package session holds the in-memory state of one visit conversation:
// identity, lifecycle status, the append-only turn list, the cached patient
// snapshot, and the free-text working notes. Sessions are volatile and die
// with the process.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Status is the session lifecycle state. Transitions are monotonic:
// collecting -> finalized -> saved.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusFinalized  Status = "finalized"
	StatusSaved      Status = "saved"
)

// TurnRole identifies the speaker of a turn.
type TurnRole string

const (
	RoleDoctor    TurnRole = "doctor"
	RoleAssistant TurnRole = "assistant"
	RolePatient   TurnRole = "patient"
)

// Modality records how a turn entered the conversation.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
)

// Errors for session operations.
var (
	ErrEmptyContent  = errors.New("turn content must not be empty")
	ErrBadTransition = errors.New("invalid status transition")
)

// Turn is one attributed utterance. Turns are append-only and never mutated.
type Turn struct {
	Role     TurnRole  `json:"role"`
	Content  string    `json:"content"`
	Modality Modality  `json:"modality"`
	At       time.Time `json:"at"`
}

// Session is one active visit conversation.
type Session struct {
	ID        string
	PatientID int
	DoctorID  string
	Locale    string
	Consent   bool
	StartedAt time.Time

	mu           sync.RWMutex
	status       Status
	turns        []Turn
	snapshot     map[string]any
	workingNotes string

	lastIntent     string
	lastConfidence float64
}

func newSession(id string, patientID int, doctorID, locale string, consent bool, snapshot map[string]any) *Session {
	if locale == "" {
		locale = "en"
	}
	return &Session{
		ID:        id,
		PatientID: patientID,
		DoctorID:  doctorID,
		Locale:    locale,
		Consent:   consent,
		StartedAt: time.Now(),
		status:    StatusCollecting,
		snapshot:  snapshot,
	}
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// MarkFinalized transitions collecting -> finalized.
func (s *Session) MarkFinalized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusCollecting {
		return ErrBadTransition
	}
	s.status = StatusFinalized
	return nil
}

// MarkSaved transitions finalized -> saved.
func (s *Session) MarkSaved() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusFinalized {
		return ErrBadTransition
	}
	s.status = StatusSaved
	return nil
}

// AddDoctorTurn appends a doctor utterance. Empty content is rejected before
// any state mutation.
func (s *Session) AddDoctorTurn(content string, modality Modality) error {
	return s.addTurn(RoleDoctor, content, modality)
}

// AddAssistantTurn appends an assistant reply.
func (s *Session) AddAssistantTurn(content string, modality Modality) error {
	return s.addTurn(RoleAssistant, content, modality)
}

// AddPatientTurn appends a patient utterance.
func (s *Session) AddPatientTurn(content string, modality Modality) error {
	return s.addTurn(RolePatient, content, modality)
}

func (s *Session) addTurn(role TurnRole, content string, modality Modality) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	if modality == "" {
		modality = ModalityText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{
		Role:     role,
		Content:  content,
		Modality: modality,
		At:       time.Now(),
	})
	return nil
}

// Turns returns a copy of the turn list.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastTurns returns a copy of the most recent n turns.
func (s *Session) LastTurns(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// TurnCount returns the number of turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Snapshot returns the cached patient snapshot.
func (s *Session) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetSnapshot replaces the cached patient snapshot.
func (s *Session) SetSnapshot(snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}

// SetAssistantState records the assistant's last reported intent and
// confidence.
func (s *Session) SetAssistantState(intent string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIntent = intent
	s.lastConfidence = confidence
}

// AssistantState returns the last reported intent and confidence.
func (s *Session) AssistantState() (intent string, confidence float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIntent, s.lastConfidence
}
