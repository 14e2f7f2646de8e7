// Package state enforces the client-side response lifecycle invariants the
// remote endpoint does not enforce itself.
package state

import (
	"errors"
	"sync"
	"time"
)

// FlightState represents where the tracked response is in its lifecycle.
type FlightState int

const (
	FlightStateIdle FlightState = iota
	FlightStatePending
	FlightStateActive
)

// String returns the string representation of FlightState.
func (s FlightState) String() string {
	switch s {
	case FlightStateIdle:
		return "idle"
	case FlightStatePending:
		return "pending"
	default:
		return "active"
	}
}

// Errors for response tracker operations.
var (
	ErrResponseActive = errors.New("response already in flight")
)

// Snapshot is a copy of the tracker's fields at one instant.
type Snapshot struct {
	ActiveResponseID string
	PendingCreate    bool
	HasActive        bool
	StartedAt        time.Time
}

// ResponseTracker guards the single-active-response invariant: at most one
// response may be in flight, where "in flight" means any of pending-create,
// has-active, or a non-empty active response id. The remote endpoint is
// authoritative on response existence, so state is cleared only on remote
// lifecycle events, never optimistically at cancel time.
type ResponseTracker struct {
	mu sync.RWMutex

	activeResponseID string
	pendingCreate    bool
	hasActive        bool
	startedAt        time.Time
}

// NewResponseTracker creates a new ResponseTracker.
func NewResponseTracker() *ResponseTracker {
	return &ResponseTracker{}
}

// BeginCreate reserves the in-flight slot ahead of sending a create request.
// It fails with ErrResponseActive while any in-flight indicator is set; the
// caller treats that as a silent no-op rather than an error condition.
// Pending and active are both set before the wire send so an inbound
// response.created racing the send cannot open a second slot.
func (rt *ResponseTracker) BeginCreate() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.hasActive || rt.pendingCreate || rt.activeResponseID != "" {
		return ErrResponseActive
	}

	rt.pendingCreate = true
	rt.hasActive = true
	rt.startedAt = time.Now()
	return nil
}

// AbortCreate releases the slot reserved by BeginCreate when the create
// request never reached the wire (send failure).
func (rt *ResponseTracker) AbortCreate() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pendingCreate && rt.activeResponseID == "" {
		rt.pendingCreate = false
		rt.hasActive = false
	}
}

// MarkCreated records the remote-assigned response id from response.created.
func (rt *ResponseTracker) MarkCreated(responseID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.activeResponseID = responseID
	rt.pendingCreate = false
	rt.hasActive = true
}

// ReconcileActive resynchronizes with a remote "active response in progress"
// error: the remote is confirming a response exists that local state lost
// track of.
func (rt *ResponseTracker) ReconcileActive() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.hasActive = true
}

// Clear resets all in-flight indicators. Called on every terminal lifecycle
// event (completed, canceled, failed, done) and on the benign stale-cancel
// error.
func (rt *ResponseTracker) Clear() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.activeResponseID = ""
	rt.pendingCreate = false
	rt.hasActive = false
}

// InFlight reports whether any in-flight indicator is set.
func (rt *ResponseTracker) InFlight() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.hasActive || rt.pendingCreate || rt.activeResponseID != ""
}

// ActiveResponseID returns the remote-assigned id, or "" if none.
func (rt *ResponseTracker) ActiveResponseID() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.activeResponseID
}

// State returns the coarse lifecycle position.
func (rt *ResponseTracker) State() FlightState {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	switch {
	case rt.activeResponseID != "":
		return FlightStateActive
	case rt.pendingCreate:
		return FlightStatePending
	case rt.hasActive:
		return FlightStateActive
	default:
		return FlightStateIdle
	}
}

// GetSnapshot returns a copy of the tracker's fields.
func (rt *ResponseTracker) GetSnapshot() Snapshot {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	return Snapshot{
		ActiveResponseID: rt.activeResponseID,
		PendingCreate:    rt.pendingCreate,
		HasActive:        rt.hasActive,
		StartedAt:        rt.startedAt,
	}
}
