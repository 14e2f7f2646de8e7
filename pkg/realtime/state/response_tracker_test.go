package state

import (
	"testing"
)

func TestResponseTracker_BeginCreate(t *testing.T) {
	tracker := NewResponseTracker()

	if err := tracker.BeginCreate(); err != nil {
		t.Fatalf("BeginCreate failed: %v", err)
	}

	if !tracker.InFlight() {
		t.Error("InFlight should return true after BeginCreate")
	}

	// A second create while one is pending must be rejected
	if err := tracker.BeginCreate(); err != ErrResponseActive {
		t.Errorf("expected ErrResponseActive, got %v", err)
	}
}

func TestResponseTracker_MarkCreated(t *testing.T) {
	tracker := NewResponseTracker()

	tracker.BeginCreate()
	tracker.MarkCreated("resp_abc123")

	snap := tracker.GetSnapshot()
	if snap.ActiveResponseID != "resp_abc123" {
		t.Errorf("ActiveResponseID mismatch: got %s", snap.ActiveResponseID)
	}
	if snap.PendingCreate {
		t.Error("PendingCreate should be false after MarkCreated")
	}
	if !snap.HasActive {
		t.Error("HasActive should be true after MarkCreated")
	}

	// Still rejects a new create while the response is active
	if err := tracker.BeginCreate(); err != ErrResponseActive {
		t.Errorf("expected ErrResponseActive, got %v", err)
	}
}

func TestResponseTracker_MarkCreatedWithoutLocalCreate(t *testing.T) {
	// The server may create a response on its own (server VAD); the tracker
	// must block local creates until it finishes.
	tracker := NewResponseTracker()

	tracker.MarkCreated("resp_r1")

	if err := tracker.BeginCreate(); err != ErrResponseActive {
		t.Errorf("expected ErrResponseActive, got %v", err)
	}

	tracker.Clear()

	if err := tracker.BeginCreate(); err != nil {
		t.Fatalf("BeginCreate after Clear failed: %v", err)
	}
}

func TestResponseTracker_Clear(t *testing.T) {
	tracker := NewResponseTracker()

	tracker.BeginCreate()
	tracker.MarkCreated("resp_abc123")
	tracker.Clear()

	snap := tracker.GetSnapshot()
	if snap.ActiveResponseID != "" || snap.PendingCreate || snap.HasActive {
		t.Errorf("Clear should reset all fields, got %+v", snap)
	}

	if tracker.InFlight() {
		t.Error("InFlight should return false after Clear")
	}
}

func TestResponseTracker_AbortCreate(t *testing.T) {
	tracker := NewResponseTracker()

	tracker.BeginCreate()
	tracker.AbortCreate()

	if tracker.InFlight() {
		t.Error("InFlight should return false after AbortCreate")
	}

	// AbortCreate must not release a slot that reached response.created
	tracker.BeginCreate()
	tracker.MarkCreated("resp_x")
	tracker.AbortCreate()

	if !tracker.InFlight() {
		t.Error("AbortCreate must not clear an acknowledged response")
	}
}

func TestResponseTracker_ReconcileActive(t *testing.T) {
	tracker := NewResponseTracker()

	tracker.ReconcileActive()

	if !tracker.InFlight() {
		t.Error("InFlight should return true after ReconcileActive")
	}
	if err := tracker.BeginCreate(); err != ErrResponseActive {
		t.Errorf("expected ErrResponseActive, got %v", err)
	}
}

func TestFlightState_String(t *testing.T) {
	tests := []struct {
		state    FlightState
		expected string
	}{
		{FlightStateIdle, "idle"},
		{FlightStatePending, "pending"},
		{FlightStateActive, "active"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("FlightState.String() = %s, want %s", got, tt.expected)
		}
	}
}

func TestResponseTracker_StateProgression(t *testing.T) {
	tracker := NewResponseTracker()

	if tracker.State() != FlightStateIdle {
		t.Errorf("expected idle, got %v", tracker.State())
	}

	tracker.BeginCreate()
	if tracker.State() != FlightStatePending {
		t.Errorf("expected pending, got %v", tracker.State())
	}

	tracker.MarkCreated("resp_1")
	if tracker.State() != FlightStateActive {
		t.Errorf("expected active, got %v", tracker.State())
	}
	if tracker.ActiveResponseID() != "resp_1" {
		t.Errorf("ActiveResponseID mismatch: got %s", tracker.ActiveResponseID())
	}

	tracker.Clear()
	if tracker.State() != FlightStateIdle {
		t.Errorf("expected idle after Clear, got %v", tracker.State())
	}
}
