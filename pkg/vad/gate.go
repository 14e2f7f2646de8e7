// Package vad implements the adaptive energy gate that decides, frame by
// frame, whether captured audio is forwarded upstream and whether sustained
// user speech during assistant playback should trigger a barge-in
// cancellation.
//
// A fixed-threshold gate misfires on echo from the assistant's own speech.
// The gate instead tracks an exponentially-decayed noise floor (updated only
// while playback is idle, so echo never contaminates it), applies a stricter
// threshold while the assistant is speaking, and requires speech to be
// sustained before treating it as a deliberate interruption.
package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Decision is the outcome for one captured frame.
type Decision struct {
	// Forward indicates the frame should be enqueued upstream.
	Forward bool
	// BargeIn indicates sustained user speech during playback; the caller
	// should request cancellation of the active response.
	BargeIn bool
	// Energy is the frame RMS, exposed for logging.
	Energy float64
}

// GateConfig holds the gate tuning parameters.
type GateConfig struct {
	// NoiseFloorInit seeds the noise floor estimate.
	NoiseFloorInit float64
	// NoiseAlpha is the EMA weight of the newest frame in the floor update.
	NoiseAlpha float64
	// GateMultiplier scales the noise floor into the base gate.
	GateMultiplier float64
	// GateMin is the base gate lower bound.
	GateMin float64
	// StrictMultiplier scales the base gate while playback is active.
	StrictMultiplier float64
	// StrictGateMin is the strict gate lower bound.
	StrictGateMin float64
	// GraceWindow drops all capture for this long after the last playback
	// bytes were received, to avoid reacting to trailing echo.
	GraceWindow time.Duration
	// SpeechSustain is how long speech must persist above the strict gate
	// before it counts as a barge-in.
	SpeechSustain time.Duration
	// CancelCooldown is the minimum interval between barge-in cancellations.
	CancelCooldown time.Duration
	// HalfDuplexStrict drops every frame while playback is active,
	// disabling barge-in entirely.
	HalfDuplexStrict bool
}

// DefaultGateConfig returns the default tuning.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		NoiseFloorInit:   200,
		NoiseAlpha:       0.05,
		GateMultiplier:   3.0,
		GateMin:          500,
		StrictMultiplier: 3.0,
		StrictGateMin:    2000,
		GraceWindow:      1200 * time.Millisecond,
		SpeechSustain:    750 * time.Millisecond,
		CancelCooldown:   600 * time.Millisecond,
	}
}

// IsValid validates the gate configuration.
func (c GateConfig) IsValid() error {
	if c.NoiseAlpha <= 0 || c.NoiseAlpha > 1 {
		return fmt.Errorf("invalid NoiseAlpha: must be in (0, 1]")
	}
	if c.GateMultiplier < 1 || c.StrictMultiplier < 1 {
		return fmt.Errorf("invalid multiplier: must be >= 1")
	}
	if c.GateMin < 0 || c.StrictGateMin < 0 {
		return fmt.Errorf("invalid gate minimum: must be >= 0")
	}
	if c.SpeechSustain <= 0 {
		return fmt.Errorf("invalid SpeechSustain: must be > 0")
	}
	if c.CancelCooldown < 0 || c.GraceWindow < 0 {
		return fmt.Errorf("invalid duration: must be >= 0")
	}
	return nil
}

// Gate holds the adaptive state. The caller supplies time and playback
// backlog explicitly, which keeps the frame logic deterministic.
type Gate struct {
	cfg GateConfig

	mu           sync.Mutex
	noiseRMS     float64
	speechSince  time.Time
	lastCancelAt time.Time
	swallowUntil time.Time
}

// NewGate creates a gate with the given configuration.
func NewGate(cfg GateConfig) (*Gate, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Gate{
		cfg:      cfg,
		noiseRMS: cfg.NoiseFloorInit,
	}, nil
}

// FrameEnergy computes the RMS of 16-bit little-endian PCM samples.
func FrameEnergy(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(frame[2*i]) | int16(frame[2*i+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// Process evaluates one captured frame. backlogMs is the playback buffer
// depth; lastPlaybackAt is when playback bytes last arrived (zero if never).
func (g *Gate) Process(frame []byte, now time.Time, backlogMs int, lastPlaybackAt time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	energy := FrameEnergy(frame)
	d := Decision{Energy: energy}

	if now.Before(g.swallowUntil) {
		g.speechSince = time.Time{}
		return d
	}

	if backlogMs <= 0 {
		// Assistant idle: adapt the floor and forward everything; the
		// remote endpoint does its own endpointing.
		g.noiseRMS = (1-g.cfg.NoiseAlpha)*g.noiseRMS + g.cfg.NoiseAlpha*energy
		g.speechSince = time.Time{}
		d.Forward = true
		return d
	}

	// Assistant is speaking.
	if g.cfg.HalfDuplexStrict {
		g.speechSince = time.Time{}
		return d
	}

	if !lastPlaybackAt.IsZero() && now.Sub(lastPlaybackAt) < g.cfg.GraceWindow {
		g.speechSince = time.Time{}
		return d
	}

	gate := math.Max(g.cfg.GateMin, g.noiseRMS*g.cfg.GateMultiplier)
	strict := math.Max(gate*g.cfg.StrictMultiplier, g.cfg.StrictGateMin)

	if energy < strict {
		// Likely echo.
		g.speechSince = time.Time{}
		return d
	}

	if g.speechSince.IsZero() {
		g.speechSince = now
	}
	if now.Sub(g.speechSince) >= g.cfg.SpeechSustain && now.Sub(g.lastCancelAt) >= g.cfg.CancelCooldown {
		g.lastCancelAt = now
		g.speechSince = time.Time{}
		d.BargeIn = true
	}
	return d
}

// SwallowUntil drops all capture until t. Used after a manual cancel so the
// tail of the user's interruption is not immediately re-forwarded.
func (g *Gate) SwallowUntil(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.After(g.swallowUntil) {
		g.swallowUntil = t
	}
}

// NoiseFloor returns the current noise floor estimate.
func (g *Gate) NoiseFloor() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.noiseRMS
}
