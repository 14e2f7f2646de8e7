package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmFrame builds a 20ms 24kHz mono frame whose RMS is close to amplitude.
func pcmFrame(amplitude int16) []byte {
	const samples = 480
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(amplitude))
	}
	return frame
}

func TestGateConfigIsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GateConfig)
		wantErr bool
	}{
		{"default", func(c *GateConfig) {}, false},
		{"zero alpha", func(c *GateConfig) { c.NoiseAlpha = 0 }, true},
		{"alpha above one", func(c *GateConfig) { c.NoiseAlpha = 1.5 }, true},
		{"multiplier below one", func(c *GateConfig) { c.GateMultiplier = 0.5 }, true},
		{"negative gate min", func(c *GateConfig) { c.GateMin = -1 }, true},
		{"zero sustain", func(c *GateConfig) { c.SpeechSustain = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGateConfig()
			tt.mutate(&cfg)
			err := cfg.IsValid()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrameEnergy(t *testing.T) {
	assert.Equal(t, float64(0), FrameEnergy(nil))
	assert.InDelta(t, 1000, FrameEnergy(pcmFrame(1000)), 1)
}

func TestGate_ForwardsAllFramesWhenIdle(t *testing.T) {
	// 500 quiet frames at backlog 0 all pass: endpointing is the remote's job.
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	now := time.Now()
	frame := pcmFrame(100)
	for i := 0; i < 500; i++ {
		d := g.Process(frame, now.Add(time.Duration(i)*20*time.Millisecond), 0, time.Time{})
		require.True(t, d.Forward, "frame %d should be forwarded", i)
		require.False(t, d.BargeIn)
	}
}

func TestGate_NoiseFloorAdaptsOnlyWhenIdle(t *testing.T) {
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	now := time.Now()
	floor := g.NoiseFloor()

	// Loud frames during playback must not move the floor
	g.Process(pcmFrame(8000), now, 500, time.Time{})
	assert.Equal(t, floor, g.NoiseFloor())

	// Idle frames converge toward the observed energy
	for i := 0; i < 200; i++ {
		g.Process(pcmFrame(1000), now.Add(time.Duration(i)*20*time.Millisecond), 0, time.Time{})
	}
	assert.InDelta(t, 1000, g.NoiseFloor(), 50)
}

func TestGate_HalfDuplexDropsEverythingDuringPlayback(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.HalfDuplexStrict = true
	g, err := NewGate(cfg)
	require.NoError(t, err)

	now := time.Now()
	loud := pcmFrame(20000)
	for i := 0; i < 100; i++ {
		d := g.Process(loud, now.Add(time.Duration(i)*20*time.Millisecond), 500, time.Time{})
		require.False(t, d.Forward)
		require.False(t, d.BargeIn, "strict half-duplex never barges in")
	}
}

func TestGate_GraceWindowSuppressesEcho(t *testing.T) {
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	now := time.Now()
	// Loud frame right after playback bytes arrived: inside the grace window
	d := g.Process(pcmFrame(20000), now, 500, now.Add(-200*time.Millisecond))
	assert.False(t, d.Forward)
	assert.False(t, d.BargeIn)
}

func TestGate_SustainedSpeechTriggersBargeIn(t *testing.T) {
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	base := time.Now()
	lastPlayback := base.Add(-10 * time.Second) // well past the grace window
	loud := pcmFrame(20000)

	var bargeAt int = -1
	for i := 0; i < 60; i++ {
		now := base.Add(time.Duration(i) * 20 * time.Millisecond)
		d := g.Process(loud, now, 500, lastPlayback)
		assert.False(t, d.Forward, "half-duplex: frames during playback are never forwarded")
		if d.BargeIn {
			bargeAt = i
			break
		}
	}

	require.GreaterOrEqual(t, bargeAt, 0, "sustained loud speech must barge in")
	// 750ms sustain at 20ms frames is ~37 frames
	assert.InDelta(t, 37, bargeAt, 3)
}

func TestGate_QuietFramesResetSustain(t *testing.T) {
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	base := time.Now()
	lastPlayback := base.Add(-10 * time.Second)
	loud := pcmFrame(20000)
	quiet := pcmFrame(100)

	// Alternate loud and quiet: the sustain timer never accumulates
	for i := 0; i < 200; i++ {
		now := base.Add(time.Duration(i) * 20 * time.Millisecond)
		frame := loud
		if i%10 == 9 {
			frame = quiet
		}
		d := g.Process(frame, now, 500, lastPlayback)
		require.False(t, d.BargeIn, "interrupted speech must not barge in (frame %d)", i)
	}
}

func TestGate_CancelCooldown(t *testing.T) {
	cfg := DefaultGateConfig()
	g, err := NewGate(cfg)
	require.NoError(t, err)

	base := time.Now()
	lastPlayback := base.Add(-10 * time.Second)
	loud := pcmFrame(20000)

	cancels := 0
	var frames int
	for i := 0; i < 200; i++ {
		now := base.Add(time.Duration(i) * 20 * time.Millisecond)
		if g.Process(loud, now, 500, lastPlayback).BargeIn {
			cancels++
			if cancels == 2 {
				frames = i
				break
			}
		}
	}

	require.Equal(t, 2, cancels)
	// Second cancel needs another full sustain period; spacing must be at
	// least the sustain duration (and the cooldown, whichever is larger).
	minSpacing := int(math.Max(float64(cfg.SpeechSustain), float64(cfg.CancelCooldown)) / float64(20*time.Millisecond))
	assert.GreaterOrEqual(t, frames, 2*minSpacing-3)
}

func TestGate_SwallowUntilDropsFrames(t *testing.T) {
	g, err := NewGate(DefaultGateConfig())
	require.NoError(t, err)

	now := time.Now()
	g.SwallowUntil(now.Add(600 * time.Millisecond))

	d := g.Process(pcmFrame(20000), now, 0, time.Time{})
	assert.False(t, d.Forward)

	d = g.Process(pcmFrame(20000), now.Add(700*time.Millisecond), 0, time.Time{})
	assert.True(t, d.Forward)
}
