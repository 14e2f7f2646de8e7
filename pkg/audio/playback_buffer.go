// Package audio provides hardware-facing capture and playback with
// backpressure-safe buffering.
package audio

import (
	"log"
	"sync"
)

const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	BytesPerSample    = 2 // 16-bit PCM
	FrameDurationMs   = 20
	DefaultPrerollMs  = 120
)

// PlaybackBufferConfig configures the playback buffer.
type PlaybackBufferConfig struct {
	SampleRate int
	Channels   int
	PrerollMs  int
}

// DefaultPlaybackBufferConfig returns the default configuration.
func DefaultPlaybackBufferConfig() PlaybackBufferConfig {
	return PlaybackBufferConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		PrerollMs:  DefaultPrerollMs,
	}
}

// PlaybackBuffer is the single mutex-protected byte buffer between remote
// audio deltas and the hardware output callback. Until the pre-roll
// threshold is buffered it emits silence instead of starting playback;
// underruns pad with silence rather than blocking the callback.
type PlaybackBuffer struct {
	mu     sync.Mutex
	buf    []byte
	primed bool

	prerollBytes int
	bytesPerMs   int
}

// NewPlaybackBuffer creates a playback buffer.
func NewPlaybackBuffer(cfg PlaybackBufferConfig) *PlaybackBuffer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.PrerollMs < 0 {
		cfg.PrerollMs = DefaultPrerollMs
	}

	bytesPerMs := cfg.SampleRate * cfg.Channels * BytesPerSample / 1000

	return &PlaybackBuffer{
		buf:          make([]byte, 0, bytesPerMs*2000),
		prerollBytes: bytesPerMs * cfg.PrerollMs,
		bytesPerMs:   bytesPerMs,
	}
}

// Write appends decoded PCM bytes from a remote audio delta.
func (pb *PlaybackBuffer) Write(data []byte) {
	if len(data) == 0 {
		return
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.buf = append(pb.buf, data...)
}

// ReadInto fills dst with exactly len(dst) bytes for one callback period.
// During pre-roll, and on underrun past the buffered bytes, the remainder
// is silence.
func (pb *PlaybackBuffer) ReadInto(dst []byte) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if !pb.primed {
		if len(pb.buf) < pb.prerollBytes {
			zero(dst)
			return
		}
		pb.primed = true
	}

	n := copy(dst, pb.buf)
	if n < len(dst) {
		zero(dst[n:])
	}
	pb.buf = pb.buf[n:]
}

// BacklogMs reports the buffered duration. This is the only cross-component
// read of the buffer's state and shares the lock with all mutations.
func (pb *PlaybackBuffer) BacklogMs() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return len(pb.buf) / pb.bytesPerMs
}

// Clear drops all buffered audio and re-arms the pre-roll. Called when a new
// response begins so stale audio from a cancelled response cannot leak into
// the next one.
func (pb *PlaybackBuffer) Clear() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if len(pb.buf) > 0 {
		log.Printf("[PlaybackBuffer] clearing %d buffered bytes", len(pb.buf))
	}
	pb.buf = pb.buf[:0]
	pb.primed = false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
