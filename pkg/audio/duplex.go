package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// DuplexConfig configures the capture and playback devices.
type DuplexConfig struct {
	SampleRate int
	Channels   int
	PeriodMs   int
}

// DefaultDuplexConfig returns the default device configuration.
func DefaultDuplexConfig() DuplexConfig {
	return DuplexConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		PeriodMs:   FrameDurationMs,
	}
}

// CaptureSink receives one copied frame per capture callback. The callback
// runs on an OS audio thread; the sink must hand off quickly and must not
// block.
type CaptureSink func(frame []byte)

// Duplex owns the microphone and speaker devices. Capture frames are copied
// and handed to the registered sink; playback pulls from a PlaybackBuffer.
type Duplex struct {
	cfg      DuplexConfig
	playback *PlaybackBuffer

	audioContext   *malgo.AllocatedContext
	captureDevice  *malgo.Device
	playbackDevice *malgo.Device

	mu      sync.Mutex
	sink    CaptureSink
	started bool
}

// NewDuplex initializes the audio backend. The playback buffer is owned by
// the caller so it can be cleared on response boundaries.
func NewDuplex(cfg DuplexConfig, playback *PlaybackBuffer) (*Duplex, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = FrameDurationMs
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %v", err)
	}

	return &Duplex{
		cfg:          cfg,
		playback:     playback,
		audioContext: ctx,
	}, nil
}

// SetCaptureSink registers the frame sink. Must be called before Start.
func (d *Duplex) SetCaptureSink(sink CaptureSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// Start opens and starts both devices. Idempotent.
func (d *Duplex) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	if err := d.startCapture(); err != nil {
		return err
	}
	if err := d.startPlayback(); err != nil {
		d.stopCaptureLocked()
		return err
	}

	d.started = true
	return nil
}

func (d *Duplex) startCapture() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(d.cfg.PeriodMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(d.cfg.Channels)
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var err error
	d.captureDevice, err = malgo.InitDevice(d.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			sink := d.sink
			if sink == nil {
				return
			}
			// inputSamples is reused by the backend after the callback returns
			frame := make([]byte, len(inputSamples))
			copy(frame, inputSamples)
			sink(frame)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %v", err)
	}

	if err := d.captureDevice.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %v", err)
	}
	return nil
}

func (d *Duplex) startPlayback() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.PeriodSizeInMilliseconds = uint32(d.cfg.PeriodMs)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(d.cfg.Channels)
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var err error
	d.playbackDevice, err = malgo.InitDevice(d.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			d.playback.ReadInto(outputSamples)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %v", err)
	}

	if err := d.playbackDevice.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %v", err)
	}
	return nil
}

func (d *Duplex) stopCaptureLocked() {
	if d.captureDevice != nil {
		d.captureDevice.Stop()
		d.captureDevice.Uninit()
		d.captureDevice = nil
	}
}

func (d *Duplex) stopPlaybackLocked() {
	if d.playbackDevice != nil {
		d.playbackDevice.Stop()
		d.playbackDevice.Uninit()
		d.playbackDevice = nil
	}
}

// Stop stops both devices. Idempotent.
func (d *Duplex) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}
	d.stopCaptureLocked()
	d.stopPlaybackLocked()
	d.started = false
}

// Close stops the devices and releases the audio context.
func (d *Duplex) Close() error {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.audioContext != nil {
		d.audioContext.Uninit()
		d.audioContext = nil
	}
	return nil
}
