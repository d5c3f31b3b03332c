package sounddevice

import "sync/atomic"

// NullDevice is a SoundDevice that discards everything. It never touches
// real hardware, so it's suitable for audioengine tests and for running the
// engine standalone without a sound card. Pull is driven manually by the
// test (or not at all): unlike Device, NullDevice does not spin up its own
// poll goroutine in Start.
type NullDevice struct {
	channels   int
	sampleRate int
	period     int

	muted    atomic.Bool
	recMuted atomic.Bool
}

// NewNull returns a ready-to-use NullDevice.
func NewNull() *NullDevice {
	return &NullDevice{}
}

func (d *NullDevice) Setup(sinkHint string, channels, sampleRate, requestedPeriodFrames int) (maxPeriodFrames, startFrames int, err error) {
	d.channels = channels
	d.sampleRate = sampleRate
	d.period = requestedPeriodFrames
	return requestedPeriodFrames, 2 * requestedPeriodFrames, nil
}

func (d *NullDevice) Start() error { return nil }

func (d *NullDevice) Stop(onDrained func()) error {
	if onDrained != nil {
		onDrained()
	}
	return nil
}

// Pull writes silence; a NullDevice has nothing else to offer. Tests that
// need to observe what an engine produced should call Engine.Pull directly
// instead of going through this device.
func (d *NullDevice) Pull(dst []float32, maxFrames int) int {
	for i := range dst[:maxFrames*max(d.channels, 1)] {
		dst[i] = 0
	}
	return maxFrames
}

func (d *NullDevice) Latency() int { return 0 }

func (d *NullDevice) SetVolume(linearGains []float32) {}

func (d *NullDevice) SetMute(mute bool) { d.muted.Store(mute) }

func (d *NullDevice) RecordStart(sourceHint string, channels, sampleRate int) error { return nil }

func (d *NullDevice) RecordStop() error { return nil }

func (d *NullDevice) RecordPull(dst []int16, maxFrames int) int {
	for i := range dst[:maxFrames*max(d.channels, 1)] {
		dst[i] = 0
	}
	return maxFrames
}

func (d *NullDevice) RecordSetVolume(linearGains []float32) {}

func (d *NullDevice) RecordSetMute(mute bool) { d.recMuted.Store(mute) }
