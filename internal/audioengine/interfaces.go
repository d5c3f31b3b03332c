package audioengine

// SoundDevice is the capability set the engine needs from the host
// sound-server binding. It is intentionally narrow: setup, start/stop,
// pull, latency query, and volume/mute. Variants are expected: a real
// binding (see internal/sounddevice.Device), a null sink for
// tests, and a file-writing sink for offline analysis. The engine depends
// only on this interface, never on a concrete binding.
type SoundDevice interface {
	// Setup opens the device for playback with the given channel count and
	// sample rate, requesting requestedPeriodFrames per callback. sinkHint
	// optionally names a specific sink; an empty string means "default".
	// It returns the device's actual maximum period size and its startup
	// latency in frames (by convention startFrames = 2*maxPeriodFrames, but
	// the binding is free to report something else).
	Setup(sinkHint string, channels, sampleRate, requestedPeriodFrames int) (maxPeriodFrames, startFrames int, err error)

	// Start begins pulling audio. Pull will not be called before Start
	// returns.
	Start() error

	// Stop drains and closes the device. onDrained, if non-nil, is invoked
	// once the drain completes (which may be asynchronous); the engine does
	// not wait on it.
	Stop(onDrained func()) error

	// Pull copies up to maxFrames interleaved float32 frames into dst and
	// returns the number of frames actually written.
	Pull(dst []float32, maxFrames int) int

	// Latency returns the device's current output latency in frames, or 0
	// if unknown.
	Latency() int

	// SetVolume applies linear per-channel gains (already converted from
	// the logarithmic wire scale).
	SetVolume(linearGains []float32)

	// SetMute mutes or unmutes the device output.
	SetMute(mute bool)

	// RecordStart opens the device for capture. sourceHint optionally names
	// a specific source; empty means "default".
	RecordStart(sourceHint string, channels, sampleRate int) error

	// RecordStop closes the capture side.
	RecordStop() error

	// RecordPull copies up to maxFrames interleaved signed 16-bit frames
	// into dst and returns the number of frames actually written. The
	// record path is a pass-through: no resampling happens on this data.
	RecordPull(dst []int16, maxFrames int) int

	// RecordSetVolume and RecordSetMute mirror SetVolume/SetMute for the
	// capture side.
	RecordSetVolume(linearGains []float32)
	RecordSetMute(mute bool)
}

// GuestRecordSink receives captured microphone audio for delivery to the
// guest over whatever transport the virtualization protocol client owns.
// The core never parses or frames this data itself — it hands over raw
// tightly-packed signed 16-bit PCM, exactly as read from the SoundDevice.
type GuestRecordSink interface {
	WriteRecordedAudio(pcm []byte)
}
