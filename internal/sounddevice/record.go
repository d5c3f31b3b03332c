package sounddevice

import (
	"fmt"
	"log"

	"github.com/gordonklaus/portaudio"
)

// RecordStart opens a PortAudio input stream for the capture (record)
// path. Per spec.md §1, this path is a pass-through: the frames pulled from
// it here are never resampled or routed through the audio engine's ring
// buffer, so capture needs no poll loop of its own — the engine's record
// loop (internal/audioengine.Engine.recordLoop) calls RecordPull directly.
func (d *Device) RecordStart(sourceHint string, channels, sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recStream != nil {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("sounddevice: list devices: %w", err)
	}
	inDev, err := resolveSource(devices, sourceHint)
	if err != nil {
		return fmt.Errorf("sounddevice: resolve source %q: %w", sourceHint, err)
	}

	const capturePeriod = 480 // 10ms @ 48kHz; matches audioengine.recordPullFrames order of magnitude
	buf := make([]float32, capturePeriod*channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: channels,
			Latency:  inDev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: capturePeriod,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("sounddevice: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("sounddevice: start input stream: %w", err)
	}

	d.recStream = stream
	d.recBuf = buf
	d.recChannels = channels
	d.recVolume = unityGains(channels)
	return nil
}

// RecordStop closes the capture stream. Idempotent.
func (d *Device) RecordStop() error {
	d.mu.Lock()
	stream := d.recStream
	d.recStream = nil
	d.mu.Unlock()
	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		log.Printf("[sounddevice] stop input stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("sounddevice: close input stream: %w", err)
	}
	return nil
}

// RecordPull blocks for one period's worth of captured audio and copies up
// to maxFrames frames of it, converted to signed 16-bit, into dst.
func (d *Device) RecordPull(dst []int16, maxFrames int) int {
	d.mu.Lock()
	stream, buf, channels, gains, muted := d.recStream, d.recBuf, d.recChannels, d.recVolume, d.recMuted.Load()
	d.mu.Unlock()
	if stream == nil {
		return 0
	}

	if err := stream.Read(); err != nil {
		log.Printf("[sounddevice] read: %v", err)
		return 0
	}

	frames := len(buf) / channels
	if frames > maxFrames {
		frames = maxFrames
	}
	samples := frames * channels

	if muted {
		for i := 0; i < samples; i++ {
			dst[i] = 0
		}
		return frames
	}
	if len(gains) == channels {
		for i := 0; i < samples; i++ {
			buf[i] *= gains[i%channels]
		}
	}
	float32ToInt16(buf[:samples], dst[:samples])
	return frames
}

// RecordSetVolume applies linear per-channel capture gains.
func (d *Device) RecordSetVolume(linearGains []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(linearGains) == 0 {
		return
	}
	d.recVolume = append([]float32(nil), linearGains...)
}

// RecordSetMute mutes or unmutes the capture path.
func (d *Device) RecordSetMute(mute bool) {
	d.recMuted.Store(mute)
}
