// Package sounddevice implements the host sound-server binding the audio
// engine depends on (see internal/audioengine.SoundDevice): a concrete
// PortAudio-backed Device, plus the "null sink for tests" and "file-writing
// sink for offline analysis" variants the design notes call for.
//
// PortAudio has no true pull-callback API exposed through the Go binding
// (github.com/gordonklaus/portaudio only exposes the blocking Read/Write
// form), so Device drives its own poll-loop goroutine in the same style as
// the reference client's captureLoop/playbackLoop: block on Write, which
// the PortAudio host stream paces to the device's real clock.
package sounddevice

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PullSource is the capability the device needs from whatever is feeding it
// playback frames — satisfied directly by *audioengine.Engine. Declaring it
// here instead of importing audioengine keeps this package free to be used
// without the engine (e.g. wrapped by OpusCaptureTap, or driven directly in
// tests).
type PullSource interface {
	Pull(dst []float32, maxFrames int) int
}

// paStream abstracts a PortAudio stream for testing, mirroring the
// reference client's paStream interface.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

// Device is a PortAudio-backed implementation of audioengine.SoundDevice.
// The zero value is not usable; construct one with New.
type Device struct {
	mu sync.Mutex

	source PullSource

	channels   int
	sampleRate int
	period     int

	playStream paStream
	playBuf    []float32
	volume     []float32
	muted      atomic.Bool

	recStream   paStream
	recBuf      []float32
	recChannels int
	recVolume   []float32
	recMuted    atomic.Bool

	stopCh   chan struct{}
	wg       sync.WaitGroup
	latency  atomic.Int64 // frames, set from the stream's reported output latency
	draining atomic.Bool
}

// New returns a Device with no source wired in yet. Call SetSource before
// Start so the playback poll loop has something to pull frames from — by
// convention the orchestrator does this right after constructing the
// audioengine.Engine that owns this Device:
//
//	dev := sounddevice.New()
//	eng := audioengine.New(dev, sink)
//	dev.SetSource(eng)
func New() *Device {
	return &Device{}
}

// SetSource wires the PullSource the playback poll loop pulls frames from.
// Must be called before Start.
func (d *Device) SetSource(src PullSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = src
}

// Setup opens (but does not start) a PortAudio output stream for channels at
// sampleRate, requesting requestedPeriodFrames per buffer, per
// audioengine.SoundDevice.
func (d *Device) Setup(sinkHint string, channels, sampleRate, requestedPeriodFrames int) (maxPeriodFrames, startFrames int, err error) {
	if err := portaudio.Initialize(); err != nil {
		return 0, 0, fmt.Errorf("sounddevice: initialize: %w", err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return 0, 0, fmt.Errorf("sounddevice: list devices: %w", err)
	}
	outDev, err := resolveSink(devices, sinkHint)
	if err != nil {
		return 0, 0, fmt.Errorf("sounddevice: resolve sink %q: %w", sinkHint, err)
	}

	buf := make([]float32, requestedPeriodFrames*channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: channels,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: requestedPeriodFrames,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return 0, 0, fmt.Errorf("sounddevice: open output stream: %w", err)
	}

	d.mu.Lock()
	d.channels = channels
	d.sampleRate = sampleRate
	d.period = requestedPeriodFrames
	d.playStream = stream
	d.playBuf = buf
	d.volume = unityGains(channels)
	d.mu.Unlock()

	maxPeriodFrames = requestedPeriodFrames
	startFrames = 2 * maxPeriodFrames
	d.latency.Store(int64(startFrames))
	return maxPeriodFrames, startFrames, nil
}

// Start begins the playback poll loop.
func (d *Device) Start() error {
	d.mu.Lock()
	stream := d.playStream
	d.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("sounddevice: Start called before Setup")
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("sounddevice: start output stream: %w", err)
	}

	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.playLoop()
	return nil
}

// Stop halts the playback poll loop and closes the stream. onDrained, if
// non-nil, is invoked once the stream has been closed.
//
// Sequence matters here, as in the reference client's AudioEngine.Stop:
// Pa_StopStream unblocks any in-flight Write call, so the poll goroutine
// must be allowed to exit before the stream is closed underneath it.
func (d *Device) Stop(onDrained func()) error {
	d.mu.Lock()
	stream := d.playStream
	d.mu.Unlock()
	if stream == nil {
		if onDrained != nil {
			onDrained()
		}
		return nil
	}

	d.draining.Store(true)
	if d.stopCh != nil {
		close(d.stopCh)
	}
	if err := stream.Stop(); err != nil {
		log.Printf("[sounddevice] stop output stream: %v", err)
	}
	d.wg.Wait()

	d.mu.Lock()
	err := stream.Close()
	d.playStream = nil
	d.mu.Unlock()
	d.draining.Store(false)

	if onDrained != nil {
		onDrained()
	}
	if err != nil {
		return fmt.Errorf("sounddevice: close output stream: %w", err)
	}
	return nil
}

// playLoop pulls frames from the wired PullSource and writes them to the
// PortAudio output stream until Stop closes stopCh.
func (d *Device) playLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.mu.Lock()
		src, buf, stream, channels := d.source, d.playBuf, d.playStream, d.channels
		d.mu.Unlock()
		if src == nil || stream == nil {
			return
		}

		n := src.Pull(buf, len(buf)/channels)
		d.applyGain(buf[:n*channels])

		if err := stream.Write(); err != nil {
			if !d.draining.Load() {
				log.Printf("[sounddevice] write: %v", err)
			}
			return
		}
	}
}

// Pull satisfies audioengine.SoundDevice's capability-set symmetry (see
// design notes §9's "{setup, start, stop, pull, latency, volume, mute}"):
// it forwards directly to the wired source. The real playback poll loop
// above also pulls this way (through the source, not through this method)
// since it already holds the source reference; Pull exists so a decorator
// like OpusCaptureTap — or a test — can sit in front of the device without
// reaching into its internals.
func (d *Device) Pull(dst []float32, maxFrames int) int {
	d.mu.Lock()
	src := d.source
	d.mu.Unlock()
	if src == nil {
		return 0
	}
	n := src.Pull(dst, maxFrames)
	d.applyGain(dst[:n*d.channels])
	return n
}

func (d *Device) applyGain(buf []float32) {
	if d.muted.Load() {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	d.mu.Lock()
	gains := d.volume
	channels := d.channels
	d.mu.Unlock()
	if len(gains) == 0 {
		return
	}
	for i := range buf {
		buf[i] *= gains[i%channels]
	}
}

// Latency returns the output stream's configured startup latency in frames.
// PortAudio's blocking API doesn't expose a live fill-level query, so this
// reports the static figure computed at Setup, matching the "may return 0
// if unknown" allowance in spec.md §6.
func (d *Device) Latency() int {
	return int(d.latency.Load())
}

// SetVolume applies linear per-channel playback gains.
func (d *Device) SetVolume(linearGains []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(linearGains) == 0 {
		return
	}
	d.volume = append([]float32(nil), linearGains...)
}

// SetMute mutes or unmutes playback output.
func (d *Device) SetMute(mute bool) {
	d.muted.Store(mute)
}

func resolveSink(devices []*portaudio.DeviceInfo, hint string) (*portaudio.DeviceInfo, error) {
	if hint != "" {
		for _, dev := range devices {
			if dev.Name == hint && dev.MaxOutputChannels > 0 {
				return dev, nil
			}
		}
	}
	return portaudio.DefaultOutputDevice()
}

func resolveSource(devices []*portaudio.DeviceInfo, hint string) (*portaudio.DeviceInfo, error) {
	if hint != "" {
		for _, dev := range devices {
			if dev.Name == hint && dev.MaxInputChannels > 0 {
				return dev, nil
			}
		}
	}
	return portaudio.DefaultInputDevice()
}

func unityGains(channels int) []float32 {
	g := make([]float32, channels)
	for i := range g {
		g[i] = 1
	}
	return g
}

// float32ToInt16 converts normalized [-1,1] float32 samples to signed 16-bit,
// clamping out-of-range values rather than wrapping.
func float32ToInt16(in []float32, out []int16) {
	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		v := in[i] * 32768.0
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
}
