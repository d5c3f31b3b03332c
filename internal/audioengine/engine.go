// Package audioengine implements the adaptive audio playback
// clock-synchronization engine: the guest-packet producer side, the host
// device consumer side, the latency controller that steers a resampler
// ratio between them, and the stream state machine that coordinates
// startup, steady-state, keep-alive, and teardown.
//
// Exactly two goroutines are meant to touch an Engine: one driven by the
// virtualization protocol client delivering guest packets (the "producer"
// methods: PlaybackData, PlaybackStart/Stop/Volume/Mute), and one driven by
// the host sound device's pull loop (Pull). See dllclock, ringbuffer,
// tickqueue, and resample for the pieces this wires together.
package audioengine

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/pgaskin/spicy-kvm/internal/dllclock"
	"github.com/pgaskin/spicy-kvm/internal/resample"
	"github.com/pgaskin/spicy-kvm/internal/ringbuffer"
	"github.com/pgaskin/spicy-kvm/internal/tickqueue"
)

const (
	defaultPeriodSize      = 256
	defaultBufferLatency   = 12 // ms
	maxChannels            = 8
	keepAliveStopSeconds   = 30
	largeErrorThresholdSec = 0.2
	resamplerWarmupFrames  = 20 // see DESIGN.md open question: magic constant
	controllerKP           = 0.5e-6
	controllerKI           = 1.0e-16
)

// devTimeUnset is the sentinel producerState.devLastTime (and, at
// construction, devNextTime) holds until two device ticks have been
// drained. Interpolating a device position needs two ticks to define a
// span; a single drained tick isn't enough, so the gate used throughout
// playback.go is "devLastTime != devTimeUnset", not "a tick has ever
// arrived". Mirrors the reference implementation's INT64_MIN sentinel.
const devTimeUnset = math.MinInt64

// LatencyReport is emitted after each producer cycle when a callback is
// configured.
type LatencyReport struct {
	CurrentOffsetMS float64
	DeviceLatencyMS float64
	TotalLatencyMS  float64
}

// Options configures an Engine. These are read at stream start (each
// PlaybackStart that sets up a new stream) and held constant for the life
// of the stream, per the configuration contract.
type Options struct {
	// PeriodSize is the requested device period in samples. Default 256.
	PeriodSize int
	// BufferLatencyMS is the extra configurable buffer latency. Zero means
	// no extra latency; a negative value selects the default of 12.
	BufferLatencyMS int
	// SinkHint and SourceHint optionally name a specific playback sink /
	// capture source; empty means "use the device's default".
	SinkHint   string
	SourceHint string
	// LatencyCallback, if non-nil, is invoked after each producer cycle
	// with the current latency breakdown.
	LatencyCallback func(LatencyReport)
}

func (o Options) periodSize() int {
	if o.PeriodSize > 0 {
		return o.PeriodSize
	}
	return defaultPeriodSize
}

func (o Options) bufferLatencyMS() int {
	if o.BufferLatencyMS >= 0 {
		return o.BufferLatencyMS
	}
	return defaultBufferLatency
}

// deviceClockState is the consumer (device pull) thread's private clock and
// bookkeeping. Touched only from Pull.
type deviceClockState struct {
	clock dllclock.Clock
}

// producerState is the producer (guest packet) thread's private clock,
// latency controller, and resampler state. Touched only from PlaybackData.
type producerState struct {
	clock dllclock.Clock

	framesIn      []float32
	framesOut     []float32
	framesOutSize int

	devPeriodFrames int
	devLastTime     int64 // devTimeUnset until a second tick has been drained
	devLastPosition int64
	devNextTime     int64
	devNextPosition int64

	offsetError         float64
	offsetErrorIntegral float64
	ratioIntegral       float64

	resampler *resample.Converter
}

// newProducerState returns a producerState for a freshly (re)started
// stream: devLastTime and devNextTime start at the devTimeUnset sentinel,
// so the device-position interpolation gate in playback.go stays closed
// until two real ticks have been drained.
func newProducerState(channels int) producerState {
	return producerState{
		resampler:   resample.New(channels),
		devLastTime: devTimeUnset,
		devNextTime: devTimeUnset,
	}
}

// recordState tracks the pass-through capture path. See
// internal/audioengine/record.go.
type recordState struct {
	requested bool
	started   bool

	volumeChannels int
	volume         [maxChannels]uint16
	mute           bool

	lastChannels   int
	lastSampleRate int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Engine is the full adaptive audio playback clock-synchronization engine
// plus the record pass-through. A single instance is created and owned by
// the orchestrator (see cmd/spicy-kvm), not by a process-wide global, per
// the design notes' re-architecture away from the reference's single
// static instance.
type Engine struct {
	device      SoundDevice
	recordSink  GuestRecordSink
	opts        Options
	sampleRate  int

	// state is read and written from both the producer and consumer
	// methods (e.g. SETUP_DEVICE -> RUN happens in Pull, RUN -> KEEP_ALIVE
	// happens in PlaybackStop which runs on the producer side), so it's
	// kept atomic rather than guarded by the config mutex below.
	state atomic.Int32

	// mu guards the handful of fields either thread may read: stored
	// volume/mute (so a restart can restore them) and device hints. The
	// ring buffer, clocks, controller state, and scratch buffers below are
	// NOT guarded by mu — they follow the single-writer discipline
	// described in the package doc.
	mu             sync.Mutex
	channels       int
	volumeChannels int
	volume         [maxChannels]uint16
	mute           bool
	lastChannels   int
	lastSampleRate int

	deviceMaxPeriodFrames int
	deviceStartFrames     int
	targetStartFrames     int

	buffer      *ringbuffer.Buffer
	deviceTicks *tickqueue.Queue

	_ cpu.CacheLinePad
	consumerClock deviceClockState
	_ cpu.CacheLinePad
	producer producerState
	_ cpu.CacheLinePad

	timings        *latencyRing
	timingsCounter uint32

	record recordState
}

// New returns an Engine bound to device for playback and capture, and
// sink for delivering captured audio to the guest. Call Init before using
// it.
func New(device SoundDevice, sink GuestRecordSink) *Engine {
	return &Engine{
		device:     device,
		recordSink: sink,
		timings:    newLatencyRing(1200),
	}
}

// Init applies opts. It must be called before the first PlaybackStart or
// RecordStart.
func (e *Engine) Init(opts Options) {
	e.opts = opts
}

// Free immediately tears down playback and capture, releasing all
// resources. Unlike PlaybackStop it does not wait for a drain or enter
// KEEP_ALIVE.
func (e *Engine) Free() {
	e.playbackFullStop()
	e.mu.Lock()
	e.recordStopLocked()
	e.mu.Unlock()
}

// State returns the current playback stream state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// nanotime is a package variable rather than a plain function so tests can
// substitute a controllable clock for the large-error and keep-alive-timeout
// branches, which would otherwise need real wall-clock sleeps to exercise.
var nanotime = func() int64 {
	return time.Now().UnixNano()
}

// latencyRing is the 1200-entry ring of recent total-latency samples (in
// milliseconds) for external UI sampling, e.g. internal/diagnostics.
type latencyRing struct {
	mu   sync.Mutex
	buf  []float32
	head int
	n    int
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{buf: make([]float32, capacity)}
}

func (r *latencyRing) push(v float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.n) % len(r.buf)
	r.buf[idx] = v
	if r.n == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.n++
}

// Snapshot returns a copy of the currently queued samples, oldest first.
func (r *latencyRing) Snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float32, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Timings exposes the latency ring for diagnostics consumers.
func (e *Engine) Timings() []float32 {
	return e.timings.Snapshot()
}

func clampChannels(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxChannels {
		return maxChannels
	}
	return n
}

func logf(format string, args ...any) {
	log.Printf("[audio] "+format, args...)
}

// roundInt rounds x to the nearest integer using the same convention as
// C's round(): halves away from zero. Go's math.Round already matches this.
func roundInt(x float64) int {
	return int(math.Round(x))
}
