package sounddevice

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

// opusEncoder abstracts Opus encoding for testing, mirroring the reference
// client's opusEncoder interface.
type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

const opusMaxPacketBytes = 1275 // RFC 6716 max Opus packet size

// OpusCaptureTap wraps a PullSource and Opus-encodes every frame pulled
// through it to a file, as a "file-writing sink for offline analysis" (see
// design notes §9). It never touches the playback wire format itself — the
// wrapped source still returns exactly what it pulled, untouched; the tap
// only siphons a copy off to disk. The on-disk format is a simple sequence
// of (uint32 length, opus packet) records; no Ogg/container muxing is
// attempted, since this is a diagnostic dump, not a file meant to be
// opened by a media player.
type OpusCaptureTap struct {
	inner    PullSource
	channels int

	mu        sync.Mutex
	enc       opusEncoder
	f         *os.File
	frameSize int // samples per channel per Opus frame (20ms)
	accum     []int16
	pcmScratch []float32
	pkt       []byte
}

// NewOpusCaptureTap creates a tap writing Opus-encoded copies of whatever is
// pulled through it to path, at channels/sampleRate. sampleRate must be one
// of the rates Opus supports (8000, 12000, 16000, 24000, 48000).
func NewOpusCaptureTap(inner PullSource, path string, channels, sampleRate int) (*OpusCaptureTap, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("sounddevice: new opus encoder: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sounddevice: create capture tap file: %w", err)
	}

	return &OpusCaptureTap{
		inner:     inner,
		channels:  channels,
		enc:       enc,
		f:         f,
		frameSize: sampleRate / 50, // 20ms
		pkt:       make([]byte, opusMaxPacketBytes),
	}, nil
}

// Pull forwards to the wrapped source, then encodes a copy of what came
// back onto the tap file in the background thread calling Pull (the same
// thread the inner source's own poll loop runs on — no extra goroutine or
// synchronization is introduced).
func (t *OpusCaptureTap) Pull(dst []float32, maxFrames int) int {
	n := t.inner.Pull(dst, maxFrames)
	t.tee(dst[:n*t.channels])
	return n
}

func (t *OpusCaptureTap) tee(frames []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cap(t.pcmScratch) < len(frames) {
		t.pcmScratch = make([]float32, len(frames))
	}
	pcm := t.pcmScratch[:len(frames)]
	copy(pcm, frames)

	base := len(t.accum)
	t.accum = append(t.accum, make([]int16, len(pcm))...)
	float32ToInt16(pcm, t.accum[base:])

	frameSamples := t.frameSize * t.channels
	for len(t.accum) >= frameSamples {
		n, err := t.enc.Encode(t.accum[:frameSamples], t.pkt)
		if err != nil {
			// A diagnostic tap must never take down playback over an encode
			// error; drop this frame and keep going.
			t.accum = t.accum[frameSamples:]
			continue
		}
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(n))
		if _, err := t.f.Write(hdr[:]); err == nil {
			t.f.Write(t.pkt[:n])
		}
		t.accum = t.accum[frameSamples:]
	}
	// Slide any remaining partial-frame tail to the front so append above
	// doesn't grow accum forever.
	if len(t.accum) > 0 {
		rest := append([]int16(nil), t.accum...)
		t.accum = rest
	}
}

// Close flushes and closes the tap file. Any partial trailing frame
// shorter than frameSize is discarded rather than padded with silence.
func (t *OpusCaptureTap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
