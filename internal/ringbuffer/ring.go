// Package ringbuffer implements the frame ring buffer used to decouple the
// audio producer (guest packets arriving over the network) from the
// consumer (the host sound device pulling samples on its own clock).
//
// The buffer's logical count is signed: consuming more frames than are
// present drives the count negative, and those missing frames are treated
// as silence on the read side. Appending while the count is negative first
// repays the deficit with silence before adding new data. This "slew"
// semantics is how the engine absorbs startup cushions and large clock
// corrections without an audible discontinuity — see audioengine for how
// it's used.
package ringbuffer

import "sync"

// Buffer is an unbounded (growable) FIFO of fixed-stride frames.
//
// Append is meant to be called only from the producer side and Consume only
// from the consumer side, but because the backing array grows and compacts
// in place, the two sides still touch the same memory (not just disjoint
// halves of it). A mutex serializes that access. This trades the "purely
// lock-free hot path" ideal for certainty: the critical sections are a
// bounded memcpy with no syscalls or allocation in the steady-state case,
// so contention is never the bottleneck a real-time audio thread needs to
// worry about.
type Buffer struct {
	mu       sync.Mutex
	channels int
	data     []float32 // flat storage, channels floats per frame
	head     int        // index (in frames) of the oldest real frame in data
	len      int        // number of real frames currently stored in data
	count    int        // signed logical count frames available to read
}

// New returns an empty Buffer for the given channel count, with initial
// capacity for capacityFrames frames (it still grows geometrically beyond
// that).
func New(channels, capacityFrames int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	if capacityFrames < 1 {
		capacityFrames = 1
	}
	return &Buffer{
		channels: channels,
		data:     make([]float32, 0, capacityFrames*channels),
	}
}

// Count returns the signed logical number of queued frames. It may be
// negative when the consumer has read further ahead than data exists
// (an underrun slew in progress).
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Channels returns the frame width (stride in samples) of the buffer.
func (b *Buffer) Channels() int { return b.channels }

// Append writes n frames from src (interleaved, n*channels floats) onto the
// tail. If src is nil, n frames of silence are written instead. If the
// logical count is currently negative (an outstanding read deficit), the
// deficit is repaid first: up to min(-count, n) frames are discarded from
// the append (they were already treated as silence on the read side) before
// any remaining frames are actually stored.
//
// A negative n instead trims |n| frames off the tail — discarding
// already-written data that turned out not to be needed — and reduces the
// logical count to match. This is how a large clock correction rolls the
// write position backward without per-sample resampling: it's the mirror
// image of Consume reading ahead of what's stored.
func (b *Buffer) Append(src []float32, n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		trim := -n
		if trim > b.len {
			trim = b.len
		}
		b.len -= trim
		b.data = b.data[:b.len*b.channels]
		b.count += n
		return
	}

	// Repay an outstanding underrun deficit before writing anything real:
	// those frames were already handed out as silence by Consume, so
	// catching up here must not re-deliver them.
	if b.count < 0 {
		repay := -b.count
		if repay > n {
			repay = n
		}
		b.count += repay
		n -= repay
		if src != nil {
			src = src[repay*b.channels:]
		}
		if n == 0 {
			return
		}
	}

	b.compact()
	need := (b.len + n) * b.channels
	if cap(b.data) < need {
		grown := make([]float32, b.len*b.channels, need*2)
		copy(grown, b.data)
		b.data = grown
	}
	b.data = b.data[:need]
	tail := b.data[b.len*b.channels : need]
	if src == nil {
		for i := range tail {
			tail[i] = 0
		}
	} else {
		copy(tail, src[:n*b.channels])
	}
	b.len += n
	b.count += n
}

// Consume copies n frames to dst (interleaved, n*channels floats). If dst is
// nil the frames are discarded (but still accounted for). If fewer than n
// real frames are stored, the shortfall is filled with silence and the
// logical count goes negative by that amount — the caller (device pull,
// or an explicit slew) is expected to cope with silence on underrun.
//
// A negative n instead credits |n| frames back to the logical count without
// touching stored data or dst. Because nothing is stored, this credit does
// not change the order frames come out in; the engine's startup slew uses
// Prepend instead, which inserts real leading silence.
func (b *Buffer) Consume(dst []float32, n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		b.count -= n
		return
	}

	avail := b.len
	if avail > n {
		avail = n
	}

	if avail > 0 {
		src := b.data[b.head*b.channels : (b.head+avail)*b.channels]
		if dst != nil {
			copy(dst[:avail*b.channels], src)
		}
		b.head += avail
		b.len -= avail
	}

	if dst != nil && avail < n {
		silence := dst[avail*b.channels : n*b.channels]
		for i := range silence {
			silence[i] = 0
		}
	}

	b.count -= n
	b.compact()
}

// compact slides real data back to the front of the backing array so stale
// leading space doesn't accumulate across many small Consume calls.
func (b *Buffer) compact() {
	if b.head == 0 {
		return
	}
	if b.len == 0 {
		b.head = 0
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[b.head*b.channels:(b.head+b.len)*b.channels])
	b.head = 0
	b.data = b.data[:b.len*b.channels]
}

// Prepend inserts n frames of silence at the head of the queue, ahead of
// anything already buffered, and credits the logical count to match. This is
// how the startup slew makes a consumerPull emit silence before audio that
// was already enqueued by an earlier producerPacket: Consume always reads
// from the head first, so the inserted silence is what comes out first.
func (b *Buffer) Prepend(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.compact()
	need := (b.len + n) * b.channels
	grown := make([]float32, need, need*2)
	copy(grown[n*b.channels:], b.data[:b.len*b.channels])
	b.data = grown
	b.len += n
	b.count += n
}

// Free releases the buffer's backing storage. The Buffer must not be used
// afterwards. Idempotent.
func (b *Buffer) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.head = 0
	b.len = 0
	b.count = 0
}
