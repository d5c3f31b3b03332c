// Package resample implements a stateful, continuously variable-ratio
// sample-rate converter for interleaved multi-channel float32 audio.
//
// Unlike a fixed-ratio converter, the ratio passed to Process may change
// from one call to the next: the latency controller recomputes it every
// period as part of the offset-error/PI-ratio cascade (see audioengine).
// The converter uses linear interpolation rather than a sinc kernel —
// adequate for the small, slowly-varying ratio corrections the controller
// produces (never far from 1.0), and simple enough to reason about without
// being able to run the toolchain to validate a more elaborate kernel.
//
// Process follows libsamplerate's consumed/generated convention: each call
// reports how much of the input it actually read and how many output
// frames it produced, carrying fractional position and interpolation state
// across calls so a caller can feed it one buffer's worth of input and one
// buffer's worth of output capacity at a time.
package resample

// Converter is a single-direction, per-channel-width resampler. The zero
// value is not usable; construct one with New.
type Converter struct {
	channels int
	frac     float64   // fractional position into the next input frame, [0,1)
	last     []float32 // last consumed input frame (channels floats), for continuity
	primed   bool       // whether last holds a real frame yet
}

// New returns a Converter for the given channel count.
func New(channels int) *Converter {
	if channels < 1 {
		channels = 1
	}
	return &Converter{
		channels: channels,
		last:     make([]float32, channels),
	}
}

// Reset discards all carried interpolation state, as if the converter were
// newly constructed. Used when playback stops into KEEP_ALIVE and when a
// KEEP_ALIVE stream is reused by a matching-format start, so the resampler
// carries no stale interpolation state into the next run. A large-error
// slew does not reset it: the discontinuity there is handled by the ring
// buffer's slew, not by the resampler, which keeps converting continuously
// across it.
func (c *Converter) Reset() {
	c.frac = 0
	c.primed = false
	for i := range c.last {
		c.last[i] = 0
	}
}

// Process converts in (inFrames interleaved frames) to out (up to
// outFrames interleaved frames of capacity) at the given ratio
// (outputRate/inputRate — greater than 1 produces more output frames per
// input frame, i.e. upsamples). It returns consumed (input frames fully
// read; the caller should advance its input position by this many frames
// next call) and generated (output frames written).
//
// Process stops generating when either out is full or there is not enough
// remaining input to interpolate the next output sample; any partial
// position within the input is carried forward to the next call.
func (c *Converter) Process(in []float32, inFrames int, ratio float64, out []float32, outFrames int) (consumed, generated int) {
	if ratio <= 0 {
		ratio = 1
	}
	step := 1.0 / ratio
	ch := c.channels

	p := c.frac
	for generated < outFrames {
		i := int(p)
		frac := float32(p - float64(i))

		var s0 []float32
		if i == 0 {
			if !c.primed && inFrames == 0 {
				break
			}
			s0 = c.last
		} else if i-1 < inFrames {
			s0 = in[(i-1)*ch : i*ch]
		} else {
			break
		}

		var s1 []float32
		if i < inFrames {
			s1 = in[i*ch : (i+1)*ch]
		} else {
			break
		}

		dst := out[generated*ch : (generated+1)*ch]
		for k := 0; k < ch; k++ {
			dst[k] = s0[k] + (s1[k]-s0[k])*frac
		}
		generated++
		p += step
	}

	consumed = int(p)
	if consumed > inFrames {
		consumed = inFrames
	}
	if consumed > 0 {
		copy(c.last, in[(consumed-1)*ch:consumed*ch])
		c.primed = true
	}
	c.frac = p - float64(consumed)
	if c.frac < 0 {
		c.frac = 0
	}

	return consumed, generated
}
