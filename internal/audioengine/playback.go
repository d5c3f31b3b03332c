package audioengine

import (
	"math"

	"github.com/pgaskin/spicy-kvm/internal/ringbuffer"
	"github.com/pgaskin/spicy-kvm/internal/tickqueue"
)

// PlaybackStart handles a startRequest event: the guest has begun (or
// resumed) sending audio in the given format. See the stream state machine
// in §4.E of the design notes for the exact transition table this
// implements.
func (e *Engine) PlaybackStart(channels, sampleRate int, guestTimeHint int64) error {
	channels = clampChannels(channels)

	e.mu.Lock()
	sameFormat := channels == e.lastChannels && sampleRate == e.lastSampleRate
	volumeChannels := e.volumeChannels
	volume := e.volume
	mute := e.mute
	e.mu.Unlock()

	if e.State() == StateKeepAlive && sameFormat {
		e.producer.resampler.Reset()
		logf("reusing keep-alive stream for %d ch @ %d Hz", channels, sampleRate)
		return nil
	}

	if e.State() != StateStop {
		e.playbackFullStop()
	}

	e.buffer = ringbuffer.New(channels, sampleRate)
	e.deviceTicks = tickqueue.New()
	e.producer = newProducerState(channels)
	e.consumerClock = deviceClockState{}
	e.channels = channels
	e.sampleRate = sampleRate

	e.mu.Lock()
	e.lastChannels = channels
	e.lastSampleRate = sampleRate
	e.mu.Unlock()

	e.setState(StateSetupSpice)

	requestedPeriod := e.opts.periodSize()
	maxPeriodFrames, startFrames, err := e.device.Setup(e.opts.SinkHint, channels, sampleRate, requestedPeriod)
	if err != nil {
		logf("device setup failed: %v", err)
		e.playbackFullStop()
		return err
	}
	e.deviceMaxPeriodFrames = maxPeriodFrames
	e.deviceStartFrames = startFrames

	if volumeChannels > 0 {
		e.device.SetVolume(volumesToLinear(volume[:volumeChannels]))
	}
	e.device.SetMute(mute)

	return nil
}

// playbackFullStop tears down every playback resource immediately,
// regardless of current state. Used for Free, a format change out of
// KEEP_ALIVE, and any failure during setup.
func (e *Engine) playbackFullStop() {
	if e.State() == StateStop {
		return
	}
	e.setState(StateStop)
	if err := e.device.Stop(nil); err != nil {
		logf("device stop: %v", err)
	}
	if e.buffer != nil {
		e.buffer.Free()
		e.buffer = nil
	}
	e.deviceTicks = nil
	e.producer = producerState{}
	e.consumerClock = deviceClockState{}
}

// PlaybackStop handles a stopRequest event.
func (e *Engine) PlaybackStop() {
	switch e.State() {
	case StateRun:
		e.setState(StateKeepAlive)
		// The reference implementation falls through to a full stop if
		// resetting the resampler fails, on the theory that it's safer to
		// free and reopen than to keep running with a possibly-corrupt
		// resampler. Our resampler carries no state that a Reset can fail
		// to clear, so that branch has no Go equivalent — there's nothing
		// for it to guard against.
		e.producer.resampler.Reset()
	case StateSetupSpice, StateSetupDevice:
		e.playbackFullStop()
	case StateKeepAlive, StateStop:
		// nothing to do
	}
}

// PlaybackVolume stores the per-channel volume (converting from the
// logarithmic wire scale to linear gain) and applies it immediately if the
// stream is active.
func (e *Engine) PlaybackVolume(volume []uint16) {
	n := clampChannels(len(volume))
	if n > len(volume) {
		n = len(volume)
	}

	e.mu.Lock()
	copy(e.volume[:], volume[:n])
	e.volumeChannels = n
	e.mu.Unlock()

	if !e.State().active() {
		return
	}
	e.device.SetVolume(volumesToLinear(volume[:n]))
}

// PlaybackMute stores and, if active, applies the mute state.
func (e *Engine) PlaybackMute(mute bool) {
	e.mu.Lock()
	e.mute = mute
	e.mu.Unlock()

	if !e.State().active() {
		return
	}
	e.device.SetMute(mute)
}

// computeDevicePosition linearly interpolates between the last two
// published device ticks to estimate the consumer's frame position at
// curTime.
func (p *producerState) computeDevicePosition(curTime int64) float64 {
	span := p.devNextTime - p.devLastTime
	if span == 0 {
		return float64(p.devLastPosition)
	}
	frac := float64(curTime-p.devLastTime) / float64(span)
	return float64(p.devLastPosition) + float64(p.devNextPosition-p.devLastPosition)*frac
}

// PlaybackData handles a producerPacket event: one packet of tightly
// packed signed 16-bit PCM has arrived from the guest. It runs the
// producer clock step, the two-stage latency controller, and the
// resample-and-enqueue loop described in §4.D.
func (e *Engine) PlaybackData(pcm []byte) {
	if e.State() == StateStop || len(pcm) == 0 {
		return
	}

	now := nanotime()
	p := &e.producer

	stride := e.channels * 2 // signed 16-bit samples per channel
	frames := len(pcm) / stride
	if frames == 0 {
		return
	}
	pcm = pcm[:frames*stride] // drop a trailing fragment shorter than one frame

	periodChanged := frames != p.clock.PeriodFrames
	init := p.clock.PeriodFrames == 0

	if periodChanged {
		p.framesIn = make([]float32, frames*e.channels)
		p.framesOutSize = roundInt(float64(frames) * 1.1)
		p.framesOut = make([]float32, p.framesOutSize*e.channels)
	}
	pcm16ToFloat32(pcm, p.framesIn)

	// Drain whatever device ticks have been published since the last
	// packet; only the two most recent matter for interpolation. The
	// window always shifts, even on the very first tick — devLastTime
	// starts at the devTimeUnset sentinel, so interpolation below stays
	// gated off until a *second* tick has actually landed in devLastTime.
	for {
		tick, ok := e.deviceTicks.Pop()
		if !ok {
			break
		}
		p.devLastTime = p.devNextTime
		p.devLastPosition = p.devNextPosition
		p.devPeriodFrames = tick.PeriodFrames
		p.devNextTime = tick.NextTime
		p.devNextPosition = tick.NextPosition
	}

	targetLatencyFrames := e.targetLatencyFrames(p)

	var curTime, curPosition int64
	var devPosition float64
	devPositionKnown := false

	if periodChanged {
		if init {
			p.clock.NextTime = now
		}
		curTime = p.clock.NextTime
		curPosition = p.clock.NextPosition

		p.clock.SetPeriod(frames, float64(e.sampleRate))
		p.clock.NextTime += int64(math.Round(p.clock.PeriodSec * 1e9))
		p.clock.Retune()
	} else {
		errSeconds := float64(now-p.clock.NextTime) / 1e9
		if math.Abs(errSeconds) >= largeErrorThresholdSec || e.State() == StateKeepAlive {
			var slewFrames int
			if p.devLastTime != devTimeUnset {
				devPosition = p.computeDevicePosition(now)
				devPositionKnown = true
				targetPosition := devPosition + targetLatencyFrames
				if e.State() == StateKeepAlive {
					targetPosition += resamplerWarmupFrames
				}
				slewFrames = roundInt(targetPosition - float64(p.clock.NextPosition))
			} else {
				slewFrames = roundInt(errSeconds * float64(e.sampleRate))
			}
			e.buffer.Append(nil, slewFrames)

			curTime = now
			curPosition = p.clock.NextPosition + int64(slewFrames)

			p.clock.SetPeriod(frames, float64(e.sampleRate))
			p.clock.NextTime = now + int64(math.Round(p.clock.PeriodSec*1e9))
			p.clock.NextPosition = curPosition

			p.offsetError = 0
			p.offsetErrorIntegral = 0
			p.ratioIntegral = 0

			e.setState(StateRun)
		} else {
			curTime = p.clock.NextTime
			curPosition = p.clock.NextPosition
			p.clock.AdvanceSmooth(now)
		}
	}

	// Offset-error DLL filter, using the producer clock's own loop gains.
	actualOffset := 0.0
	offsetError := p.offsetError
	if p.devLastTime != devTimeUnset {
		if !devPositionKnown {
			devPosition = p.computeDevicePosition(curTime)
		}
		actualOffset = float64(curPosition) - devPosition
		rawErr := -(actualOffset - targetLatencyFrames)

		delta := rawErr - offsetError
		p.offsetError += p.clock.B()*delta + p.offsetErrorIntegral
		p.offsetErrorIntegral += p.clock.C() * delta
	}

	// PI controller on the resampling ratio.
	p.ratioIntegral += offsetError * p.clock.PeriodSec
	ratio := 1.0 + controllerKP*offsetError + controllerKI*p.ratioIntegral

	consumed := 0
	for consumed < frames {
		in := p.framesIn[consumed*e.channels:]
		generated, used := e.resampleBatch(p, in, frames-consumed, ratio)
		if used == 0 && generated == 0 {
			// The resampler couldn't make progress on this input; drop the
			// remainder of the packet rather than spin forever.
			logf("resampler made no progress, dropping remainder of packet")
			break
		}
		e.buffer.Append(p.framesOut[:generated*e.channels], generated)
		consumed += used
		p.clock.NextPosition += int64(generated)
	}

	if e.State() == StateSetupSpice {
		startFrames := p.clock.PeriodFrames*2 + e.deviceStartFrames
		e.targetStartFrames = startFrames
		e.setState(StateSetupDevice)
		if err := e.device.Start(); err != nil {
			logf("device start: %v", err)
		}
	}

	e.reportLatency(actualOffset)
}

// resampleBatch feeds in (up to maxFrames frames) through the producer's
// resampler at ratio, writing generated output frames into p.framesOut. It
// returns the number of output frames generated and input frames consumed.
func (e *Engine) resampleBatch(p *producerState, in []float32, maxFrames int, ratio float64) (generated, consumed int) {
	availableIn := len(in) / e.channels
	if availableIn > maxFrames {
		availableIn = maxFrames
	}
	consumed, generated = p.resampler.Process(in, availableIn, ratio, p.framesOut, p.framesOutSize)
	return generated, consumed
}

// targetLatencyFrames computes the desired number of frames queued between
// producer write and consumer read, per the formula in §4.D.
func (e *Engine) targetLatencyFrames(p *producerState) float64 {
	configLatencyMs := e.opts.bufferLatencyMS()
	maxPeriodFrames := e.deviceMaxPeriodFrames
	if p.devPeriodFrames > maxPeriodFrames {
		maxPeriodFrames = p.devPeriodFrames
	}
	target := float64(maxPeriodFrames)*1.1 + float64(configLatencyMs)*float64(e.sampleRate)/1000.0
	if p.devPeriodFrames != 0 && p.devPeriodFrames < e.deviceMaxPeriodFrames {
		target += float64(e.deviceMaxPeriodFrames - p.devPeriodFrames)
	}
	return target
}

// reportLatency pushes the current total latency onto the diagnostics ring
// and invokes the configured callback, per the "Latency reporting"
// subsection of §4.E.
func (e *Engine) reportLatency(actualOffset float64) {
	latencyFrames := actualOffset + float64(e.device.Latency())
	totalMS := latencyFrames * 1000.0 / float64(e.sampleRate)
	offsetMS := actualOffset * 1000.0 / float64(e.sampleRate)
	deviceMS := float64(e.device.Latency()) * 1000.0 / float64(e.sampleRate)

	e.timings.push(float32(totalMS))

	if e.opts.LatencyCallback == nil {
		return
	}
	e.opts.LatencyCallback(LatencyReport{
		CurrentOffsetMS: offsetMS,
		DeviceLatencyMS: deviceMS,
		TotalLatencyMS:  totalMS,
	})
}

// Pull handles a consumerPull event: the host sound device wants up to
// maxFrames frames of output. It always writes dst fully — with silence
// past whatever real data is available, or entirely if the stream is
// stopped — matching the "every consumerPull writes exactly the requested
// frames" invariant.
func (e *Engine) Pull(dst []float32, maxFrames int) int {
	if maxFrames <= 0 {
		return 0
	}
	if e.State() == StateStop || e.buffer == nil {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}

	now := nanotime()
	c := &e.consumerClock.clock

	if e.State() == StateSetupDevice {
		if deficit := e.targetStartFrames - e.buffer.Count(); deficit > 0 {
			// Not enough has been buffered yet to reach the startup
			// cushion: insert the shortfall as silence ahead of whatever
			// real audio is already queued, so this and following pulls
			// hand out silence first and only reach real data once the
			// cushion is exhausted.
			//
			// The reference implementation instead only credits the
			// deficit into its signed count (ringbuffer_consume with a
			// negative length) without writing any real frames, and
			// separately rolls data->nextPosition back by the same
			// amount. Deliberately not mirrored here: that credit-only
			// approach never changes the physical order data comes out
			// in, so with this ring buffer's FIFO Consume (which always
			// drains real stored frames before padding with silence) the
			// already-buffered real audio would be handed out before the
			// startup silence — backwards from what the startup cushion
			// needs. Materializing the deficit as real leading frames
			// here means every subsequent Pull (including this one)
			// still advances the consumer clock by exactly the frames it
			// was asked for and actually produced, so there is no
			// position to roll back: NextPosition already matches the
			// frames genuinely flowing through the device.
			e.buffer.Prepend(deficit)
		}
		e.setState(StateRun)
	}

	if maxFrames != c.PeriodFrames {
		init := c.PeriodFrames == 0
		// The device is double-buffered: when it requests a different
		// period it is still playing out the previous one, so the
		// wall-clock gap before this callback corresponds to the OLD
		// period, not the new one. NextTime must advance by the period
		// size in effect before this change, captured here, and only
		// then is the clock retuned to the new period. The producer side's
		// period-change branch in PlaybackData advances by the new period
		// instead, because there the double-buffering asymmetry doesn't
		// apply.
		oldPeriodSec := c.PeriodSec
		newPeriodSec := float64(maxFrames) / float64(e.sampleRate)
		if init {
			c.NextTime = now + int64(math.Round(newPeriodSec*1e9))
		} else {
			c.NextTime += int64(math.Round(oldPeriodSec * 1e9))
		}
		c.SetPeriod(maxFrames, float64(e.sampleRate))
		c.NextPosition += int64(maxFrames)
		c.Retune()
	} else {
		c.AdvanceSmooth(now)
		c.NextPosition += int64(maxFrames)
	}

	e.deviceTicks.Push(tickqueue.Tick{
		PeriodFrames: c.PeriodFrames,
		NextTime:     c.NextTime,
		NextPosition: c.NextPosition,
	})

	e.buffer.Consume(dst[:maxFrames*e.channels], maxFrames)

	if e.State() == StateKeepAlive {
		stopFrames := keepAliveStopSeconds * e.sampleRate
		if e.buffer.Count() <= -stopFrames {
			e.playbackFullStop()
		}
	}

	return maxFrames
}

func (e *Engine) channelsOrOne() int {
	if e.channels < 1 {
		return 1
	}
	return e.channels
}

// pcm16ToFloat32 converts tightly packed little-endian signed 16-bit PCM
// into the normalized [-1, 1] float32 range the resampler and ring buffer
// work in.
func pcm16ToFloat32(pcm []byte, out []float32) {
	n := len(pcm) / 2
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
}
