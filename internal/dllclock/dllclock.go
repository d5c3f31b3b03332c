// Package dllclock implements the second-order delay-locked loop used to
// track the relationship between a frame position and wall-clock time on
// each side of the audio engine (producer/guest side and consumer/device
// side each hold their own independent instance, with independent
// position semantics — see internal/audioengine).
//
// A DLL keeps two coupled estimates updated once per period: the expected
// wall-clock time of the next period boundary, and the smoothed period
// duration itself. Feeding it the observed error between a fresh
// measurement and its own prediction lets it track a clock that runs at a
// slightly different rate than assumed, without reacting so fast that
// normal jitter throws it off.
package dllclock

import "math"

// Bandwidth is the DLL's control loop bandwidth in Hz. Lower values track
// more slowly but reject more jitter.
const Bandwidth = 0.05

// Clock is a single second-order DLL instance. Set it up with Init, or with
// SetPeriod followed by Retune (which is how the engine brings up its
// zero-value clocks). Fields are exported because both sides
// of the engine drive the clock through slightly different sequences (the
// consumer side advances NextPosition by raw pulled frames every period;
// the producer side advances it by resampled output frames, decoupled from
// the timing step) — there's no single "advance" call that fits both, so
// the engine composes Retune/SetPeriod/AdvanceSmooth itself.
type Clock struct {
	PeriodFrames int     // nominal frames per period this instance was tuned for
	PeriodSec    float64 // smoothed period duration, updated every AdvanceSmooth
	NextTime     int64   // predicted wall-clock time of the next boundary, ns
	NextPosition int64   // predicted frame position of the next boundary

	b float64 // proportional loop gain
	c float64 // integral loop gain
}

// Init (re)initializes the clock for a nominal period of periodFrames
// frames at sampleRate, anchored so that the next predicted boundary is at
// time now (ns) and frame position pos, and retunes the loop gains.
func (c *Clock) Init(periodFrames int, sampleRate float64, now, pos int64) {
	c.PeriodFrames = periodFrames
	c.PeriodSec = float64(periodFrames) / sampleRate
	c.NextTime = now
	c.NextPosition = pos
	c.Retune()
}

// Retune recomputes the loop gains from the current PeriodSec, per the
// standard critically-damped second-order DLL design: omega =
// 2*pi*Bandwidth*periodSec, b = sqrt(2)*omega, c = omega*omega. Call this
// whenever PeriodSec changes independently of Init (i.e. on a period-size
// change mid-stream).
func (c *Clock) Retune() {
	omega := 2 * math.Pi * Bandwidth * c.PeriodSec
	c.b = math.Sqrt2 * omega
	c.c = omega * omega
}

// SetPeriod updates the nominal period without touching NextTime,
// NextPosition, or the loop gains — callers retune explicitly afterwards
// once they've decided which period (old or new) the pending timing step
// should be measured against.
func (c *Clock) SetPeriod(periodFrames int, sampleRate float64) {
	c.PeriodFrames = periodFrames
	c.PeriodSec = float64(periodFrames) / sampleRate
}

// AdvanceSmooth folds in one period's worth of observation at steady
// state: nowNS is the actual wall-clock time this period's boundary was
// observed. It updates NextTime and PeriodSec using the DLL's smoothing
// math and returns the signed error in seconds between the observation and
// the clock's prior prediction (observed - predicted); positive means the
// observation arrived later than predicted.
//
// AdvanceSmooth does not touch NextPosition — the two sides of the engine
// advance position on different schedules (see the Clock doc comment), so
// the caller updates it separately.
func (c *Clock) AdvanceSmooth(nowNS int64) (errorSeconds float64) {
	errorSeconds = float64(nowNS-c.NextTime) / 1e9
	c.NextTime += int64(math.Round((c.b*errorSeconds + c.PeriodSec) * 1e9))
	c.PeriodSec += c.c * errorSeconds
	return errorSeconds
}

// Reset re-anchors the clock at the given time and position without
// changing its tuning, discarding any accumulated phase error. The audio
// engine does not call Reset: its large-error slew re-anchors the producer
// clock by assigning NextTime and NextPosition directly.
func (c *Clock) Reset(now, pos int64) {
	c.NextTime = now
	c.NextPosition = pos
}

// B returns the DLL's current proportional loop gain. Exported so the
// latency controller can reuse the producer clock's tuning for its own
// offset-error filter, per the cascade design.
func (c *Clock) B() float64 { return c.b }

// C returns the DLL's current integral loop gain. See B.
func (c *Clock) C() float64 { return c.c }

// SampleRate returns the sample rate implied by the clock's current
// smoothed period, given the period is PeriodFrames frames. Useful for
// diagnostics; the engine itself works in frames and seconds.
func (c *Clock) SampleRate() float64 {
	if c.PeriodSec <= 0 {
		return 0
	}
	return float64(c.PeriodFrames) / c.PeriodSec
}
