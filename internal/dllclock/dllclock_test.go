package dllclock

import "testing"

const sampleRate = 48000.0

func TestInitAnchorsPrediction(t *testing.T) {
	var c Clock
	c.Init(256, sampleRate, 1_000_000_000, 0)
	if c.NextTime != 1_000_000_000 {
		t.Fatalf("NextTime = %d, want 1e9", c.NextTime)
	}
	if c.NextPosition != 0 {
		t.Fatalf("NextPosition = %d, want 0", c.NextPosition)
	}
	wantPeriodSec := 256.0 / sampleRate
	if c.PeriodSec != wantPeriodSec {
		t.Fatalf("PeriodSec = %v, want %v", c.PeriodSec, wantPeriodSec)
	}
}

// TestSteadyStateTracksExactPeriod feeds the clock observations that land
// exactly on its own predictions and checks the error stays at zero and
// NextTime advances monotonically by one period each time.
func TestSteadyStateTracksExactPeriod(t *testing.T) {
	var c Clock
	periodFrames := 256
	periodNS := int64(float64(periodFrames) / sampleRate * 1e9)

	c.Init(periodFrames, sampleRate, 0, 0)

	prevNextTime := c.NextTime
	for i := 0; i < 100; i++ {
		now := prevNextTime
		errSec := c.AdvanceSmooth(now)
		if errSec != 0 {
			t.Fatalf("iteration %d: error = %v, want 0", i, errSec)
		}
		if c.NextTime <= prevNextTime {
			t.Fatalf("iteration %d: NextTime did not advance monotonically: %d -> %d", i, prevNextTime, c.NextTime)
		}
		if d := c.NextTime - prevNextTime - periodNS; d < -1 || d > 1 {
			t.Fatalf("iteration %d: NextTime advanced by %d ns, want ~%d", i, c.NextTime-prevNextTime, periodNS)
		}
		prevNextTime = c.NextTime
	}
}

func TestPositiveErrorWhenLate(t *testing.T) {
	var c Clock
	c.Init(256, sampleRate, 0, 0)
	// Observation arrives 1ms later than predicted.
	errSec := c.AdvanceSmooth(1_000_000)
	if errSec <= 0 {
		t.Fatalf("errorSeconds = %v, want > 0 for a late observation", errSec)
	}
}

func TestSetPeriodThenRetuneChangesGains(t *testing.T) {
	var c Clock
	c.Init(256, sampleRate, 0, 0)
	b1, c1 := c.B(), c.C()

	c.SetPeriod(128, sampleRate)
	// Gains shouldn't change until Retune is called.
	if c.B() != b1 || c.C() != c1 {
		t.Fatalf("gains changed before Retune was called")
	}
	c.Retune()
	if c.B() == b1 && c.C() == c1 {
		t.Fatalf("gains did not change after Retune with a different period")
	}
	if c.PeriodFrames != 128 {
		t.Fatalf("PeriodFrames = %d, want 128", c.PeriodFrames)
	}
}

func TestResetDiscardsPhaseError(t *testing.T) {
	var c Clock
	c.Init(256, sampleRate, 0, 0)
	c.AdvanceSmooth(50_000_000) // large error, far from prediction

	c.Reset(99_000, 12345)
	if c.NextTime != 99_000 || c.NextPosition != 12345 {
		t.Fatalf("Reset did not re-anchor: NextTime=%d NextPosition=%d", c.NextTime, c.NextPosition)
	}

	// Immediately after Reset, feeding the now-current prediction back in
	// should read as zero error, proving the old phase error was discarded.
	errSec := c.AdvanceSmooth(99_000)
	if errSec != 0 {
		t.Fatalf("error after Reset = %v, want 0", errSec)
	}
}

func TestSampleRateMatchesConstruction(t *testing.T) {
	var c Clock
	c.Init(480, sampleRate, 0, 0)
	if got := c.SampleRate(); got < sampleRate-0.001 || got > sampleRate+0.001 {
		t.Fatalf("SampleRate() = %v, want ~%v", got, sampleRate)
	}
}
