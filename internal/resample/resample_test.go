package resample

import "testing"

func TestUnityRatioPassesThroughApproximately(t *testing.T) {
	c := New(1)
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]float32, 8)
	consumed, generated := c.Process(in, len(in), 1.0, out, len(out))

	if generated == 0 {
		t.Fatalf("generated = 0, want > 0")
	}
	if consumed == 0 {
		t.Fatalf("consumed = 0, want > 0")
	}
	// At unity ratio each output sample should be close to the
	// corresponding input sample (allowing for the one-sample interpolation
	// lag introduced by carrying the previous frame).
	for i := 1; i < generated && i < len(in); i++ {
		got := out[i]
		want := in[i-1]
		if diff := got - want; diff > 0.01 || diff < -0.01 {
			t.Fatalf("out[%d] = %v, want ~%v", i, got, want)
		}
	}
}

func TestConsumedNeverExceedsInput(t *testing.T) {
	c := New(2)
	in := make([]float32, 20) // 10 frames, 2 channels
	out := make([]float32, 200)
	consumed, _ := c.Process(in, 10, 1.0, out, 100)
	if consumed > 10 {
		t.Fatalf("consumed = %d, want <= 10", consumed)
	}
}

func TestGeneratedNeverExceedsOutputCapacity(t *testing.T) {
	c := New(1)
	in := make([]float32, 1000)
	out := make([]float32, 5)
	_, generated := c.Process(in, 1000, 1.0, out, 5)
	if generated > 5 {
		t.Fatalf("generated = %d, want <= 5", generated)
	}
}

func TestUpsamplingProducesMoreOutputThanInput(t *testing.T) {
	c := New(1)
	in := make([]float32, 10)
	for i := range in {
		in[i] = float32(i)
	}
	out := make([]float32, 100)
	consumed, generated := c.Process(in, 10, 2.0, out, 100)
	if generated <= consumed {
		t.Fatalf("generated = %d, consumed = %d; want generated > consumed when upsampling", generated, consumed)
	}
}

func TestDownsamplingProducesLessOutputThanInput(t *testing.T) {
	c := New(1)
	in := make([]float32, 100)
	for i := range in {
		in[i] = float32(i)
	}
	out := make([]float32, 100)
	consumed, generated := c.Process(in, 100, 0.5, out, 100)
	if generated >= consumed {
		t.Fatalf("generated = %d, consumed = %d; want generated < consumed when downsampling", generated, consumed)
	}
}

func TestStateCarriesAcrossCallsWithoutGapOrRepeat(t *testing.T) {
	c := New(1)
	full := make([]float32, 40)
	for i := range full {
		full[i] = float32(i)
	}

	var allOut []float32
	pos := 0
	for pos < len(full) {
		chunk := full[pos:]
		if len(chunk) > 7 {
			chunk = chunk[:7] // feed in small, unevenly-sized chunks
		}
		out := make([]float32, 64)
		consumed, generated := c.Process(chunk, len(chunk), 1.0, out, len(out))
		allOut = append(allOut, out[:generated]...)
		if consumed == 0 {
			break // not enough input to make progress; stop feeding
		}
		pos += consumed
	}

	if len(allOut) == 0 {
		t.Fatalf("produced no output across chunked calls")
	}
	// Output should be monotonically increasing (since input is
	// monotonically increasing and ratio is 1): no large backward jump.
	for i := 1; i < len(allOut); i++ {
		if allOut[i] < allOut[i-1]-0.01 {
			t.Fatalf("output not monotonic at %d: %v then %v", i, allOut[i-1], allOut[i])
		}
	}
}

func TestResetClearsCarriedState(t *testing.T) {
	c := New(1)
	in := []float32{10, 20, 30}
	out := make([]float32, 8)
	c.Process(in, len(in), 1.0, out, len(out))

	c.Reset()
	if c.frac != 0 || c.primed {
		t.Fatalf("Reset did not clear state: frac=%v primed=%v", c.frac, c.primed)
	}
	for _, v := range c.last {
		if v != 0 {
			t.Fatalf("Reset did not clear last frame: %v", c.last)
		}
	}
}
