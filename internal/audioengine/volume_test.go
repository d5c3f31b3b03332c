package audioengine

import "testing"

func TestVolumeToLinearBounds(t *testing.T) {
	if g := volumeToLinear(0); g < 0 || g > 0.01 {
		t.Errorf("volumeToLinear(0) = %v, want near-silent", g)
	}
	if g := volumeToLinear(65535); g < 0.99 || g > 1.01 {
		t.Errorf("volumeToLinear(65535) = %v, want near unity gain", g)
	}
}

func TestVolumeToLinearMonotonic(t *testing.T) {
	prev := volumeToLinear(0)
	for _, v := range []uint16{1, 100, 1000, 10000, 30000, 50000, 65535} {
		g := volumeToLinear(v)
		if g < prev {
			t.Fatalf("volumeToLinear(%d) = %v is less than volumeToLinear of a smaller value (%v)", v, g, prev)
		}
		prev = g
	}
}

func TestVolumesToLinearLength(t *testing.T) {
	out := volumesToLinear([]uint16{0, 32768, 65535})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
}
