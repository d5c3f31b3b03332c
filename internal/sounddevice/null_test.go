package sounddevice_test

import (
	"testing"

	"github.com/pgaskin/spicy-kvm/internal/sounddevice"
)

func TestNullDeviceSetup(t *testing.T) {
	d := sounddevice.NewNull()
	maxPeriod, startFrames, err := d.Setup("", 2, 48000, 256)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if maxPeriod != 256 {
		t.Errorf("expected maxPeriod 256, got %d", maxPeriod)
	}
	if startFrames != 512 {
		t.Errorf("expected startFrames 512, got %d", startFrames)
	}
}

func TestNullDevicePullIsSilence(t *testing.T) {
	d := sounddevice.NewNull()
	d.Setup("", 2, 48000, 256)

	dst := make([]float32, 256*2)
	for i := range dst {
		dst[i] = 1
	}
	n := d.Pull(dst, 256)
	if n != 256 {
		t.Fatalf("expected 256 frames, got %d", n)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestNullDeviceRecordPullIsSilence(t *testing.T) {
	d := sounddevice.NewNull()
	d.Setup("", 1, 48000, 256)

	dst := make([]int16, 256)
	for i := range dst {
		dst[i] = 1
	}
	n := d.RecordPull(dst, 256)
	if n != 256 {
		t.Fatalf("expected 256 frames, got %d", n)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestNullDeviceLifecycleNoop(t *testing.T) {
	d := sounddevice.NewNull()
	d.Setup("", 2, 48000, 256)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drained := false
	if err := d.Stop(func() { drained = true }); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !drained {
		t.Error("expected onDrained to be called")
	}
	if d.Latency() != 0 {
		t.Errorf("expected 0 latency, got %d", d.Latency())
	}
	d.SetVolume([]float32{1, 1})
	d.SetMute(true)
	if err := d.RecordStart("", 1, 48000); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if err := d.RecordStop(); err != nil {
		t.Fatalf("RecordStop: %v", err)
	}
}
