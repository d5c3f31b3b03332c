package audioengine

import (
	"testing"
	"time"
)

func TestRecordStart_ForwardsCapturedAudioToSink(t *testing.T) {
	dev := &fakeDevice{}
	sink := &fakeRecordSink{}
	e := New(dev, sink)
	e.Init(Options{})

	dev.recordPulls = [][]int16{{100, -100}}
	if err := e.RecordStart("", 1, 48000); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.pcm)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := e.RecordStop(); err != nil {
		t.Fatalf("RecordStop: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.pcm) == 0 {
		t.Fatal("expected at least one forwarded PCM chunk")
	}
	got := sink.pcm[0]
	if len(got) != 4 {
		t.Fatalf("len(pcm) = %d, want 4 (2 frames * 2 bytes)", len(got))
	}
	// little-endian int16(100), then int16(-100)
	if got[0] != 100 || got[1] != 0 {
		t.Errorf("first sample bytes = %v, want [100 0]", got[:2])
	}
}

func TestRecordStart_SameFormatIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	e := New(dev, &fakeRecordSink{})
	e.Init(Options{})

	if err := e.RecordStart("", 2, 48000); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if err := e.RecordStart("", 2, 48000); err != nil {
		t.Fatalf("RecordStart (reuse): %v", err)
	}
	e.RecordStop()

	start, _ := dev.recordCalls()
	if start != 1 {
		t.Errorf("RecordStart called on the device %d times, want 1", start)
	}
}

// TestRecordStart_AppliesPlaybackVolumeNotRecordVolume pins down the
// faithfully-reproduced behavior: RecordStart applies whatever playback
// volume is currently stored, not the record volume, even if a record
// volume was already set.
func TestRecordStart_AppliesPlaybackVolumeNotRecordVolume(t *testing.T) {
	dev := &fakeDevice{}
	e := New(dev, &fakeRecordSink{})
	e.Init(Options{})

	e.PlaybackVolume([]uint16{65535, 65535})
	e.RecordVolume([]uint16{0, 0})

	if err := e.RecordStart("", 2, 48000); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	defer e.RecordStop()

	if len(dev.recordVolume) != 2 {
		t.Fatalf("recordVolume len = %d, want 2", len(dev.recordVolume))
	}
	for i, g := range dev.recordVolume {
		if g < 0.99 {
			t.Errorf("recordVolume[%d] = %v, want ~unity gain (the playback volume array, not the muted record one)", i, g)
		}
	}
}

func TestRecordMute_AppliesWhileActive(t *testing.T) {
	dev := &fakeDevice{}
	e := New(dev, &fakeRecordSink{})
	e.Init(Options{})

	if err := e.RecordStart("", 1, 48000); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	defer e.RecordStop()

	e.RecordMute(true)
	if !dev.recordMuted {
		t.Error("expected the device to be muted")
	}
}

func TestRecordMute_IgnoredWhileInactive(t *testing.T) {
	dev := &fakeDevice{}
	e := New(dev, &fakeRecordSink{})
	e.Init(Options{})

	e.RecordMute(true)
	if dev.recordMuted {
		t.Error("expected no device call while capture isn't active")
	}
}
