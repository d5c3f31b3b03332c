package sounddevice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pgaskin/spicy-kvm/internal/sounddevice"
)

type fakeSource struct {
	channels int
}

func (f *fakeSource) Pull(dst []float32, maxFrames int) int {
	for i := range dst[:maxFrames*f.channels] {
		dst[i] = 0
	}
	return maxFrames
}

func TestOpusCaptureTapWritesFile(t *testing.T) {
	src := &fakeSource{channels: 1}
	path := filepath.Join(t.TempDir(), "tap.opus")

	tap, err := sounddevice.NewOpusCaptureTap(src, path, 1, 48000)
	if err != nil {
		t.Fatalf("NewOpusCaptureTap: %v", err)
	}

	buf := make([]float32, 960)
	// 960 samples @ 48kHz = 20ms, one full Opus frame; feed a handful of
	// periods so at least one frame gets flushed to disk.
	for i := 0; i < 5; i++ {
		n := tap.Pull(buf, 960)
		if n != 960 {
			t.Fatalf("Pull: got %d frames, want 960", n)
		}
	}

	if err := tap.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat tap file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected the tap file to contain at least one encoded frame")
	}
}
