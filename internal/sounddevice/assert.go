package sounddevice

import "github.com/pgaskin/spicy-kvm/internal/audioengine"

var (
	_ audioengine.SoundDevice = (*Device)(nil)
	_ audioengine.SoundDevice = (*NullDevice)(nil)
	_ PullSource              = (*OpusCaptureTap)(nil)
)
