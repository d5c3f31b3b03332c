// Package collab defines the interfaces the orchestrator (cmd/spicy-kvm)
// uses to talk to the external collaborators the core audio engine does not
// own: the SPICE protocol client, the evdev input-grabbing subsystem, and
// the I²C/DDC-CI monitor switcher. Per spec.md §1 these are each "specified
// only via the interface it consumes or exposes" — this package is that
// specification, plus a no-op double of each for tests and headless runs
// where the real collaborator isn't wired up yet.
package collab

import "log"

// GuestAudioSink is the interface the virtualization protocol client
// implements so the orchestrator can deliver guest-bound playback timing
// events (not audio data — that flows the other way, guest to host, via
// audioengine.Engine.PlaybackData); latency reports are the only such
// event.
type GuestAudioSink interface {
	// NotifyLatency forwards a latency report upstream, e.g. for a guest
	// driver that exposes it to the VM user.
	NotifyLatency(currentOffsetMS, deviceLatencyMS, totalLatencyMS float64)
}

// InputGrabber exclusively grabs the host keyboard and pointer while active,
// forwarding their events to the guest instead of the host desktop. The
// hot-key that toggles grabbing is handled by the orchestrator, not here;
// Grab/Release just control device ownership.
type InputGrabber interface {
	// Grab exclusively acquires the configured input devices. It is an
	// error to call Grab while already grabbed.
	Grab() error
	// Release returns the devices to the host. Idempotent.
	Release() error
	// Grabbed reports whether devices are currently grabbed.
	Grabbed() bool
}

// MonitorSwitcher switches the physical monitor's active input source over
// the DDC-CI control bus, e.g. so a single monitor can be shared between
// the host desktop and the guest's own output.
type MonitorSwitcher interface {
	// SwitchTo sets VCP feature 0x60 (input source select) to input.
	SwitchTo(input int) error
}

// NoopGuestAudioSink discards latency notifications. Useful when no
// upstream channel for them has been wired up yet.
type NoopGuestAudioSink struct{}

func (NoopGuestAudioSink) NotifyLatency(currentOffsetMS, deviceLatencyMS, totalLatencyMS float64) {}

// LoggingGuestAudioSink logs every latency notification with log.Printf
// instead of discarding it — handy for a headless run with no VM driver
// attached yet.
type LoggingGuestAudioSink struct{}

func (LoggingGuestAudioSink) NotifyLatency(currentOffsetMS, deviceLatencyMS, totalLatencyMS float64) {
	log.Printf("[latency] offset=%.2fms device=%.2fms total=%.2fms", currentOffsetMS, deviceLatencyMS, totalLatencyMS)
}

// NoopInputGrabber never actually grabs anything; Grabbed always reports
// the last requested state. Used for tests and for running the audio path
// standalone without evdev access.
type NoopInputGrabber struct {
	grabbed bool
}

func (g *NoopInputGrabber) Grab() error {
	g.grabbed = true
	return nil
}

func (g *NoopInputGrabber) Release() error {
	g.grabbed = false
	return nil
}

func (g *NoopInputGrabber) Grabbed() bool { return g.grabbed }

// NoopMonitorSwitcher accepts SwitchTo calls without touching any hardware.
type NoopMonitorSwitcher struct{}

func (NoopMonitorSwitcher) SwitchTo(input int) error { return nil }
