// Command spicy-kvm is the headless SPICE client orchestrator: it loads
// persistent configuration, wires the audio engine to a real sound device
// and (optionally) a diagnostics websocket, and runs until interrupted.
//
// The SPICE protocol client, evdev input grabbing, and DDC-CI monitor
// switching are out of scope for this repository (see spec.md §1); this
// binary wires the Go interfaces they'd be driven through
// (internal/collab) to no-op doubles so the audio engine — this
// repository's actual subject — can be exercised end to end.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgaskin/spicy-kvm/internal/audioengine"
	"github.com/pgaskin/spicy-kvm/internal/collab"
	"github.com/pgaskin/spicy-kvm/internal/config"
	"github.com/pgaskin/spicy-kvm/internal/diagnostics"
	"github.com/pgaskin/spicy-kvm/internal/sounddevice"
)

func main() {
	periodSize := flag.Int("period-size", 0, "requested device period in samples (0 = use config/default)")
	bufferLatencyMS := flag.Int("buffer-latency-ms", -1, "extra configurable buffer latency in ms (-1 = use config/default)")
	sinkName := flag.String("sink", "", "playback sink name (empty = config/device default)")
	sourceName := flag.String("source", "", "capture source name (empty = config/device default)")
	diagAddr := flag.String("diagnostics-addr", "", "diagnostics websocket listen address (empty = use config, \"off\" to disable)")
	captureTap := flag.String("capture-tap", "", "path to write an Opus-encoded diagnostic capture of playback output (empty = disabled)")
	flag.Parse()

	cfg := config.Load()
	if *periodSize > 0 {
		cfg.PeriodSize = *periodSize
	}
	if *bufferLatencyMS >= 0 {
		cfg.BufferLatencyMS = *bufferLatencyMS
	}
	if *sinkName != "" {
		cfg.SinkName = *sinkName
	}
	if *sourceName != "" {
		cfg.SourceName = *sourceName
	}
	if *diagAddr != "" {
		cfg.DiagnosticsAddr = *diagAddr
	}
	if *captureTap != "" {
		cfg.CaptureTapPath = *captureTap
	}

	dev := sounddevice.New()
	sink := collab.LoggingGuestAudioSink{}

	var diagSrv *diagnostics.Server
	if cfg.DiagnosticsAddr != "" && cfg.DiagnosticsAddr != "off" {
		diagSrv = diagnostics.New(cfg.DiagnosticsAddr, 4)
		go func() {
			if err := diagSrv.ListenAndServe(); err != nil {
				log.Printf("[spicy-kvm] diagnostics server stopped: %v", err)
			}
		}()
	}

	eng := audioengine.New(dev, recordSinkAdapter{})
	eng.Init(audioengine.Options{
		PeriodSize:      cfg.PeriodSize,
		BufferLatencyMS: cfg.BufferLatencyMS,
		SinkHint:        cfg.SinkName,
		SourceHint:      cfg.SourceName,
		LatencyCallback: latencyCallback(sink, diagSrv, eng),
	})

	var source sounddevice.PullSource = eng
	if cfg.CaptureTapPath != "" {
		tap, err := sounddevice.NewOpusCaptureTap(eng, cfg.CaptureTapPath, 2, 48000)
		if err != nil {
			log.Printf("[spicy-kvm] capture tap disabled: %v", err)
		} else {
			defer tap.Close()
			source = tap
		}
	}
	dev.SetSource(source)

	if cfg.MonitorSwitchEnabled {
		log.Printf("[spicy-kvm] monitor switching requested (input=0x%02x) but no DDC-CI backend is wired into this build; see internal/collab.MonitorSwitcher", cfg.MonitorSwitchInput)
	}

	log.Printf("[spicy-kvm] ready: period_size=%d buffer_latency_ms=%d", cfg.PeriodSize, cfg.BufferLatencyMS)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Printf("[spicy-kvm] shutting down")
	eng.Free()
	if diagSrv != nil {
		diagSrv.Close()
	}
}

// latencyCallback bridges the engine's per-cycle LatencyReport to the
// diagnostics websocket (if enabled) and the guest notification sink.
func latencyCallback(sink collab.GuestAudioSink, diagSrv *diagnostics.Server, eng *audioengine.Engine) func(audioengine.LatencyReport) {
	return func(r audioengine.LatencyReport) {
		sink.NotifyLatency(r.CurrentOffsetMS, r.DeviceLatencyMS, r.TotalLatencyMS)
		if diagSrv == nil {
			return
		}
		diagSrv.Publish(diagnostics.Snapshot{
			CurrentOffsetMS: r.CurrentOffsetMS,
			DeviceLatencyMS: r.DeviceLatencyMS,
			TotalLatencyMS:  r.TotalLatencyMS,
			RecentTotalsMS:  eng.Timings(),
		})
	}
}

// recordSinkAdapter discards captured microphone audio. A real build wires
// this to the SPICE record channel; that channel is out of scope here (see
// spec.md §1), so this is the orchestrator's no-op placeholder.
type recordSinkAdapter struct{}

func (recordSinkAdapter) WriteRecordedAudio(pcm []byte) {}
