package audioengine

import (
	"sync"
	"time"
)

const recordPullFrames = 480 // 10ms @ 48kHz; matches the default playback period order of magnitude

// RecordStart opens the capture path and begins forwarding microphone audio
// to the guest. If capture is already running with the same format, this is
// a no-op.
func (e *Engine) RecordStart(sourceHint string, channels, sampleRate int) error {
	channels = clampChannels(channels)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record.started && channels == e.record.lastChannels && sampleRate == e.record.lastSampleRate {
		return nil
	}
	if e.record.started {
		e.recordStopLocked()
	}

	if err := e.device.RecordStart(sourceHint, channels, sampleRate); err != nil {
		return err
	}
	e.record.started = true
	e.record.requested = true
	e.record.lastChannels = channels
	e.record.lastSampleRate = sampleRate

	// The reference implementation's record-start path gates on whether a
	// record volume was ever stored, but then applies the *playback*
	// channel volume array to the capture device instead of the record
	// one — almost certainly a copy-paste bug in the original, but a guest
	// that has already set a record volume would see it silently
	// overridden. Faithfully reproduced rather than "fixed": changing it
	// would make this binding observably diverge from every other client
	// the guest driver has ever talked to.
	if e.record.volumeChannels > 0 {
		e.device.RecordSetVolume(volumesToLinear(e.volume[:e.volumeChannels]))
	}
	e.device.RecordSetMute(e.record.mute)

	e.record.stopCh = make(chan struct{})
	e.record.wg.Add(1)
	go e.recordLoop(e.record.stopCh, &e.record.wg, channels)

	return nil
}

// RecordStop closes the capture path.
func (e *Engine) RecordStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordStopLocked()
}

// recordStopLocked is the shared teardown used by RecordStop and Free. The
// caller must hold e.mu.
func (e *Engine) recordStopLocked() error {
	if !e.record.started {
		return nil
	}
	close(e.record.stopCh)
	e.record.wg.Wait()
	e.record.started = false
	e.record.requested = false
	return e.device.RecordStop()
}

// RecordVolume stores the capture-side per-channel volume and applies it
// immediately if capture is active.
func (e *Engine) RecordVolume(volume []uint16) {
	n := clampChannels(len(volume))
	if n > len(volume) {
		n = len(volume)
	}

	e.mu.Lock()
	copy(e.record.volume[:], volume[:n])
	e.record.volumeChannels = n
	started := e.record.started
	e.mu.Unlock()

	if !started {
		return
	}
	e.device.RecordSetVolume(volumesToLinear(volume[:n]))
}

// RecordMute stores and, if active, applies the capture mute state.
func (e *Engine) RecordMute(mute bool) {
	e.mu.Lock()
	e.record.mute = mute
	started := e.record.started
	e.mu.Unlock()

	if !started {
		return
	}
	e.device.RecordSetMute(mute)
}

// recordLoop pulls captured audio from the device and forwards it verbatim
// to the guest sink until stopCh is closed. It owns no engine state besides
// the device and sink handles, so it needs no synchronization with the
// playback producer/consumer paths.
func (e *Engine) recordLoop(stopCh <-chan struct{}, wg *sync.WaitGroup, channels int) {
	defer wg.Done()

	buf := make([]int16, recordPullFrames*channels)
	pcm := make([]byte, len(buf)*2)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n := e.device.RecordPull(buf, recordPullFrames)
		if n == 0 {
			// A real device binding blocks inside RecordPull until frames
			// are available; this only matters for test doubles that
			// return immediately.
			time.Sleep(time.Millisecond)
			continue
		}

		samples := n * channels
		for i := 0; i < samples; i++ {
			v := uint16(buf[i])
			pcm[2*i] = byte(v)
			pcm[2*i+1] = byte(v >> 8)
		}
		e.recordSink.WriteRecordedAudio(pcm[:samples*2])
	}
}
