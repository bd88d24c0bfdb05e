package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

type voiceKey struct {
	participant string
	degree      int
}

// Engine owns the master signal bus and the registry of live voices, keyed by
// (participant, degree). It is the single beep.Streamer handed to the
// speaker; every voice mixes through it.
//
// Control calls (NoteOn/NoteOff/UpdateUserEffects) can come from the input
// loop and the reconciliation loop, so registry access is mutex guarded. The
// audio goroutine takes the same lock in Stream; all work inside is
// per-sample arithmetic, nothing blocks.
type Engine struct {
	lk sync.Mutex

	voices   map[voiceKey]*Voice
	draining []*Voice

	reverb     *Reverb
	comp       *Compressor
	masterGain float64

	sendbuf [][2]float64

	monitor *Recorder

	started bool
}

const monitorWindow = 8192

func NewEngine() *Engine {
	e := &Engine{
		voices:     make(map[voiceKey]*Voice),
		reverb:     NewReverb(),
		comp:       NewCompressor(0.7, 0.6, 0.01, 0.0005),
		masterGain: 0.85,
	}
	e.monitor = NewRecorder(e, monitorWindow)
	return e
}

// Monitor is the master bus tap the rendering surface polls.
func (e *Engine) Monitor() *Recorder {
	return e.monitor
}

// Init opens the audio output and starts pulling samples through the master
// bus. Calling it again is a no-op.
func (e *Engine) Init() error {
	e.lk.Lock()
	defer e.lk.Unlock()

	if e.started {
		return nil
	}

	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/20)); err != nil {
		return fmt.Errorf("initializing speaker: %w", err)
	}
	speaker.Play(e.monitor)
	e.started = true

	return nil
}

// resume makes sure the output device is actually running before a note can
// sound. Harmless if the speaker was never suspended.
func (e *Engine) resume() {
	e.lk.Lock()
	started := e.started
	e.lk.Unlock()
	if !started {
		return
	}
	if err := speaker.Resume(); err != nil {
		slog.Warn("resuming audio output", "err", err)
	}
}

// NoteOn starts a voice for (participant, degree). If one is already running
// for that key it is released and replaced, never mutated into the new pitch.
func (e *Engine) NoteOn(participant string, degree int, freq, velocity float64, cfg SynthConfig, effects EffectSet) {
	e.resume()

	e.lk.Lock()
	defer e.lk.Unlock()

	key := voiceKey{participant, degree}
	if old, ok := e.voices[key]; ok {
		old.Release()
		e.draining = append(e.draining, old)
	}

	e.voices[key] = newVoice(freq, velocity, cfg, effects)
}

// NoteOff releases and deregisters the voice if present. Releasing a degree
// that is not sounding is a no-op.
func (e *Engine) NoteOff(participant string, degree int) {
	e.lk.Lock()
	defer e.lk.Unlock()

	key := voiceKey{participant, degree}
	v, ok := e.voices[key]
	if !ok {
		return
	}

	v.Release()
	delete(e.voices, key)
	e.draining = append(e.draining, v)
}

// UpdateUserEffects pushes the effect set to every running voice owned by the
// participant. Draining voices keep fading with their old settings.
func (e *Engine) UpdateUserEffects(participant string, effects EffectSet) {
	e.lk.Lock()
	defer e.lk.Unlock()

	for key, v := range e.voices {
		if key.participant == participant {
			v.UpdateEffects(effects)
		}
	}
}

// ReleaseParticipant cuts every voice a departing participant still holds.
func (e *Engine) ReleaseParticipant(participant string) {
	e.lk.Lock()
	defer e.lk.Unlock()

	for key, v := range e.voices {
		if key.participant != participant {
			continue
		}
		v.Release()
		delete(e.voices, key)
		e.draining = append(e.draining, v)
	}
}

// ReleaseAll releases every voice; used on session teardown.
func (e *Engine) ReleaseAll() {
	e.lk.Lock()
	defer e.lk.Unlock()

	for key, v := range e.voices {
		v.Release()
		delete(e.voices, key)
		e.draining = append(e.draining, v)
	}
}

// Holding reports whether a voice is registered for (participant, degree).
func (e *Engine) Holding(participant string, degree int) bool {
	e.lk.Lock()
	defer e.lk.Unlock()

	_, ok := e.voices[voiceKey{participant, degree}]
	return ok
}

// VoiceCount returns the number of registered (non-draining) voices.
func (e *Engine) VoiceCount() int {
	e.lk.Lock()
	defer e.lk.Unlock()

	return len(e.voices)
}

// Stream renders the master bus: dry voice mix plus the shared reverb fed
// from the per-voice sends, through the compressor and master gain. Voices
// that finish their release are pruned here, which also cancels any pending
// disposal for voices replaced earlier.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.lk.Lock()
	defer e.lk.Unlock()

	for i := range samples {
		samples[i][0] = 0
		samples[i][1] = 0
	}

	if len(e.sendbuf) < len(samples) {
		e.sendbuf = make([][2]float64, len(samples))
	}
	send := e.sendbuf[:len(samples)]
	for i := range send {
		send[i][0] = 0
		send[i][1] = 0
	}

	for key, v := range e.voices {
		if !v.Mix(samples, send) {
			// a voice only disposes from the registry if it was never
			// released, which should not happen; log and drop it
			slog.Debug("registered voice disposed in place", "participant", key.participant, "degree", key.degree)
			delete(e.voices, key)
		}
	}

	live := e.draining[:0]
	for _, v := range e.draining {
		if v.Mix(samples, send) {
			live = append(live, v)
		} else {
			v.Dispose()
		}
	}
	e.draining = live

	e.reverb.ProcessBuffer(send)
	for i := range samples {
		samples[i][0] += send[i][0]
		samples[i][1] += send[i][1]
	}

	e.comp.ProcessSample(samples)

	for i := range samples {
		samples[i][0] *= e.masterGain
		samples[i][1] *= e.masterGain
	}

	return len(samples), true
}

func (e *Engine) Err() error {
	return nil
}
