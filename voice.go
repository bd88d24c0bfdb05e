package main

type VoiceState int

const (
	VoiceStarting VoiceState = iota
	VoiceSustaining
	VoiceReleasing
	VoiceDisposed
)

const (
	voicePeak = 0.5

	// effect glide time constants, seconds
	vibratoSwellTau = 0.6
	filterToggleTau = 0.25
	distortTau      = 0.1
	sendTau         = 0.3

	closedCutoff  = 120.0
	reverbSendMax = 0.8
	reverbSendDry = 0.04

	shaperDrive = 8.0

	// oscillators keep running slightly past the release ramp so the tail
	// never truncates audibly
	disposeMargin = 0.1
)

// Voice is one sounding note: an oscillator pair, vibrato LFO, waveshaper,
// lowpass filter, amplitude envelope and a reverb send. It owns its whole
// signal chain; nothing outside the engine registry holds a reference to it.
type Voice struct {
	state VoiceState

	cfg      SynthConfig
	freq     float64
	velocity float64

	osc1, osc2 *Osc
	lfo        *LFO
	vibDepth   *ramp // Hz deviation applied by the LFO
	shaper     *Shaper
	filter     *Butterworth
	send       *ramp

	amp           float64
	attackStep    float64
	sustainLevel  float64
	decayCoef     float64
	releaseCoef   float64
	releaseRemain int
}

func newVoice(freq, velocity float64, cfg SynthConfig, effects EffectSet) *Voice {
	v := &Voice{
		state:    VoiceStarting,
		cfg:      cfg,
		freq:     freq,
		velocity: velocity, // reserved, not yet mapped to loudness

		osc1: newOsc(cfg.Osc1, 0.5),
		osc2: newOsc(cfg.Osc2, 0.5),
		lfo:  newLFO(cfg.VibratoRate),

		vibDepth: newRamp(0, vibratoSwellTau),
		shaper:   NewShaper(shaperDrive, effects[EffectDistort], distortTau),

		attackStep:   voicePeak / (cfg.Attack * sampleRate),
		sustainLevel: cfg.Sustain * voicePeak,
		decayCoef:    rampCoef(cfg.Decay / 3),
		releaseCoef:  rampCoef(cfg.Release / 4),
	}

	if effects[EffectVibrato] {
		v.vibDepth.setTarget(cfg.VibratoDepth)
	}

	v.filter = NewButterworth(cfg.Cutoff, cfg.Resonance, cfg.Decay)
	if effects[EffectFilterClose] {
		// pinned low from the start, no sweep
		v.filter.PinCutoff(closedCutoff)
	} else {
		v.filter.RampCutoff(cfg.Cutoff/2, cfg.Decay)
	}

	sendLevel := reverbSendDry
	if effects[EffectReverbMax] {
		sendLevel = reverbSendMax
	}
	v.send = newRamp(sendLevel, sendTau)

	return v
}

// UpdateEffects retargets the live parameter ramps. Safe to call any number
// of times while the voice is sustaining or releasing.
func (v *Voice) UpdateEffects(effects EffectSet) {
	if v.state == VoiceDisposed {
		return
	}

	if effects[EffectVibrato] {
		v.vibDepth.setTarget(v.cfg.VibratoDepth)
	} else {
		v.vibDepth.setTarget(0)
	}

	if effects[EffectFilterClose] {
		v.filter.RampCutoff(closedCutoff, filterToggleTau)
	} else {
		v.filter.RampCutoff(v.cfg.Cutoff/2, filterToggleTau)
	}

	v.shaper.SetActive(effects[EffectDistort])

	if effects[EffectReverbMax] {
		v.send.setTarget(reverbSendMax)
	} else {
		v.send.setTarget(reverbSendDry)
	}
}

// Release begins the fade-out. The ramp starts from whatever amplitude the
// envelope currently holds, so there is no discontinuity, and calling it
// again is a no-op.
func (v *Voice) Release() {
	if v.state == VoiceReleasing || v.state == VoiceDisposed {
		return
	}
	v.state = VoiceReleasing
	v.releaseRemain = int((v.cfg.Release + disposeMargin) * sampleRate)
}

// Dispose tears the voice down immediately. Idempotent.
func (v *Voice) Dispose() {
	v.state = VoiceDisposed
}

func (v *Voice) State() VoiceState {
	return v.state
}

func (v *Voice) Done() bool {
	return v.state == VoiceDisposed
}

func (v *Voice) envStep() float64 {
	switch v.state {
	case VoiceStarting:
		v.amp += v.attackStep
		if v.amp >= voicePeak {
			v.amp = voicePeak
			v.state = VoiceSustaining
		}
	case VoiceSustaining:
		v.amp += (v.sustainLevel - v.amp) * v.decayCoef
	case VoiceReleasing:
		v.amp -= v.amp * v.releaseCoef
		v.releaseRemain--
		if v.releaseRemain <= 0 {
			v.state = VoiceDisposed
		}
	case VoiceDisposed:
		return 0
	}
	return v.amp
}

// Mix renders one block, adding the dry signal into out and the reverb-send
// signal into send. Returns false once the voice is disposed.
func (v *Voice) Mix(out, send [][2]float64) bool {
	if v.state == VoiceDisposed {
		return false
	}

	v.filter.Tick(len(out))

	for i := range out {
		if v.state == VoiceDisposed {
			break
		}

		dev := v.vibDepth.step() * v.lfo.Sample()
		f := v.freq + dev

		x := (v.osc1.Sample(f) + v.osc2.Sample(f)) * 0.5
		x = v.shaper.ProcessSample(x)
		x = v.filter.ProcessSample(x)
		x *= v.envStep()

		s := v.send.step()

		out[i][0] += x
		out[i][1] += x
		send[i][0] += x * s
		send[i][1] += x * s
	}

	return v.state != VoiceDisposed
}
