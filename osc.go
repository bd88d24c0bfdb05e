package main

import (
	"fmt"
	"math"
)

const sampleRate = 44100

type OscFunc func(float64) float64

// Waveform is the closed set of oscillator shapes a theme may pick from.
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveSawtooth Waveform = "sawtooth"
	WaveTriangle Waveform = "triangle"
)

func (w Waveform) valid() bool {
	switch w {
	case WaveSine, WaveSquare, WaveSawtooth, WaveTriangle:
		return true
	}
	return false
}

func sineOsc(phase float64) float64 {
	return math.Sin(2 * math.Pi * phase)
}

func sawOsc(ph float64) float64 {
	_, phase := math.Modf(ph)
	return (2 * phase) - 1
}

// softened square, avoids the harsh edge of a hard sign flip
func squareOsc(phase float64) float64 {
	value := math.Sin(2*math.Pi*phase) * 5
	if value > 1 {
		value = 1
	} else if value < -1 {
		value = -1
	}
	return value
}

func triangleOsc(ph float64) float64 {
	_, phase := math.Modf(ph)
	return 1 - 4*math.Abs(phase-0.5)
}

func oscFuncFor(w Waveform) (OscFunc, error) {
	switch w {
	case WaveSine:
		return sineOsc, nil
	case WaveSquare:
		return squareOsc, nil
	case WaveSawtooth:
		return sawOsc, nil
	case WaveTriangle:
		return triangleOsc, nil
	default:
		return nil, fmt.Errorf("unknown waveform %q", w)
	}
}

// Osc is a single oscillator with a phase accumulator. Frequency is read
// fresh every sample so a vibrato LFO can wobble it without clicks.
type Osc struct {
	sampleRate float64
	amplitude  float64

	fn    OscFunc
	phase float64
}

func newOsc(w Waveform, amp float64) *Osc {
	fn, err := oscFuncFor(w)
	if err != nil {
		fn = sineOsc
	}
	return &Osc{
		sampleRate: sampleRate,
		amplitude:  amp,
		fn:         fn,
	}
}

// Sample advances the oscillator one step at the given frequency.
func (o *Osc) Sample(freq float64) float64 {
	_, o.phase = math.Modf(o.phase + freq/o.sampleRate)
	return o.fn(o.phase) * o.amplitude
}

// LFO is a slow sine used for pitch modulation.
type LFO struct {
	sampleRate float64
	rate       float64
	phase      float64
}

func newLFO(rate float64) *LFO {
	return &LFO{sampleRate: sampleRate, rate: rate}
}

func (l *LFO) Sample() float64 {
	_, l.phase = math.Modf(l.phase + l.rate/l.sampleRate)
	return math.Sin(2 * math.Pi * l.phase)
}
