package main

import "math"

// ramp smooths a control value toward a target with an exponential approach.
// Short time constants (0.1-0.6s) make effect toggles audible as a glide
// instead of a click.
type ramp struct {
	value  float64
	target float64
	coef   float64
}

func newRamp(initial, tau float64) *ramp {
	return &ramp{
		value:  initial,
		target: initial,
		coef:   rampCoef(tau),
	}
}

func rampCoef(tau float64) float64 {
	if tau <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(sampleRate*tau))
}

func (r *ramp) setTarget(v float64) {
	r.target = v
}

// jump moves the value immediately, cancelling any ramp in progress.
func (r *ramp) jump(v float64) {
	r.value = v
	r.target = v
}

func (r *ramp) step() float64 {
	r.value += (r.target - r.value) * r.coef
	return r.value
}

func (r *ramp) done() bool {
	return math.Abs(r.value-r.target) < 1e-5
}

// Butterworth is a two-pole lowpass. Cutoff changes go through a ramp and
// coefficients are refreshed per control block rather than per sample.
type Butterworth struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64

	q      float64
	cutoff *ramp
}

func NewButterworth(cutoffFreq, q float64, tau float64) *Butterworth {
	if q < 0.707 {
		q = 0.707
	}
	b := &Butterworth{
		q:      q,
		cutoff: newRamp(cutoffFreq, tau),
	}
	b.updateCoefs(cutoffFreq)
	return b
}

func (b *Butterworth) updateCoefs(cutoffFreq float64) {
	if cutoffFreq < 20 {
		cutoffFreq = 20
	}
	if cutoffFreq > sampleRate*0.45 {
		cutoffFreq = sampleRate * 0.45
	}
	wc := 2 * math.Pi * cutoffFreq / sampleRate

	cosw := math.Cos(wc)
	alpha := math.Sin(wc) / (2 * b.q)

	b0 := (1 - cosw) / 2
	b1 := 1 - cosw
	b2 := (1 - cosw) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha

	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

// RampCutoff glides the cutoff toward freq over roughly tau seconds.
func (b *Butterworth) RampCutoff(freq, tau float64) {
	b.cutoff.coef = rampCoef(tau)
	b.cutoff.setTarget(freq)
}

// PinCutoff sets the cutoff immediately, no sweep.
func (b *Butterworth) PinCutoff(freq float64) {
	b.cutoff.jump(freq)
	b.updateCoefs(freq)
}

// Tick advances the cutoff ramp by n samples and refreshes coefficients.
// Call once per control block.
func (b *Butterworth) Tick(n int) {
	if b.cutoff.done() {
		return
	}
	for i := 0; i < n; i++ {
		b.cutoff.step()
	}
	b.updateCoefs(b.cutoff.value)
}

func (b *Butterworth) ProcessSample(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2

	b.x2 = b.x1
	b.x1 = x
	b.y2 = b.y1
	b.y1 = y

	return y
}

// Shaper is a tanh waveshaper with a wet/dry crossfade so the distort effect
// can be toggled mid-note without a level jump.
type Shaper struct {
	drive float64
	norm  float64
	mix   *ramp
}

func NewShaper(drive float64, active bool, tau float64) *Shaper {
	wet := 0.0
	if active {
		wet = 1.0
	}
	return &Shaper{
		drive: drive,
		norm:  math.Tanh(drive),
		mix:   newRamp(wet, tau),
	}
}

func (s *Shaper) SetActive(active bool) {
	if active {
		s.mix.setTarget(1)
	} else {
		s.mix.setTarget(0)
	}
}

func (s *Shaper) ProcessSample(x float64) float64 {
	m := s.mix.step()
	if m < 1e-4 {
		return x
	}
	shaped := math.Tanh(x*s.drive) / s.norm
	return x*(1-m) + shaped*m
}
