package main

import (
	"time"

	"github.com/gopxl/beep"
)

// comb is one feedback delay line with a one-pole damping filter in the loop.
type comb struct {
	buf      [][2]float64
	delay    int
	decay    float64
	damp     float64
	position int

	lpL, lpR float64
}

func newComb(amount time.Duration, decay, damp float64) *comb {
	sr := beep.SampleRate(sampleRate)
	n := sr.N(amount)

	return &comb{
		buf:   make([][2]float64, n),
		delay: n,
		decay: decay,
		damp:  damp,
	}
}

func (c *comb) process(inL, inR float64) (float64, float64) {
	p := c.position % len(c.buf)
	outL := c.buf[p][0]
	outR := c.buf[p][1]

	c.lpL = outL*(1-c.damp) + c.lpL*c.damp
	c.lpR = outR*(1-c.damp) + c.lpR*c.damp

	c.buf[p][0] = inL + c.lpL*c.decay
	c.buf[p][1] = inR + c.lpR*c.decay

	c.position++
	return outL, outR
}

// Reverb is the shared send processor on the master bus. Voices feed it
// through their send gains; its wet output is mixed back into the bus.
type Reverb struct {
	combs []*comb
	wet   float64
}

func NewReverb() *Reverb {
	// mutually prime-ish delays smear the echoes into a wash
	return &Reverb{
		combs: []*comb{
			newComb(time.Millisecond*53, 0.72, 0.3),
			newComb(time.Millisecond*67, 0.68, 0.35),
			newComb(time.Millisecond*83, 0.64, 0.4),
			newComb(time.Millisecond*101, 0.6, 0.45),
		},
		wet: 0.6,
	}
}

// ProcessBuffer consumes the send bus in place, replacing it with the wet
// reverb signal.
func (r *Reverb) ProcessBuffer(send [][2]float64) {
	for i := range send {
		var outL, outR float64
		for _, c := range r.combs {
			l, rr := c.process(send[i][0], send[i][1])
			outL += l
			outR += rr
		}
		n := float64(len(r.combs))
		send[i][0] = outL / n * r.wet
		send[i][1] = outR / n * r.wet
	}
}
