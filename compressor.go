package main

import "math"

// Compressor sits on the master bus and keeps the mix of everyone's voices
// from clipping when several participants pile on at once.
type Compressor struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64
	envelope  float64
}

func NewCompressor(threshold, ratio, attack, release float64) *Compressor {
	return &Compressor{
		threshold: threshold,
		ratio:     ratio,
		attack:    attack,
		release:   release,
	}
}

func (c *Compressor) compressValue(v float64) float64 {
	if math.Abs(v) > c.threshold {
		c.envelope += (math.Abs(v) - c.envelope) * c.attack
	} else {
		c.envelope += (math.Abs(v) - c.envelope) * c.release
	}

	if c.envelope <= c.threshold {
		return v
	}

	reduction := math.Pow(c.threshold/c.envelope, c.ratio)

	return v * reduction
}

func (c *Compressor) ProcessSample(samples [][2]float64) {
	for i := range samples {
		samples[i][0] = c.compressValue(samples[i][0])
		samples[i][1] = c.compressValue(samples[i][1])
	}
}
