package main

import (
	"math/cmplx"
	"sync"

	"github.com/gopxl/beep"
	"github.com/maddyblue/go-dsp/fft"
)

// Recorder taps the master bus into a ring buffer. The rendering surface
// polls it for waveform and spectrum snapshots; audio keeps flowing through
// untouched.
type Recorder struct {
	lk       sync.Mutex
	buf      [][2]float64
	position int

	sub beep.Streamer
}

func NewRecorder(sub beep.Streamer, window int) *Recorder {
	return &Recorder{
		buf: make([][2]float64, window),
		sub: sub,
	}
}

func (r *Recorder) Stream(samples [][2]float64) (int, bool) {
	n, ok := r.sub.Stream(samples)
	if !ok {
		return n, ok
	}

	r.lk.Lock()
	defer r.lk.Unlock()

	for i := range samples[:n] {
		ix := r.position % len(r.buf)
		r.buf[ix][0] = samples[i][0]
		r.buf[ix][1] = samples[i][1]
		r.position++
	}
	return n, ok
}

func (r *Recorder) GetSnapshot(buf [][2]float64) int {
	r.lk.Lock()
	defer r.lk.Unlock()

	lim := len(buf)
	if len(r.buf) < lim {
		lim = len(r.buf)
	}

	for i := 0; i < lim; i++ {
		ix := (r.position + i) % len(r.buf)
		buf[i] = r.buf[ix]
	}

	return lim
}

// Spectrum returns the magnitude spectrum over n samples of the tap, left
// channel only. The snapshot reads the ring from its oldest slot, so pass the
// full window size for a current picture; the rotation does not change the
// magnitudes.
func (r *Recorder) Spectrum(n int) []float64 {
	buf := make([][2]float64, n)
	got := r.GetSnapshot(buf)
	if got == 0 {
		return nil
	}

	data := make([]float64, got)
	for i := 0; i < got; i++ {
		data[i] = buf[i][0]
	}

	result := fft.FFTReal(data)

	mags := make([]float64, len(result)/2+1)
	for i, c := range result[:len(mags)] {
		mags[i] = cmplx.Abs(c) / float64(len(data))
	}
	return mags
}

func (r *Recorder) Err() error {
	return nil
}
