package main

import "math"

// Pitch-class sets, semitones above the root within one octave.
var scaleTable = map[string][]int{
	"pentatonic_minor": {0, 3, 5, 7, 10},
	"pentatonic_major": {0, 2, 4, 7, 9},
	"major":            {0, 2, 4, 5, 7, 9, 11},
	"minor":            {0, 2, 3, 5, 7, 8, 10},
	"dorian":           {0, 2, 3, 5, 7, 9, 10},
	"mixolydian":       {0, 2, 4, 5, 7, 9, 10},
	"blues":            {0, 3, 5, 6, 7, 10},
	"whole_tone":       {0, 2, 4, 6, 8, 10},
	"chromatic":        {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
}

const defaultScale = "pentatonic_minor"

func scalePitchClasses(name string) []int {
	pcs, ok := scaleTable[name]
	if !ok {
		// unknown scale names fall back silently, never an error
		return scaleTable[defaultScale]
	}
	return pcs
}

func knownScale(name string) bool {
	_, ok := scaleTable[name]
	return ok
}

// Frequency maps a scale-degree index onto a pitch in Hz. Indices beyond the
// scale length wrap into higher octaves, negative indices into lower ones
// (floor division, not truncation).
func Frequency(base float64, scale string, index int) float64 {
	pcs := scalePitchClasses(scale)
	n := len(pcs)

	octave := index / n
	degree := index % n
	if degree < 0 {
		degree += n
		octave--
	}

	semitones := octave*12 + pcs[degree]
	return base * math.Pow(2, float64(semitones)/12)
}
