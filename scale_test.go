package main

import (
	"math"
	"testing"
)

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9*math.Max(math.Abs(a), 1)
}

func TestFrequency(t *testing.T) {
	cases := []struct {
		scale string
		index int
		want  float64
	}{
		{"pentatonic_minor", 0, 220},
		{"pentatonic_minor", 1, 220 * math.Pow(2, 3.0/12)},
		{"pentatonic_minor", 5, 440}, // next octave, degree 0
		{"pentatonic_minor", 10, 880},
		{"pentatonic_minor", -5, 110},
		{"pentatonic_minor", -1, 220 * math.Pow(2, -2.0/12)}, // degree 4 one octave down
		{"major", 7, 440},
		{"major", -7, 110},
		{"chromatic", 12, 440},
		{"chromatic", -12, 110},
	}

	for _, c := range cases {
		got := Frequency(220, c.scale, c.index)
		if !closeEnough(got, c.want) {
			t.Errorf("Frequency(220, %q, %d) = %v, want %v", c.scale, c.index, got, c.want)
		}
	}
}

func TestFrequencyUnknownScaleFallsBack(t *testing.T) {
	got := Frequency(220, "no_such_scale", 5)
	want := Frequency(220, defaultScale, 5)
	if got != want {
		t.Fatalf("unknown scale: got %v, want default-scale value %v", got, want)
	}
}

func TestFrequencyFloorDivision(t *testing.T) {
	// every negative index must decompose octave/degree via floor division,
	// so stepping down by one full scale length exactly halves the pitch
	for _, scale := range []string{"pentatonic_minor", "major", "blues"} {
		n := len(scalePitchClasses(scale))
		for index := -2 * n; index < 2*n; index++ {
			lower := Frequency(220, scale, index-n)
			cur := Frequency(220, scale, index)
			if !closeEnough(cur, lower*2) {
				t.Fatalf("scale %q index %d: %v is not double %v", scale, index, cur, lower)
			}
		}
	}
}
