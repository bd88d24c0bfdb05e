package main

import (
	"context"
	"log/slog"
)

// SynthConfig is the per-theme voice parameter bundle. It is copied into
// each Voice at note-on and never mutated while the voice runs.
type SynthConfig struct {
	Osc1 Waveform `json:"osc1"`
	Osc2 Waveform `json:"osc2"`

	Attack  float64 `json:"attack"`  // seconds
	Decay   float64 `json:"decay"`   // seconds
	Sustain float64 `json:"sustain"` // 0..1
	Release float64 `json:"release"` // seconds

	Cutoff    float64 `json:"cutoff"`    // Hz
	Resonance float64 `json:"resonance"` // Q

	VibratoRate  float64 `json:"vibratoRate"` // Hz
	VibratoDepth float64 `json:"vibratoDepth"`
}

// Theme bundles a synth configuration with the shared room aesthetics. The
// color list is only consumed by the renderer, it rides along untouched.
type Theme struct {
	Name     string      `json:"name"`
	Colors   []string    `json:"colors"`
	Scale    string      `json:"scale"`
	Synth    SynthConfig `json:"synth"`
	BaseFreq float64     `json:"baseFreq"` // Hz
	Mood     string      `json:"mood"`
}

func defaultTheme() Theme {
	return Theme{
		Name:   "Midnight Default",
		Colors: []string{"#1b2a4a", "#3e5c76", "#748cab", "#f0ebd8"},
		Scale:  defaultScale,
		Synth: SynthConfig{
			Osc1:         WaveSawtooth,
			Osc2:         WaveTriangle,
			Attack:       0.04,
			Decay:        0.3,
			Sustain:      0.6,
			Release:      0.8,
			Cutoff:       2200,
			Resonance:    1.2,
			VibratoRate:  5,
			VibratoDepth: 4,
		},
		BaseFreq: 220,
		Mood:     "calm and steady",
	}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sanitizeTheme repairs a theme from an untrusted source so it can never
// produce a silent, unstable or out-of-range voice. Missing or nonsense
// fields get the defaults.
func sanitizeTheme(t Theme) Theme {
	def := defaultTheme()

	if t.Name == "" {
		t.Name = def.Name
	}
	if len(t.Colors) == 0 {
		t.Colors = def.Colors
	}
	if !knownScale(t.Scale) {
		t.Scale = def.Scale
	}
	if !t.Synth.Osc1.valid() {
		t.Synth.Osc1 = def.Synth.Osc1
	}
	if !t.Synth.Osc2.valid() {
		t.Synth.Osc2 = def.Synth.Osc2
	}
	if t.Synth.Attack <= 0 {
		t.Synth.Attack = def.Synth.Attack
	}
	if t.Synth.Decay <= 0 {
		t.Synth.Decay = def.Synth.Decay
	}
	if t.Synth.Release <= 0 {
		t.Synth.Release = def.Synth.Release
	}
	t.Synth.Sustain = clampf(t.Synth.Sustain, 0, 1)
	if t.Synth.Cutoff <= 0 {
		t.Synth.Cutoff = def.Synth.Cutoff
	}
	if t.Synth.Resonance < 0 {
		t.Synth.Resonance = 0
	}
	if t.Synth.VibratoRate <= 0 {
		t.Synth.VibratoRate = def.Synth.VibratoRate
	}
	if t.Synth.VibratoDepth < 0 {
		t.Synth.VibratoDepth = 0
	}
	if t.BaseFreq == 0 {
		t.BaseFreq = def.BaseFreq
	} else {
		t.BaseFreq = clampf(t.BaseFreq, 50, 400)
	}

	return t
}

// ThemeDesigner is the external generative service that proposes themes from
// free-text prompts. It is untrusted: anything it returns gets sanitized, and
// any failure is masked with the built-in default.
type ThemeDesigner interface {
	Generate(ctx context.Context, prompt string, seed int64) (Theme, error)
}

func generateTheme(ctx context.Context, d ThemeDesigner, prompt string, seed int64) Theme {
	if d == nil {
		return defaultTheme()
	}
	t, err := d.Generate(ctx, prompt, seed)
	if err != nil {
		slog.Warn("theme generation failed, using fallback", "prompt", prompt, "err", err)
		return defaultTheme()
	}
	return sanitizeTheme(t)
}
