package main

import (
	"sync"

	"github.com/veandco/go-sdl2/sdl"
)

// ChordMode names a fixed set of scale-degree offsets applied to one key
// press.
type ChordMode string

const (
	ChordSingle  ChordMode = "single"
	ChordFifth   ChordMode = "fifth"
	ChordTriad   ChordMode = "triad"
	ChordSeventh ChordMode = "seventh"
)

var chordIntervals = map[ChordMode][]int{
	ChordSingle:  {0},
	ChordFifth:   {0, 4},
	ChordTriad:   {0, 2, 4},
	ChordSeventh: {0, 2, 4, 6},
}

func chordModeValid(m ChordMode) bool {
	_, ok := chordIntervals[m]
	return ok
}

func chordDegrees(mode ChordMode, base int) []int {
	intervals, ok := chordIntervals[mode]
	if !ok {
		intervals = chordIntervals[ChordSingle]
	}
	out := make([]int, len(intervals))
	for i, iv := range intervals {
		out[i] = base + iv
	}
	return out
}

// home row, one degree per key
var keyDegrees = map[sdl.Keycode]int{
	sdl.K_a:         0,
	sdl.K_s:         1,
	sdl.K_d:         2,
	sdl.K_f:         3,
	sdl.K_g:         4,
	sdl.K_h:         5,
	sdl.K_j:         6,
	sdl.K_k:         7,
	sdl.K_l:         8,
	sdl.K_SEMICOLON: 9,
}

// number row holds effects; reverb_max is a toggle, the rest are
// hold-to-activate
var keyEffects = map[sdl.Keycode]EffectKind{
	sdl.K_1: EffectVibrato,
	sdl.K_2: EffectReverbMax,
	sdl.K_3: EffectFilterClose,
	sdl.K_4: EffectDistort,
}

const localVelocity = 0.8

// Keyboard turns key events into session operations. The chord expansion is
// captured at key-down and stored per physical key, so key-up always releases
// exactly the degrees that sounded even if the chord mode changed mid-press.
type Keyboard struct {
	lk sync.Mutex

	session *Session
	mode    ChordMode
	octave  int

	held map[sdl.Keycode][]int
}

func NewKeyboard(s *Session) *Keyboard {
	return &Keyboard{
		session: s,
		mode:    ChordSingle,
		held:    make(map[sdl.Keycode][]int),
	}
}

func (k *Keyboard) SetChordMode(m ChordMode) bool {
	if !chordModeValid(m) {
		return false
	}
	k.lk.Lock()
	k.mode = m
	k.lk.Unlock()
	return true
}

func (k *Keyboard) ChordMode() ChordMode {
	k.lk.Lock()
	defer k.lk.Unlock()
	return k.mode
}

func (k *Keyboard) KeyDown(sym sdl.Keycode) {
	if effect, ok := keyEffects[sym]; ok {
		if effect == EffectReverbMax {
			k.session.ToggleEffect(effect)
		} else {
			k.session.SetEffect(effect, true)
		}
		return
	}

	switch sym {
	case sdl.K_z:
		k.lk.Lock()
		k.octave--
		k.lk.Unlock()
		return
	case sdl.K_x:
		k.lk.Lock()
		k.octave++
		k.lk.Unlock()
		return
	}

	base, ok := keyDegrees[sym]
	if !ok {
		return
	}

	k.lk.Lock()
	if _, down := k.held[sym]; down {
		// key repeat
		k.lk.Unlock()
		return
	}
	mode := k.mode
	octave := k.octave
	k.lk.Unlock()

	scaleLen := len(scalePitchClasses(k.session.EffectiveScale()))
	degrees := chordDegrees(mode, base+octave*scaleLen)

	var played []int
	for _, d := range degrees {
		if k.session.NoteOn(d, localVelocity) {
			played = append(played, d)
		}
	}

	k.lk.Lock()
	k.held[sym] = played
	k.lk.Unlock()
}

func (k *Keyboard) KeyUp(sym sdl.Keycode) {
	if effect, ok := keyEffects[sym]; ok {
		// reverb_max stays until toggled off
		if effect != EffectReverbMax {
			k.session.SetEffect(effect, false)
		}
		return
	}

	k.lk.Lock()
	played, down := k.held[sym]
	delete(k.held, sym)
	k.lk.Unlock()

	if !down {
		return
	}
	for _, d := range played {
		k.session.NoteOff(d)
	}
}

// ReleaseAll lifts every held key, used on teardown.
func (k *Keyboard) ReleaseAll() {
	k.lk.Lock()
	held := k.held
	k.held = make(map[sdl.Keycode][]int)
	k.lk.Unlock()

	for _, played := range held {
		for _, d := range played {
			k.session.NoteOff(d)
		}
	}
}
