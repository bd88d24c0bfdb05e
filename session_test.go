package main

import (
	"fmt"
	"testing"
)

func newTestSession() *Session {
	return NewSession("room1", "local", 0, NewEngine(), nil)
}

func noteOnMsg(sender string, degree int, ts int64) SignalMessage {
	return SignalMessage{
		Type:     MsgNoteOn,
		RoomID:   "room1",
		SenderID: sender,
		Note:     &NotePayload{NoteIndex: degree, Velocity: 0.8, Timestamp: ts},
	}
}

func noteOffMsg(sender string, degree int) SignalMessage {
	return SignalMessage{
		Type:     MsgNoteOff,
		RoomID:   "room1",
		SenderID: sender,
		Note:     &NotePayload{NoteIndex: degree},
	}
}

func effectMsg(sender string, effect EffectKind, active bool) SignalMessage {
	return SignalMessage{
		Type:     MsgEffectChange,
		RoomID:   "room1",
		SenderID: sender,
		Effect:   &EffectPayload{Effect: effect, Active: active},
	}
}

func TestJoinDefaults(t *testing.T) {
	s := newTestSession()

	// the transport may strip empty collections; a bare JOIN still works
	s.Apply(SignalMessage{Type: MsgJoin, SenderID: "alice", User: &UserRecord{}})

	u, ok := s.RemoteUser("alice")
	if !ok {
		t.Fatal("no remote entry after JOIN")
	}
	if u.Name != "Anonymous" {
		t.Fatalf("name = %q, want Anonymous", u.Name)
	}
	if u.ColorIndex != 0 || len(u.ActiveNotes) != 0 || len(u.ActiveEffects) != 0 {
		t.Fatalf("defaults not applied: %+v", u)
	}

	// duplicate JOIN must not clobber accumulated state
	s.Apply(noteOnMsg("alice", 2, 0))
	s.Apply(SignalMessage{Type: MsgJoin, SenderID: "alice", User: &UserRecord{Name: "other"}})
	u, _ = s.RemoteUser("alice")
	if len(u.ActiveNotes) != 1 {
		t.Fatalf("duplicate JOIN reset held notes: %+v", u)
	}
}

func TestOwnMessagesDiscarded(t *testing.T) {
	s := newTestSession()

	s.Apply(noteOnMsg(s.SelfID(), 2, 0))

	if s.engine.Holding(s.SelfID(), 2) {
		t.Fatal("own message was applied; it was already applied at origin")
	}
}

func TestNoteOnOffScenario(t *testing.T) {
	s := newTestSession()

	s.Apply(SignalMessage{Type: MsgJoin, SenderID: "A", User: &UserRecord{Name: "A"}})
	s.Apply(noteOnMsg("A", 2, nowMillis()))

	if !s.engine.Holding("A", 2) {
		t.Fatal("no voice after NOTE_ON")
	}
	u, _ := s.RemoteUser("A")
	if len(u.ActiveNotes) != 1 || u.ActiveNotes[0] != 2 {
		t.Fatalf("activeNotes = %v, want [2]", u.ActiveNotes)
	}

	s.Apply(noteOffMsg("A", 2))

	u, _ = s.RemoteUser("A")
	if len(u.ActiveNotes) != 0 {
		t.Fatalf("activeNotes = %v, want empty", u.ActiveNotes)
	}
	if s.engine.Holding("A", 2) {
		t.Fatal("voice survived NOTE_OFF")
	}

	// double NOTE_OFF is safe
	s.Apply(noteOffMsg("A", 2))
}

func TestDuplicateNoteOnIsIdempotent(t *testing.T) {
	s := newTestSession()

	s.Apply(noteOnMsg("A", 3, 0))
	s.Apply(noteOnMsg("A", 3, 0))

	u, _ := s.RemoteUser("A")
	if len(u.ActiveNotes) != 1 {
		t.Fatalf("activeNotes = %v, want a single entry", u.ActiveNotes)
	}
	if n := s.engine.VoiceCount(); n != 1 {
		t.Fatalf("voice count = %d, want 1", n)
	}
}

func TestEffectSetSemantics(t *testing.T) {
	s := newTestSession()

	s.Apply(effectMsg("A", EffectReverbMax, true))
	s.Apply(effectMsg("A", EffectReverbMax, true)) // duplicate delivery

	u, _ := s.RemoteUser("A")
	if len(u.ActiveEffects) != 1 || u.ActiveEffects[0] != string(EffectReverbMax) {
		t.Fatalf("activeEffects = %v, want exactly [reverb_max]", u.ActiveEffects)
	}

	s.Apply(effectMsg("A", EffectReverbMax, false))
	u, _ = s.RemoteUser("A")
	if len(u.ActiveEffects) != 0 {
		t.Fatalf("activeEffects = %v, want empty", u.ActiveEffects)
	}
}

func TestEffectsAppliedToNewVoices(t *testing.T) {
	s := newTestSession()

	s.Apply(effectMsg("A", EffectReverbMax, true))
	s.Apply(noteOnMsg("A", 0, 0))

	s.engine.lk.Lock()
	v := s.engine.voices[voiceKey{"A", 0}]
	s.engine.lk.Unlock()
	if v == nil {
		t.Fatal("no voice")
	}
	if v.send.value != reverbSendMax {
		t.Fatalf("voice created with send %v, want %v", v.send.value, reverbSendMax)
	}
}

func TestReplayFiltering(t *testing.T) {
	s := newTestSession()
	s.startedAt = 1000

	// stale note events are a backlog replay, not live playing
	s.Apply(noteOnMsg("A", 2, 500))
	if s.engine.Holding("A", 2) {
		t.Fatal("stale NOTE_ON triggered a voice")
	}

	// presence history is fine regardless of age
	s.Apply(SignalMessage{Type: MsgJoin, SenderID: "B", Timestamp: 500, User: &UserRecord{Name: "B"}})
	if _, ok := s.RemoteUser("B"); !ok {
		t.Fatal("old JOIN was dropped")
	}

	// live events pass
	s.Apply(noteOnMsg("A", 2, 2000))
	if !s.engine.Holding("A", 2) {
		t.Fatal("fresh NOTE_ON was dropped")
	}

	// no timestamp at all means we cannot judge age; apply it
	s.Apply(noteOffMsg("A", 2))
	if s.engine.Holding("A", 2) {
		t.Fatal("untimestamped NOTE_OFF was dropped")
	}
}

func TestLeaveReleasesVoices(t *testing.T) {
	s := newTestSession()

	s.Apply(SignalMessage{Type: MsgJoin, SenderID: "A", User: &UserRecord{Name: "A"}})
	s.Apply(noteOnMsg("A", 2, 0))
	s.Apply(noteOnMsg("A", 4, 0))

	s.Apply(SignalMessage{Type: MsgLeave, SenderID: "A"})

	if _, ok := s.RemoteUser("A"); ok {
		t.Fatal("roster entry survived LEAVE")
	}
	if s.engine.Holding("A", 2) || s.engine.Holding("A", 4) {
		t.Fatal("departed participant still holds voices")
	}
}

func TestSyncScaleAndTheme(t *testing.T) {
	s := newTestSession()

	if s.EffectiveScale() != defaultTheme().Scale {
		t.Fatalf("effective scale = %q, want theme default", s.EffectiveScale())
	}

	s.Apply(SignalMessage{Type: MsgSyncScale, SenderID: "A", Scale: "blues"})
	if s.EffectiveScale() != "blues" {
		t.Fatalf("effective scale = %q, want blues override", s.EffectiveScale())
	}

	// a theme replace clears the override
	th := defaultTheme()
	th.Scale = "major"
	s.Apply(SignalMessage{Type: MsgSyncTheme, SenderID: "A", Theme: &th})
	if s.EffectiveScale() != "major" {
		t.Fatalf("effective scale = %q, want major from new theme", s.EffectiveScale())
	}
}

func TestSyncThemeSanitizesUntrustedInput(t *testing.T) {
	s := newTestSession()

	s.Apply(SignalMessage{Type: MsgSyncTheme, SenderID: "A", Theme: &Theme{
		Scale:    "locrian_superultra",
		BaseFreq: 90000,
		Synth:    SynthConfig{Osc1: "noise", Attack: -3, Sustain: 7},
	}})

	th := s.CurrentTheme()
	if !knownScale(th.Scale) {
		t.Fatalf("scale %q not repaired", th.Scale)
	}
	if th.BaseFreq > 400 || th.BaseFreq < 50 {
		t.Fatalf("base freq %v not clamped", th.BaseFreq)
	}
	if !th.Synth.Osc1.valid() || th.Synth.Attack <= 0 || th.Synth.Sustain > 1 {
		t.Fatalf("synth config not repaired: %+v", th.Synth)
	}
}

func TestRemotePolyphonyCeiling(t *testing.T) {
	s := newTestSession()

	for i := 0; i < s.polyphony+3; i++ {
		s.Apply(noteOnMsg("A", i, 0))
	}

	u, _ := s.RemoteUser("A")
	if len(u.ActiveNotes) != s.polyphony {
		t.Fatalf("held notes = %d, want ceiling %d", len(u.ActiveNotes), s.polyphony)
	}
	if n := s.engine.VoiceCount(); n != s.polyphony {
		t.Fatalf("voice count = %d, want %d", n, s.polyphony)
	}
}

func TestControlMessageRateLimit(t *testing.T) {
	s := newTestSession()

	for i := 0; i < controlMsgLimit*2; i++ {
		s.Apply(effectMsg("A", EffectVibrato, i%2 == 0))
	}

	// past the window limit the flood stops being applied; the exact resting
	// state depends on where the cap landed, what matters is that applying
	// did not keep going
	if s.limiter.Allow("A") {
		t.Fatal("limiter still allowing after flood")
	}
}

// drain applies everything queued on the session's inbox, preserving order.
func drain(s *Session) {
	for {
		select {
		case msg := <-s.inbox:
			s.Apply(msg)
		default:
			return
		}
	}
}

func TestReconciliationMatchesLocalOperations(t *testing.T) {
	hub := NewLoopHub()
	engineA := NewEngine()
	engineB := NewEngine()

	a := NewSession("room1", "alice", 1, engineA, hub.Transport())
	b := NewSession("room1", "bob", 2, engineB, hub.Transport())

	if err := a.Join(); err != nil {
		t.Fatal(err)
	}
	if err := b.Join(); err != nil {
		t.Fatal(err)
	}
	drain(a)
	drain(b)

	// alice plays; bob's replica must converge to the same UserState
	a.SetEffect(EffectDistort, true)
	a.NoteOn(0, 0.8)
	a.NoteOn(2, 0.8)
	a.NoteOn(2, 0.8) // retrigger
	a.NoteOff(0)
	drain(b)

	remote, ok := b.RemoteUser(a.SelfID())
	if !ok {
		t.Fatal("bob has no entry for alice")
	}
	local := a.Users()[0]

	if fmt.Sprint(local.ActiveNotes) != fmt.Sprint(remote.ActiveNotes) {
		t.Fatalf("notes diverged: local %v, remote %v", local.ActiveNotes, remote.ActiveNotes)
	}
	if fmt.Sprint(local.ActiveEffects) != fmt.Sprint(remote.ActiveEffects) {
		t.Fatalf("effects diverged: local %v, remote %v", local.ActiveEffects, remote.ActiveEffects)
	}

	if !engineB.Holding(a.SelfID(), 2) || engineB.Holding(a.SelfID(), 0) {
		t.Fatal("bob's engine does not mirror alice's held notes")
	}

	// departure: bob drops the roster entry and silences alice
	a.Leave()
	drain(b)
	if _, ok := b.RemoteUser(a.SelfID()); ok {
		t.Fatal("alice still on bob's roster after leave")
	}
	if engineB.Holding(a.SelfID(), 2) {
		t.Fatal("alice's voices still sounding on bob's engine after leave")
	}
}
