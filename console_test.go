package main

import (
	"testing"
)

func newTestConsole(d ThemeDesigner) (*Console, *Session, *captureTransport) {
	kb, s, tr := newTestKeyboard()
	c := NewConsole(s, kb, d, nil)
	return c, s, tr
}

func TestConsoleThemeFallsBackToDefault(t *testing.T) {
	c, s, tr := newTestConsole(failingDesigner{})

	if err := c.ProcessCmd("/theme spooky cathedral"); err != nil {
		t.Fatalf("theme command failed: %v", err)
	}
	if n := tr.count(MsgSyncTheme); n != 1 {
		t.Fatalf("emitted %d SYNC_THEME messages, want 1", n)
	}
	if got := s.CurrentTheme().Name; got != defaultTheme().Name {
		t.Fatalf("active theme is %q, want the default after designer failure", got)
	}
}

func TestConsoleThemeWithoutDesigner(t *testing.T) {
	c, s, tr := newTestConsole(nil)

	if err := c.ProcessCmd("/theme anything"); err != nil {
		t.Fatalf("theme command failed: %v", err)
	}
	if n := tr.count(MsgSyncTheme); n != 1 {
		t.Fatalf("emitted %d SYNC_THEME messages, want 1", n)
	}
	if got := s.CurrentTheme().Scale; !knownScale(got) {
		t.Fatalf("published theme carries unknown scale %q", got)
	}
}

func TestConsoleScale(t *testing.T) {
	c, s, tr := newTestConsole(nil)

	if err := c.ProcessCmd("/scale blues"); err != nil {
		t.Fatalf("scale command failed: %v", err)
	}
	if got := s.EffectiveScale(); got != "blues" {
		t.Fatalf("effective scale is %q, want blues", got)
	}
	if n := tr.count(MsgSyncScale); n != 1 {
		t.Fatalf("emitted %d SYNC_SCALE messages, want 1", n)
	}

	if err := c.ProcessCmd("/scale klingon"); err == nil {
		t.Fatal("expected an error for an unknown scale name")
	}
	if n := tr.count(MsgSyncScale); n != 1 {
		t.Fatalf("unknown scale still emitted, %d SYNC_SCALE messages", n)
	}
}

func TestConsoleChordMode(t *testing.T) {
	c, _, _ := newTestConsole(nil)

	if err := c.ProcessCmd("/chord triad"); err != nil {
		t.Fatalf("chord command failed: %v", err)
	}
	if got := c.keyboard.ChordMode(); got != ChordTriad {
		t.Fatalf("chord mode is %q, want %q", got, ChordTriad)
	}

	if err := c.ProcessCmd("/chord jazz"); err == nil {
		t.Fatal("expected an error for an unknown chord mode")
	}
	if got := c.keyboard.ChordMode(); got != ChordTriad {
		t.Fatalf("failed command changed chord mode to %q", got)
	}
}

func TestConsoleUnknownAndEmpty(t *testing.T) {
	c, _, _ := newTestConsole(nil)

	if err := c.ProcessCmd(""); err != nil {
		t.Fatalf("blank line should be ignored, got %v", err)
	}
	if err := c.ProcessCmd("/frobnicate"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestConsoleQuit(t *testing.T) {
	kb, s, _ := newTestKeyboard()

	fired := false
	c := NewConsole(s, kb, nil, func() { fired = true })

	if err := c.ProcessCmd("/quit"); err != nil {
		t.Fatalf("quit command failed: %v", err)
	}
	if !fired {
		t.Fatal("quit callback did not fire")
	}
	if !c.done {
		t.Fatal("console keeps prompting after /quit")
	}
}
