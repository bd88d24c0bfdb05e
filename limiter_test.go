package main

import (
	"testing"
	"time"
)

func TestSenderLimiterWindowReset(t *testing.T) {
	rl := newSenderLimiter(2, 50*time.Millisecond)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("messages under the cap were denied")
	}
	if rl.Allow("a") {
		t.Fatal("third message inside the window was allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("one sender's flood throttled another")
	}

	// the counter resets once a full window has elapsed
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("count did not reset after the window expired")
	}
}

func TestSenderLimiterForget(t *testing.T) {
	rl := newSenderLimiter(1, time.Hour)

	rl.Allow("a")
	if rl.Allow("a") {
		t.Fatal("over-cap message allowed")
	}

	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten sender still throttled")
	}
}
