package main

import (
	"sync"
	"time"
)

// senderLimiter caps how fast a single sender may push control messages
// (EFFECT_CHANGE and SYNC_*). Note traffic is already bounded by the
// polyphony ceiling; control traffic has no natural bound, so a buggy or
// hostile sender could otherwise flood every client in the room.
type senderLimiter struct {
	lk      sync.Mutex
	limit   int
	window  time.Duration
	senders map[string]*senderWindow
}

type senderWindow struct {
	count int
	start time.Time
}

func newSenderLimiter(limit int, window time.Duration) *senderLimiter {
	return &senderLimiter{
		limit:   limit,
		window:  window,
		senders: make(map[string]*senderWindow),
	}
}

func (rl *senderLimiter) Allow(senderID string) bool {
	rl.lk.Lock()
	defer rl.lk.Unlock()

	now := time.Now()

	w, ok := rl.senders[senderID]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.senders[senderID] = &senderWindow{count: 1, start: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// Forget drops a sender's window, e.g. when they leave the room.
func (rl *senderLimiter) Forget(senderID string) {
	rl.lk.Lock()
	defer rl.lk.Unlock()

	delete(rl.senders, senderID)
}
