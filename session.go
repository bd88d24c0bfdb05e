package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPolyphony = 8

	controlMsgLimit  = 40
	controlMsgWindow = 10 * time.Second

	inboxSize = 256
)

// UserState is the live view of one participant: who they are, which scale
// degrees they currently hold and which effects they have active.
type UserState struct {
	ID         string
	Name       string
	ColorIndex int

	ActiveNotes   map[int]bool
	ActiveEffects EffectSet
}

func newUserState(id, name string, color int) *UserState {
	if name == "" {
		name = "Anonymous"
	}
	return &UserState{
		ID:            id,
		Name:          name,
		ColorIndex:    color,
		ActiveNotes:   make(map[int]bool),
		ActiveEffects: make(EffectSet),
	}
}

// UserRecord is the wire shape of a participant for JOIN payloads and
// presence records. The transport is allowed to strip empty collections from
// persisted records, so every field decodes as optional.
type UserRecord struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name,omitempty"`
	ColorIndex    int      `json:"colorIndex,omitempty"`
	ActiveNotes   []int    `json:"activeNotes,omitempty"`
	ActiveEffects []string `json:"activeEffects,omitempty"`
}

// userFromRecord builds a UserState from a possibly partial record,
// substituting defaults instead of rejecting anything.
func userFromRecord(senderID string, rec *UserRecord) *UserState {
	if rec == nil {
		rec = &UserRecord{}
	}
	id := rec.ID
	if id == "" {
		id = senderID
	}

	u := newUserState(id, rec.Name, rec.ColorIndex)
	for _, n := range rec.ActiveNotes {
		u.ActiveNotes[n] = true
	}
	for _, e := range rec.ActiveEffects {
		k := EffectKind(e)
		if k.valid() {
			u.ActiveEffects[k] = true
		}
	}
	return u
}

func (u *UserState) record() UserRecord {
	rec := UserRecord{
		ID:            u.ID,
		Name:          u.Name,
		ColorIndex:    u.ColorIndex,
		ActiveEffects: u.ActiveEffects.names(),
	}
	for n := range u.ActiveNotes {
		rec.ActiveNotes = append(rec.ActiveNotes, n)
	}
	return rec
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Session is the authoritative local view of the room: the local participant,
// every remote participant, the shared theme, and the scale override. Local
// input mutates it directly and emits protocol messages; inbound messages are
// reconciled one at a time by the Run loop.
type Session struct {
	lk sync.Mutex

	roomID string
	self   *UserState

	remotes map[string]*UserState

	engine    *Engine
	transport Transport

	theme         Theme
	scaleOverride string

	polyphony int
	limiter   *senderLimiter

	// startedAt marks when this client began observing the event stream;
	// note events timestamped before it are stale replays.
	startedAt int64

	inbox chan SignalMessage
	done  chan struct{}
}

func NewSession(roomID, displayName string, colorIndex int, engine *Engine, transport Transport) *Session {
	return &Session{
		roomID:    roomID,
		self:      newUserState(uuid.NewString(), displayName, colorIndex),
		remotes:   make(map[string]*UserState),
		engine:    engine,
		transport: transport,
		theme:     defaultTheme(),
		polyphony: defaultPolyphony,
		limiter:   newSenderLimiter(controlMsgLimit, controlMsgWindow),
		inbox:     make(chan SignalMessage, inboxSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) SelfID() string {
	return s.self.ID
}

// Join connects the transport, registers presence and announces the local
// participant. Must be called before Run.
func (s *Session) Join() error {
	s.lk.Lock()
	s.startedAt = nowMillis()
	s.lk.Unlock()

	if s.transport == nil {
		return nil
	}

	if err := s.transport.Connect(s.roomID, s); err != nil {
		return err
	}
	if err := s.transport.SetPresence(s.roomID, s.self.ID, s.self.record()); err != nil {
		return err
	}

	s.emit(SignalMessage{
		Type: MsgJoin,
		User: &UserRecord{ID: s.self.ID, Name: s.self.Name, ColorIndex: s.self.ColorIndex},
	})
	return nil
}

// Run drains the inbox, reconciling one message at a time. Per-sender order
// is the transport's guarantee; cross-sender interleaving is arbitrary, which
// is why every rule in Apply is idempotent.
func (s *Session) Run() {
	for {
		select {
		case msg := <-s.inbox:
			s.Apply(msg)
		case <-s.done:
			return
		}
	}
}

// Leave tears the session down: announces departure, silences everything we
// were playing and closes the transport.
func (s *Session) Leave() {
	s.emit(SignalMessage{Type: MsgLeave})

	close(s.done)
	s.engine.ReleaseAll()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			slog.Warn("closing transport", "err", err)
		}
	}
}

// TransportHandler hooks. They only enqueue; reconciliation happens on the
// Run goroutine so messages never overlap.

func (s *Session) OnMessage(msg SignalMessage) {
	select {
	case s.inbox <- msg:
	default:
		slog.Warn("inbox full, dropping message", "type", msg.Type, "sender", msg.SenderID)
	}
}

func (s *Session) OnPresenceAdded(rec UserRecord) {
	if rec.ID == "" || rec.ID == s.self.ID {
		return
	}
	s.OnMessage(SignalMessage{Type: MsgJoin, RoomID: s.roomID, SenderID: rec.ID, User: &rec})
}

func (s *Session) OnPresenceRemoved(participantID string) {
	if participantID == s.self.ID {
		return
	}
	s.OnMessage(SignalMessage{Type: MsgLeave, RoomID: s.roomID, SenderID: participantID})
}

// remote returns the state for a sender, creating a default entry if their
// JOIN never arrived. Partial knowledge beats dropped notes.
func (s *Session) remote(senderID string) *UserState {
	u, ok := s.remotes[senderID]
	if !ok {
		u = newUserState(senderID, "", 0)
		s.remotes[senderID] = u
	}
	return u
}

// Apply reconciles one inbound message against session state and the engine.
// Messages authored by the local participant were already applied at the
// point of origin and are discarded.
func (s *Session) Apply(msg SignalMessage) {
	s.lk.Lock()
	defer s.lk.Unlock()

	if msg.SenderID == "" || msg.SenderID == s.self.ID {
		return
	}

	switch msg.Type {
	case MsgEffectChange, MsgSyncTheme, MsgSyncScale:
		if !s.limiter.Allow(msg.SenderID) {
			slog.Warn("control message rate limit hit", "sender", msg.SenderID, "type", msg.Type)
			return
		}
	}

	switch msg.Type {
	case MsgJoin:
		if _, ok := s.remotes[msg.SenderID]; ok {
			return
		}
		s.remotes[msg.SenderID] = userFromRecord(msg.SenderID, msg.User)

	case MsgLeave:
		delete(s.remotes, msg.SenderID)
		s.limiter.Forget(msg.SenderID)
		// a departing participant goes silent immediately rather than
		// decaying naturally
		s.engine.ReleaseParticipant(msg.SenderID)

	case MsgNoteOn:
		if msg.Note == nil || s.staleNote(msg) {
			return
		}
		u := s.remote(msg.SenderID)
		degree := msg.Note.NoteIndex
		if !u.ActiveNotes[degree] && len(u.ActiveNotes) >= s.polyphony {
			return
		}
		u.ActiveNotes[degree] = true
		freq := Frequency(s.theme.BaseFreq, s.effectiveScaleLocked(), degree)
		s.engine.NoteOn(msg.SenderID, degree, freq, msg.Note.Velocity, s.theme.Synth, u.ActiveEffects.clone())

	case MsgNoteOff:
		if msg.Note == nil || s.staleNote(msg) {
			return
		}
		u := s.remote(msg.SenderID)
		delete(u.ActiveNotes, msg.Note.NoteIndex)
		s.engine.NoteOff(msg.SenderID, msg.Note.NoteIndex)

	case MsgEffectChange:
		if msg.Effect == nil || !msg.Effect.Effect.valid() {
			return
		}
		u := s.remote(msg.SenderID)
		if msg.Effect.Active {
			u.ActiveEffects[msg.Effect.Effect] = true
		} else {
			delete(u.ActiveEffects, msg.Effect.Effect)
		}
		s.engine.UpdateUserEffects(msg.SenderID, u.ActiveEffects.clone())

	case MsgSyncTheme:
		if msg.Theme == nil {
			return
		}
		s.theme = sanitizeTheme(*msg.Theme)
		s.scaleOverride = ""

	case MsgSyncScale:
		s.scaleOverride = msg.Scale

	default:
		slog.Debug("ignoring unknown message", "type", msg.Type, "sender", msg.SenderID)
	}
}

// staleNote filters replayed note events: a newly joined client receives the
// room's message backlog and must not audibly replay it. Join and presence
// history still applies so the roster is right immediately.
func (s *Session) staleNote(msg SignalMessage) bool {
	ts := msg.Timestamp
	if ts == 0 && msg.Note != nil {
		ts = msg.Note.Timestamp
	}
	return ts != 0 && ts < s.startedAt
}

func (s *Session) effectiveScaleLocked() string {
	if s.scaleOverride != "" {
		return s.scaleOverride
	}
	return s.theme.Scale
}

// EffectiveScale is the scale pitch mapping actually uses: the override if
// one is set, otherwise the theme's scale.
func (s *Session) EffectiveScale() string {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.effectiveScaleLocked()
}

// ---- local operations; each mutates local state, drives the engine and
// emits the mirror protocol message ----

// NoteOn presses a degree for the local participant. Returns false when the
// polyphony ceiling rejects it, in which case nothing sounds and nothing is
// emitted.
func (s *Session) NoteOn(degree int, velocity float64) bool {
	s.lk.Lock()

	if !s.self.ActiveNotes[degree] && len(s.self.ActiveNotes) >= s.polyphony {
		s.lk.Unlock()
		return false
	}
	s.self.ActiveNotes[degree] = true

	freq := Frequency(s.theme.BaseFreq, s.effectiveScaleLocked(), degree)
	cfg := s.theme.Synth
	effects := s.self.ActiveEffects.clone()
	id := s.self.ID
	s.lk.Unlock()

	s.engine.NoteOn(id, degree, freq, velocity, cfg, effects)

	s.emit(SignalMessage{
		Type: MsgNoteOn,
		Note: &NotePayload{NoteIndex: degree, Velocity: velocity, Timestamp: nowMillis()},
	})
	return true
}

func (s *Session) NoteOff(degree int) {
	s.lk.Lock()
	delete(s.self.ActiveNotes, degree)
	id := s.self.ID
	s.lk.Unlock()

	s.engine.NoteOff(id, degree)

	s.emit(SignalMessage{
		Type: MsgNoteOff,
		Note: &NotePayload{NoteIndex: degree, Timestamp: nowMillis()},
	})
}

// SetEffect activates or deactivates one of the local participant's effects.
func (s *Session) SetEffect(effect EffectKind, active bool) {
	if !effect.valid() {
		return
	}

	s.lk.Lock()
	if active {
		s.self.ActiveEffects[effect] = true
	} else {
		delete(s.self.ActiveEffects, effect)
	}
	effects := s.self.ActiveEffects.clone()
	id := s.self.ID
	s.lk.Unlock()

	s.engine.UpdateUserEffects(id, effects)

	s.emit(SignalMessage{
		Type:   MsgEffectChange,
		Effect: &EffectPayload{Effect: effect, Active: active},
	})
}

// ToggleEffect flips an effect's state; reverb_max is toggled rather than
// held.
func (s *Session) ToggleEffect(effect EffectKind) {
	s.lk.Lock()
	active := !s.self.ActiveEffects[effect]
	s.lk.Unlock()

	s.SetEffect(effect, active)
}

// HasEffect reports whether the local participant holds the effect.
func (s *Session) HasEffect(effect EffectKind) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.self.ActiveEffects[effect]
}

// PublishTheme replaces the shared theme for everyone, clearing any scale
// override.
func (s *Session) PublishTheme(t Theme) {
	t = sanitizeTheme(t)

	s.lk.Lock()
	s.theme = t
	s.scaleOverride = ""
	s.lk.Unlock()

	s.emit(SignalMessage{Type: MsgSyncTheme, Theme: &t})
}

// PublishScale sets a scale override that wins over the theme's scale until
// the next theme replace.
func (s *Session) PublishScale(name string) {
	s.lk.Lock()
	s.scaleOverride = name
	s.lk.Unlock()

	s.emit(SignalMessage{Type: MsgSyncScale, Scale: name})
}

func (s *Session) CurrentTheme() Theme {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.theme
}

// Users returns a snapshot of every participant, local first. The renderer
// consumes this; it never feeds back into the session.
func (s *Session) Users() []UserRecord {
	s.lk.Lock()
	defer s.lk.Unlock()

	out := []UserRecord{s.self.record()}
	for _, u := range s.remotes {
		out = append(out, u.record())
	}
	return out
}

// RemoteUser looks up a remote participant's state snapshot.
func (s *Session) RemoteUser(id string) (UserRecord, bool) {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.remotes[id]
	if !ok {
		return UserRecord{}, false
	}
	return u.record(), true
}

func (s *Session) emit(msg SignalMessage) {
	if s.transport == nil {
		return
	}

	msg.RoomID = s.roomID
	msg.SenderID = s.self.ID
	if msg.Timestamp == 0 {
		msg.Timestamp = nowMillis()
	}

	if err := s.transport.Append(s.roomID, msg); err != nil {
		slog.Warn("appending message", "type", msg.Type, "err", err)
	}
}
