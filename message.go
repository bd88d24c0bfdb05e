package main

import (
	"encoding/json"
	"fmt"
)

// MessageType tags every protocol envelope. The set is closed; decoding an
// unknown tag is an error at the boundary, not a crash later.
type MessageType string

const (
	MsgJoin         MessageType = "JOIN"
	MsgLeave        MessageType = "LEAVE"
	MsgNoteOn       MessageType = "NOTE_ON"
	MsgNoteOff      MessageType = "NOTE_OFF"
	MsgEffectChange MessageType = "EFFECT_CHANGE"
	MsgSyncTheme    MessageType = "SYNC_THEME"
	MsgSyncScale    MessageType = "SYNC_SCALE"
)

// EffectKind is the closed set of per-participant sound mangling effects.
type EffectKind string

const (
	EffectVibrato     EffectKind = "vibrato"
	EffectReverbMax   EffectKind = "reverb_max"
	EffectFilterClose EffectKind = "filter_close"
	EffectDistort     EffectKind = "distort"
)

func (e EffectKind) valid() bool {
	switch e {
	case EffectVibrato, EffectReverbMax, EffectFilterClose, EffectDistort:
		return true
	}
	return false
}

// EffectSet tracks which effects a participant currently holds.
type EffectSet map[EffectKind]bool

func (s EffectSet) clone() EffectSet {
	out := make(EffectSet, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}

func (s EffectSet) names() []string {
	var out []string
	for _, k := range []EffectKind{EffectVibrato, EffectReverbMax, EffectFilterClose, EffectDistort} {
		if s[k] {
			out = append(out, string(k))
		}
	}
	return out
}

// NotePayload carries a pressed or released scale degree. The timestamp is
// the sender's wall clock in milliseconds, used only for same-sender replay
// filtering.
type NotePayload struct {
	NoteIndex int      `json:"noteIndex"`
	Velocity  float64  `json:"velocity"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// EffectPayload toggles one effect on or off for the sender.
type EffectPayload struct {
	Effect EffectKind `json:"effect"`
	Active bool       `json:"active"`
}

// SignalMessage is the decoded protocol envelope. Exactly one payload field
// is set, determined by Type.
type SignalMessage struct {
	Type      MessageType
	RoomID    string
	SenderID  string
	Timestamp int64

	Note   *NotePayload
	Effect *EffectPayload
	User   *UserRecord
	Theme  *Theme
	Scale  string
}

// wireMessage is the JSON shape on the transport: a type tag plus an opaque
// payload decoded according to the tag.
type wireMessage struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func EncodeMessage(m SignalMessage) ([]byte, error) {
	w := wireMessage{
		Type:      m.Type,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}

	var payload any
	switch m.Type {
	case MsgJoin:
		payload = m.User
	case MsgLeave:
		// no payload
	case MsgNoteOn, MsgNoteOff:
		payload = m.Note
	case MsgEffectChange:
		payload = m.Effect
	case MsgSyncTheme:
		payload = m.Theme
	case MsgSyncScale:
		payload = m.Scale
	default:
		return nil, fmt.Errorf("encode: unknown message type %q", m.Type)
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Type, err)
		}
		w.Payload = b
	}

	return json.Marshal(w)
}

func DecodeMessage(data []byte) (SignalMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return SignalMessage{}, fmt.Errorf("decode envelope: %w", err)
	}

	m := SignalMessage{
		Type:      w.Type,
		RoomID:    w.RoomID,
		SenderID:  w.SenderID,
		Timestamp: w.Timestamp,
	}

	switch w.Type {
	case MsgJoin:
		m.User = &UserRecord{}
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, m.User); err != nil {
				return SignalMessage{}, fmt.Errorf("decode JOIN payload: %w", err)
			}
		}
	case MsgLeave:
	case MsgNoteOn, MsgNoteOff:
		m.Note = &NotePayload{}
		if err := json.Unmarshal(w.Payload, m.Note); err != nil {
			return SignalMessage{}, fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	case MsgEffectChange:
		m.Effect = &EffectPayload{}
		if err := json.Unmarshal(w.Payload, m.Effect); err != nil {
			return SignalMessage{}, fmt.Errorf("decode EFFECT_CHANGE payload: %w", err)
		}
		if !m.Effect.Effect.valid() {
			return SignalMessage{}, fmt.Errorf("decode EFFECT_CHANGE: unknown effect %q", m.Effect.Effect)
		}
	case MsgSyncTheme:
		m.Theme = &Theme{}
		if err := json.Unmarshal(w.Payload, m.Theme); err != nil {
			return SignalMessage{}, fmt.Errorf("decode SYNC_THEME payload: %w", err)
		}
	case MsgSyncScale:
		if err := json.Unmarshal(w.Payload, &m.Scale); err != nil {
			return SignalMessage{}, fmt.Errorf("decode SYNC_SCALE payload: %w", err)
		}
	default:
		return SignalMessage{}, fmt.Errorf("decode: unknown message type %q", w.Type)
	}

	return m, nil
}
