package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// TransportHandler receives transport notifications. Implementations must be
// quick; the read pump calls them inline.
type TransportHandler interface {
	OnMessage(msg SignalMessage)
	OnPresenceAdded(rec UserRecord)
	OnPresenceRemoved(participantID string)
}

// Transport carries protocol messages between participants. The contract:
// appended messages arrive at every other participant in per-sender order,
// presence records are removed automatically when their owner disconnects,
// and the handler is notified of both as they occur.
type Transport interface {
	Connect(roomID string, h TransportHandler) error
	Append(roomID string, msg SignalMessage) error
	SetPresence(roomID, participantID string, rec UserRecord) error
	Close() error
}

// wsFrame is the framing between client and relay server: either an appended
// protocol message or a presence change.
type wsFrame struct {
	Kind          string          `json:"kind"` // "message", "presence_add", "presence_remove", "presence_set"
	RoomID        string          `json:"roomId,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
	Record        *UserRecord     `json:"record,omitempty"`
	ParticipantID string          `json:"participantId,omitempty"`
}

// WSTransport talks to a websocket relay server that fans appended messages
// out to the rest of the room and tracks presence per connection.
type WSTransport struct {
	serverURL string

	lk   sync.Mutex // guards conn writes, gorilla allows one writer
	conn *websocket.Conn

	handler   TransportHandler
	closed    chan struct{}
	closeOnce sync.Once
}

func NewWSTransport(serverURL string) *WSTransport {
	return &WSTransport{
		serverURL: serverURL,
		closed:    make(chan struct{}),
	}
}

func (t *WSTransport) Connect(roomID string, h TransportHandler) error {
	u, err := url.Parse(t.serverURL)
	if err != nil {
		return fmt.Errorf("parsing server url: %w", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", u, err)
	}

	t.lk.Lock()
	t.conn = conn
	t.handler = h
	t.lk.Unlock()

	go t.readPump(conn)
	return nil
}

func (t *WSTransport) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				slog.Warn("transport read failed", "err", err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("dropping malformed frame", "err", err)
			continue
		}

		switch frame.Kind {
		case "message":
			msg, err := DecodeMessage(frame.Message)
			if err != nil {
				slog.Warn("dropping undecodable message", "err", err)
				continue
			}
			t.handler.OnMessage(msg)
		case "presence_add":
			if frame.Record != nil {
				t.handler.OnPresenceAdded(*frame.Record)
			}
		case "presence_remove":
			t.handler.OnPresenceRemoved(frame.ParticipantID)
		default:
			slog.Debug("ignoring unknown frame kind", "kind", frame.Kind)
		}
	}
}

func (t *WSTransport) writeFrame(frame wsFrame) error {
	t.lk.Lock()
	defer t.lk.Unlock()

	if t.conn == nil {
		// not connected yet; callers treat the transport as best-effort
		return nil
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Append(roomID string, msg SignalMessage) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	return t.writeFrame(wsFrame{Kind: "message", RoomID: roomID, Message: data})
}

func (t *WSTransport) SetPresence(roomID, participantID string, rec UserRecord) error {
	return t.writeFrame(wsFrame{
		Kind:          "presence_set",
		RoomID:        roomID,
		ParticipantID: participantID,
		Record:        &rec,
	})
}

// Close is safe to call more than once; teardown paths overlap.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.lk.Lock()
		defer t.lk.Unlock()
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

// LoopHub is an in-process transport fabric: every LoopTransport attached to
// it sees the others' messages and presence, delivered synchronously and in
// append order. Tests and offline mode run on it.
type LoopHub struct {
	lk       sync.Mutex
	members  map[string][]*LoopTransport       // roomID -> connected transports
	presence map[string]map[string]*UserRecord // roomID -> participantID -> record
}

func NewLoopHub() *LoopHub {
	return &LoopHub{
		members:  make(map[string][]*LoopTransport),
		presence: make(map[string]map[string]*UserRecord),
	}
}

// Transport creates a new endpoint on the hub.
func (h *LoopHub) Transport() *LoopTransport {
	return &LoopTransport{hub: h}
}

type LoopTransport struct {
	hub *LoopHub

	roomID  string
	handler TransportHandler

	presenceIDs []string
}

func (t *LoopTransport) Connect(roomID string, h TransportHandler) error {
	t.hub.lk.Lock()
	defer t.hub.lk.Unlock()

	t.roomID = roomID
	t.handler = h
	t.hub.members[roomID] = append(t.hub.members[roomID], t)

	// replay existing presence so a late joiner has the roster immediately
	for _, rec := range t.hub.presence[roomID] {
		h.OnPresenceAdded(*rec)
	}
	return nil
}

func (t *LoopTransport) Append(roomID string, msg SignalMessage) error {
	t.hub.lk.Lock()
	peers := append([]*LoopTransport(nil), t.hub.members[roomID]...)
	t.hub.lk.Unlock()

	for _, p := range peers {
		if p == t || p.handler == nil {
			continue
		}
		p.handler.OnMessage(msg)
	}
	return nil
}

func (t *LoopTransport) SetPresence(roomID, participantID string, rec UserRecord) error {
	t.hub.lk.Lock()
	if t.hub.presence[roomID] == nil {
		t.hub.presence[roomID] = make(map[string]*UserRecord)
	}
	t.hub.presence[roomID][participantID] = &rec
	t.presenceIDs = append(t.presenceIDs, participantID)
	peers := append([]*LoopTransport(nil), t.hub.members[roomID]...)
	t.hub.lk.Unlock()

	for _, p := range peers {
		if p == t || p.handler == nil {
			continue
		}
		p.handler.OnPresenceAdded(rec)
	}
	return nil
}

// Close disconnects the endpoint; its presence records are removed for
// everyone, mirroring a real transport's removal-on-disconnect.
func (t *LoopTransport) Close() error {
	t.hub.lk.Lock()
	members := t.hub.members[t.roomID]
	for i, m := range members {
		if m == t {
			t.hub.members[t.roomID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	removed := t.presenceIDs
	t.presenceIDs = nil
	for _, id := range removed {
		delete(t.hub.presence[t.roomID], id)
	}
	peers := append([]*LoopTransport(nil), t.hub.members[t.roomID]...)
	t.hub.lk.Unlock()

	for _, id := range removed {
		for _, p := range peers {
			if p.handler != nil {
				p.handler.OnPresenceRemoved(id)
			}
		}
	}
	return nil
}
