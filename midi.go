package main

import (
	"log/slog"

	"github.com/rakyll/portmidi"
)

// middle C plays degree zero
const midiBaseNote = 60

// MidiController feeds an attached MIDI keyboard into the same local input
// path as the computer keyboard. Each MIDI note maps to one scale degree, no
// chord expansion.
type MidiController struct {
	session *Session

	stream *portmidi.Stream

	noteStates map[int64]int
}

func OpenController(id portmidi.DeviceID, s *Session) (*MidiController, error) {
	in, err := portmidi.NewInputStream(id, 1024)
	if err != nil {
		return nil, err
	}

	mc := &MidiController{
		session:    s,
		stream:     in,
		noteStates: make(map[int64]int),
	}

	go mc.run()

	return mc, nil
}

func (mc *MidiController) Shutdown() {
	mc.stream.Close()
}

func (mc *MidiController) run() {
	for {
		events, err := mc.stream.Read(1024)
		if err != nil {
			slog.Warn("midi read failed", "err", err)
			return
		}

		for _, event := range events {
			switch event.Status {
			case 0x90:
				mc.noteOn(int64(event.Data1), int64(event.Data2))
			case 0x80:
				mc.noteOff(int64(event.Data1))
			default:
				slog.Debug("ignoring midi event", "status", event.Status, "data1", event.Data1)
			}
		}
	}
}

func (mc *MidiController) noteOn(note, rawVelocity int64) {
	if _, ok := mc.noteStates[note]; ok {
		slog.Debug("got start for already running note", "note", note)
		mc.noteOff(note)
	}

	degree := int(note - midiBaseNote)
	if !mc.session.NoteOn(degree, float64(rawVelocity)/127) {
		return
	}
	mc.noteStates[note] = degree
}

func (mc *MidiController) noteOff(note int64) {
	degree, ok := mc.noteStates[note]
	if !ok {
		slog.Debug("stop called on note we hadnt started", "note", note)
		return
	}

	mc.session.NoteOff(degree)
	delete(mc.noteStates, note)
}
