// Package midi turns console state changes into MIDI wire messages and
// routes hardware meter input back into the app. The platform drivers
// live behind the Output/Input interfaces so everything above them is
// testable without hardware.
package midi

// Status byte families. The low nibble carries the channel.
const (
	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusControlChange = 0xB0
	statusProgramChange = 0xC0
)

func clamp7(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return byte(v)
}

// ControlChange encodes a CC message on the given channel (0-15).
func ControlChange(channel, controller, value int) []byte {
	return []byte{statusControlChange | byte(channel&0x0F), clamp7(controller), clamp7(value)}
}

// NoteOn encodes a note-on. A velocity of zero is conventionally a
// note-off; callers wanting an explicit off should use NoteOff.
func NoteOn(channel, note, velocity int) []byte {
	return []byte{statusNoteOn | byte(channel&0x0F), clamp7(note), clamp7(velocity)}
}

// NoteOff encodes a note-off with velocity zero.
func NoteOff(channel, note int) []byte {
	return []byte{statusNoteOff | byte(channel&0x0F), clamp7(note), 0}
}

// ProgramChange encodes a program change. Two bytes, no value byte.
func ProgramChange(channel, program int) []byte {
	return []byte{statusProgramChange | byte(channel&0x0F), clamp7(program)}
}

// Output is a writable MIDI destination.
type Output interface {
	Send(msg []byte) error
	Close() error
}

// Input delivers incoming control-change events. The channel is closed
// when the input shuts down.
type Input interface {
	Events() <-chan CCEvent
	Close() error
}

// CCEvent is a decoded incoming control-change message.
type CCEvent struct {
	Channel    int
	Controller int
	Value      int
}

// DeviceInfo describes a MIDI endpoint visible to the platform driver.
type DeviceInfo struct {
	Name         string
	Manufacturer string
}
