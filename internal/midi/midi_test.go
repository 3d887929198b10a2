package midi

import (
	"bytes"
	"testing"
)

func TestControlChange(t *testing.T) {
	msg := ControlChange(0, 7, 100)
	if !bytes.Equal(msg, []byte{0xB0, 7, 100}) {
		t.Fatalf("unexpected bytes: %v", msg)
	}
	msg = ControlChange(9, 7, 100)
	if msg[0] != 0xB9 {
		t.Fatalf("channel not in low nibble: %#x", msg[0])
	}
}

func TestNoteOnOff(t *testing.T) {
	on := NoteOn(1, 60, 127)
	if !bytes.Equal(on, []byte{0x91, 60, 127}) {
		t.Fatalf("unexpected note on: %v", on)
	}
	off := NoteOff(1, 60)
	if !bytes.Equal(off, []byte{0x81, 60, 0}) {
		t.Fatalf("unexpected note off: %v", off)
	}
}

func TestProgramChangeIsTwoBytes(t *testing.T) {
	msg := ProgramChange(2, 5)
	if !bytes.Equal(msg, []byte{0xC2, 5}) {
		t.Fatalf("unexpected program change: %v", msg)
	}
}

func TestEncodingClampsTo7Bits(t *testing.T) {
	msg := ControlChange(0, 200, 300)
	if msg[1] != 127 || msg[2] != 127 {
		t.Fatalf("values not clamped: %v", msg)
	}
	msg = ControlChange(0, -1, -5)
	if msg[1] != 0 || msg[2] != 0 {
		t.Fatalf("negatives not clamped: %v", msg)
	}
	// Channel wraps into the low nibble rather than clamping.
	msg = ControlChange(16, 0, 0)
	if msg[0] != 0xB0 {
		t.Fatalf("channel not masked: %#x", msg[0])
	}
}
