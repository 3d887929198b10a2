package midi

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/models"
)

type fakeOutput struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeOutput) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(msg))
	copy(buf, msg)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *fakeOutput) Close() error { return nil }

func (f *fakeOutput) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func intPtr(v int) *int { return &v }

func testStrips() []models.ChannelStrip {
	return []models.ChannelStrip{
		{ID: "a", CurrentLevel: 100, MIDICCOutput: 1},
		{ID: "b", CurrentLevel: 64, MIDICCOutput: 2, MIDIChannel: intPtr(5)},
		{ID: "c", CurrentLevel: 32, MIDICCOutput: 3, MIDICCMute: intPtr(40)},
	}
}

func TestSendLevelUsesEffectiveChannel(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 2, time.Second, zap.NewNop())
	strips := testStrips()

	m.SendLevel(&strips[0], 100)
	m.SendLevel(&strips[1], 64)

	sent := out.messages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if !bytes.Equal(sent[0], []byte{0xB2, 1, 100}) {
		t.Fatalf("default channel not applied: %v", sent[0])
	}
	if !bytes.Equal(sent[1], []byte{0xB5, 2, 64}) {
		t.Fatalf("override channel not applied: %v", sent[1])
	}
}

func TestMuteRetransmitsEveryFader(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, time.Second, zap.NewNop())
	strips := testStrips()
	strips[2].IsMuted = true

	m.SendMuteSolo(strips, &strips[2])

	sent := out.messages()
	// One mute indicator CC plus one fader CC per strip.
	if len(sent) != 4 {
		t.Fatalf("expected 4 messages, got %d: %v", len(sent), sent)
	}
	if !bytes.Equal(sent[0], []byte{0xB0, 40, 127}) {
		t.Fatalf("mute indicator wrong: %v", sent[0])
	}
	// The muted strip's fader goes out at zero.
	last := sent[3]
	if !bytes.Equal(last, []byte{0xB0, 3, 0}) {
		t.Fatalf("muted fader should transmit zero: %v", last)
	}
	// Unaffected strips retransmit their current level.
	if !bytes.Equal(sent[1], []byte{0xB0, 1, 100}) {
		t.Fatalf("unaffected fader wrong: %v", sent[1])
	}
}

func TestSoloSilencesOtherFaders(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, time.Second, zap.NewNop())
	strips := testStrips()
	strips[0].IsSolo = true

	m.SendAllLevels(strips)

	sent := out.messages()
	if len(sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sent))
	}
	if sent[0][2] != 100 {
		t.Fatalf("soloed strip should keep its level: %v", sent[0])
	}
	if sent[1][2] != 0 || sent[2][2] != 0 {
		t.Fatalf("non-soloed strips should be silenced: %v %v", sent[1], sent[2])
	}
}

func TestToggleButtonSendsSingleMessage(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, time.Second, zap.NewNop())
	button := &models.Button{Mode: models.ButtonToggle, MIDIType: models.MIDITypeCC, Target: 20, OnValue: 127, OffValue: 0}

	m.PressButton(button, true)
	m.PressButton(button, false)

	sent := out.messages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if !bytes.Equal(sent[0], []byte{0xB0, 20, 127}) || !bytes.Equal(sent[1], []byte{0xB0, 20, 0}) {
		t.Fatalf("unexpected toggle messages: %v", sent)
	}
}

func TestProgramChangeButtonIgnoresTarget(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 3, time.Second, zap.NewNop())
	button := &models.Button{Mode: models.ButtonToggle, MIDIType: models.MIDITypeProgram, Target: 99, OnValue: 12, OffValue: 4}

	m.PressButton(button, true)

	sent := out.messages()
	if !bytes.Equal(sent[0], []byte{0xC3, 12}) {
		t.Fatalf("program change should carry the on value: %v", sent[0])
	}
}

func TestMomentaryButtonSchedulesRelease(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, 20*time.Millisecond, zap.NewNop())
	button := &models.Button{Mode: models.ButtonMomentary, MIDIType: models.MIDITypeNote, Target: 60, OnValue: 127}

	m.PressButton(button, true)
	if len(out.messages()) != 1 {
		t.Fatalf("expected immediate on, got %v", out.messages())
	}
	if m.PendingReleases() != 1 {
		t.Fatalf("expected one pending release, got %d", m.PendingReleases())
	}

	deadline := time.Now().Add(time.Second)
	for m.PendingReleases() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sent := out.messages()
	if len(sent) != 2 {
		t.Fatalf("expected on then off, got %v", sent)
	}
	if !bytes.Equal(sent[0], []byte{0x90, 60, 127}) {
		t.Fatalf("unexpected on message: %v", sent[0])
	}
	if !bytes.Equal(sent[1], []byte{0x80, 60, 0}) {
		t.Fatalf("unexpected off message: %v", sent[1])
	}
}

func TestMomentaryPressWhileDisabledSchedulesNothing(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, 20*time.Millisecond, zap.NewNop())
	button := &models.Button{Mode: models.ButtonMomentary, MIDIType: models.MIDITypeCC, Target: 20, OnValue: 127}

	m.SetEnabled(false)
	m.PressButton(button, true)
	if n := m.PendingReleases(); n != 0 {
		t.Fatalf("disabled press scheduled %d releases", n)
	}

	// Re-enabling inside the delay window must not surface an off whose
	// on was never sent.
	m.SetEnabled(true)
	time.Sleep(60 * time.Millisecond)
	if sent := out.messages(); len(sent) != 0 {
		t.Fatalf("stray messages after re-enable: %v", sent)
	}
}

func TestDisableCancelsPendingReleases(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, 30*time.Millisecond, zap.NewNop())
	button := &models.Button{Mode: models.ButtonMomentary, MIDIType: models.MIDITypeCC, Target: 20, OnValue: 127}

	m.PressButton(button, true)
	m.SetEnabled(false)
	if m.PendingReleases() != 0 {
		t.Fatalf("disable should cancel releases, %d pending", m.PendingReleases())
	}

	time.Sleep(80 * time.Millisecond)
	sent := out.messages()
	if len(sent) != 1 {
		t.Fatalf("release fired after disable: %v", sent)
	}
}

func TestDisabledMapperSendsNothing(t *testing.T) {
	out := &fakeOutput{}
	m := NewMapper(out, 0, time.Second, zap.NewNop())
	m.SetEnabled(false)

	strips := testStrips()
	m.SendLevel(&strips[0], 100)
	m.SendAllLevels(strips)

	if len(out.messages()) != 0 {
		t.Fatalf("disabled mapper sent: %v", out.messages())
	}
}

func TestRouteVU(t *testing.T) {
	strips := []models.ChannelStrip{
		{ID: "a", MIDICCVUInput: intPtr(10), MIDICCVURight: intPtr(11)},
		{ID: "b", MIDICCVUInput: intPtr(10), MIDIChannel: intPtr(5)},
	}

	id, right, ok := RouteVU(strips, CCEvent{Channel: 0, Controller: 10, Value: 90}, 0)
	if !ok || id != "a" || right {
		t.Fatalf("expected a/left, got %q right=%v ok=%v", id, right, ok)
	}

	id, right, ok = RouteVU(strips, CCEvent{Channel: 0, Controller: 11, Value: 90}, 0)
	if !ok || id != "a" || !right {
		t.Fatalf("expected a/right, got %q right=%v ok=%v", id, right, ok)
	}

	// Channel override separates strips sharing a controller number.
	id, _, ok = RouteVU(strips, CCEvent{Channel: 5, Controller: 10, Value: 90}, 0)
	if !ok || id != "b" {
		t.Fatalf("expected b on channel 5, got %q ok=%v", id, ok)
	}

	if _, _, ok := RouteVU(strips, CCEvent{Channel: 2, Controller: 10}, 0); ok {
		t.Fatal("unmatched channel should not route")
	}
}
