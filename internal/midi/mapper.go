package midi

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/models"
)

// Mapper translates console state into outgoing MIDI messages. Fader
// levels always go out at their effective value after the mute/solo
// cascade, so a mute or solo change retransmits every fader.
type Mapper struct {
	logger         *zap.Logger
	defaultChannel int
	momentaryDelay time.Duration

	mu      sync.Mutex
	out     Output
	enabled bool
	pending map[string]*time.Timer // Scheduled momentary releases, by press ID
}

// NewMapper creates a mapper writing to out. A nil out leaves the
// mapper disabled until SetOutput is called.
func NewMapper(out Output, defaultChannel int, momentaryDelay time.Duration, logger *zap.Logger) *Mapper {
	return &Mapper{
		logger:         logger,
		defaultChannel: defaultChannel,
		momentaryDelay: momentaryDelay,
		out:            out,
		enabled:        out != nil,
		pending:        make(map[string]*time.Timer),
	}
}

// SetOutput swaps the output device. Pending momentary releases carry
// over; they fire on the new output.
func (m *Mapper) SetOutput(out Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = out
}

// SetEnabled toggles hardware output. Disabling cancels every pending
// momentary release; those buttons stay "on" on the wire until the
// hardware is reset out of band, which is the desired behavior for
// panic-style disables.
func (m *Mapper) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		for id, timer := range m.pending {
			timer.Stop()
			delete(m.pending, id)
		}
	}
}

// Enabled reports whether output is currently active.
func (m *Mapper) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Mapper) channelFor(override *int) int {
	if override != nil {
		return *override
	}
	return m.defaultChannel
}

func (m *Mapper) sendLocked(msg []byte) {
	if !m.enabled || m.out == nil {
		return
	}
	if err := m.out.Send(msg); err != nil {
		m.logger.Warn("midi send failed", zap.Error(err))
	}
}

func (m *Mapper) send(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendLocked(msg)
}

// SendLevel transmits one strip's fader CC at the given effective level.
func (m *Mapper) SendLevel(strip *models.ChannelStrip, effective int) {
	m.send(ControlChange(m.channelFor(strip.MIDIChannel), strip.MIDICCOutput, effective))
}

// SendAllLevels recomputes the cascade and retransmits every fader CC.
// Called after any mute or solo change since one flag can move the
// effective level of every strip in the set.
func (m *Mapper) SendAllLevels(strips []models.ChannelStrip) {
	effective := models.EffectiveLevels(strips)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range strips {
		s := &strips[i]
		m.sendLocked(ControlChange(m.channelFor(s.MIDIChannel), s.MIDICCOutput, effective[s.ID]))
	}
}

// SendMuteSolo transmits the changed strip's mute/solo indicator CCs if
// mapped, then retransmits all fader levels.
func (m *Mapper) SendMuteSolo(strips []models.ChannelStrip, changed *models.ChannelStrip) {
	ch := m.channelFor(changed.MIDIChannel)
	m.mu.Lock()
	if changed.MIDICCMute != nil {
		m.sendLocked(ControlChange(ch, *changed.MIDICCMute, flagValue(changed.IsMuted)))
	}
	if changed.MIDICCSolo != nil {
		m.sendLocked(ControlChange(ch, *changed.MIDICCSolo, flagValue(changed.IsSolo)))
	}
	m.mu.Unlock()
	m.SendAllLevels(strips)
}

func flagValue(on bool) int {
	if on {
		return 127
	}
	return 0
}

func buttonMessage(b *models.Button, channel int, on bool) []byte {
	value := b.OffValue
	if on {
		value = b.OnValue
	}
	switch b.MIDIType {
	case models.MIDITypeNote:
		if on {
			return NoteOn(channel, b.Target, b.OnValue)
		}
		return NoteOff(channel, b.Target)
	case models.MIDITypeProgram:
		return ProgramChange(channel, value)
	default:
		return ControlChange(channel, b.Target, value)
	}
}

// PressButton emits the wire messages for a button state change. Toggle
// buttons send their on or off message directly. Momentary buttons send
// "on" now and schedule the matching "off" after the configured delay;
// the release is cancelable only by disabling output.
func (m *Mapper) PressButton(b *models.Button, on bool) {
	ch := m.channelFor(b.MIDIChannel)

	if b.Mode != models.ButtonMomentary {
		m.send(buttonMessage(b, ch, on))
		return
	}

	off := buttonMessage(b, ch, false)
	pressID := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || m.out == nil {
		// No on message went out, so never schedule its off.
		return
	}
	m.sendLocked(buttonMessage(b, ch, true))
	m.pending[pressID] = time.AfterFunc(m.momentaryDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.pending[pressID]; !ok {
			return
		}
		delete(m.pending, pressID)
		m.sendLocked(off)
	})
}

// PendingReleases reports the number of scheduled momentary offs.
func (m *Mapper) PendingReleases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close cancels pending releases and closes the output device.
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, timer := range m.pending {
		timer.Stop()
		delete(m.pending, id)
	}
	if m.out == nil {
		return nil
	}
	err := m.out.Close()
	m.out = nil
	return err
}

// RouteVU maps an incoming CC event to the strip whose VU input it
// feeds. right reports whether it hit the stereo right-side CC.
func RouteVU(strips []models.ChannelStrip, ev CCEvent, defaultChannel int) (stripID string, right bool, ok bool) {
	for i := range strips {
		s := &strips[i]
		ch := defaultChannel
		if s.MIDIChannel != nil {
			ch = *s.MIDIChannel
		}
		if ch != ev.Channel {
			continue
		}
		if s.MIDICCVUInput != nil && *s.MIDICCVUInput == ev.Controller {
			return s.ID, false, true
		}
		if s.MIDICCVURight != nil && *s.MIDICCVURight == ev.Controller {
			return s.ID, true, true
		}
	}
	return "", false, false
}
