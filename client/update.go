package client

import "github.com/phroun/faderbank/internal/protocol"

// Update is an inbound state change from either transport. The variants
// are a closed set; the session consumes them from one channel so every
// merge decision happens on a single goroutine.
type Update interface {
	isUpdate()
}

// SnapshotReceived carries a full authoritative snapshot, from the
// initial WebSocket join or a poll cycle.
type SnapshotReceived struct {
	Snapshot *protocol.SnapshotMessage
}

// LevelChanged is a broadcast fader level change.
type LevelChanged struct {
	protocol.LevelUpdate
}

// MuteChanged is a broadcast mute change.
type MuteChanged struct {
	protocol.MuteUpdate
}

// SoloChanged is a broadcast solo change.
type SoloChanged struct {
	protocol.SoloUpdate
}

// ButtonChanged is a broadcast button state change or momentary press.
type ButtonChanged struct {
	protocol.ButtonUpdate
}

// ResponsibilityChanged is a broadcast responsibility handoff. An empty
// UserID means the token was dropped.
type ResponsibilityChanged struct {
	protocol.ResponsibilityUpdate
}

// PresenceChanged is a broadcast join or leave.
type PresenceChanged struct {
	protocol.PresenceUpdate
}

// ConfigChanged is a broadcast layout change.
type ConfigChanged struct {
	protocol.ConfigUpdate
}

// VULevels carries relayed meter peaks. Never version-gated.
type VULevels struct {
	protocol.VUUpdate
}

// AckReceived resolves an in-flight mutation with its authoritative
// version.
type AckReceived struct {
	protocol.AckMessage
}

// ErrorReceived surfaces a server-side rejection.
type ErrorReceived struct {
	protocol.ErrorMessage
}

func (SnapshotReceived) isUpdate()      {}
func (LevelChanged) isUpdate()          {}
func (MuteChanged) isUpdate()           {}
func (SoloChanged) isUpdate()           {}
func (ButtonChanged) isUpdate()         {}
func (ResponsibilityChanged) isUpdate() {}
func (PresenceChanged) isUpdate()       {}
func (ConfigChanged) isUpdate()         {}
func (VULevels) isUpdate()              {}
func (AckReceived) isUpdate()           {}
func (ErrorReceived) isUpdate()         {}

// Command is an outbound user intent. Commands run on the session loop
// so optimistic applies interleave deterministically with inbound
// updates.
type Command interface {
	isCommand()
}

// SetLevel moves a fader. Final marks the end of a drag gesture.
type SetLevel struct {
	ChannelID string
	Level     int
	Final     bool
}

// SetMute flips a strip's mute flag.
type SetMute struct {
	ChannelID string
	Muted     bool
}

// SetSolo flips a strip's solo flag.
type SetSolo struct {
	ChannelID string
	Solo      bool
}

// PressButton presses a console button. On is the desired toggle state
// and is ignored for momentary buttons.
type PressButton struct {
	ButtonID string
	On       bool
}

// BeginDrag marks a fader as locally grabbed: inbound level updates for
// it are ignored until EndDrag, though versions still advance.
type BeginDrag struct {
	ChannelID string
}

// EndDrag releases a locally grabbed fader.
type EndDrag struct {
	ChannelID string
}

// Take requests responsibility for the profile.
type Take struct {
	Force bool
}

// Drop releases responsibility.
type Drop struct{}

func (SetLevel) isCommand()    {}
func (SetMute) isCommand()     {}
func (SetSolo) isCommand()     {}
func (PressButton) isCommand() {}
func (BeginDrag) isCommand()   {}
func (EndDrag) isCommand()     {}
func (Take) isCommand()        {}
func (Drop) isCommand()        {}
