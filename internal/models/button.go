package models

// ButtonMode controls how a button press is interpreted.
type ButtonMode string

const (
	// ButtonToggle flips and persists the on/off state per press.
	ButtonToggle ButtonMode = "toggle"
	// ButtonMomentary fires "on" immediately and "off" after a short
	// fixed delay; no state is persisted.
	ButtonMomentary ButtonMode = "momentary"
)

// MIDIType selects the wire message family a button emits.
type MIDIType string

const (
	MIDITypeCC      MIDIType = "cc"
	MIDITypeNote    MIDIType = "note"
	MIDITypeProgram MIDIType = "pc"
)

// Button is a control button on the console surface.
type Button struct {
	ID        string     `json:"id"`
	ProfileID string     `json:"profile_id"`
	Label     string     `json:"label"`
	Mode      ButtonMode `json:"mode"`
	MIDIType  MIDIType   `json:"midi_type"`

	// Target is the CC or note number; ignored for program changes,
	// which carry the program in the on/off values.
	Target   int `json:"target"`
	OnValue  int `json:"on_value"`
	OffValue int `json:"off_value"`

	MIDIChannel    *int    `json:"midi_channel,omitempty"`     // Override; nil = global default
	ChannelStripID *string `json:"channel_strip_id,omitempty"` // nil = unassigned group

	// IsOn is meaningful for toggle buttons only.
	IsOn         bool  `json:"is_on"`
	StateVersion int64 `json:"state_version"`
}
