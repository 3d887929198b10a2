package protocol

import (
	"encoding/json"

	"github.com/phroun/faderbank/internal/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Client -> Server
	TypeJoin        MessageType = "join"
	TypeLeave       MessageType = "leave"
	TypeSetLevel    MessageType = "set_level"
	TypeSetMute     MessageType = "set_mute"
	TypeSetSolo     MessageType = "set_solo"
	TypePressButton MessageType = "press_button"
	TypeVUReport    MessageType = "vu_report"
	TypeTake        MessageType = "take_responsibility"
	TypeDrop        MessageType = "drop_responsibility"

	// Server -> Client
	TypeSnapshot       MessageType = "snapshot"
	TypeLevel          MessageType = "level"
	TypeMute           MessageType = "mute"
	TypeSolo           MessageType = "solo"
	TypeButton         MessageType = "button"
	TypeResponsibility MessageType = "responsibility"
	TypePresence       MessageType = "presence"
	TypeConfig         MessageType = "config"
	TypeVU             MessageType = "vu"
	TypeAck            MessageType = "ack"
	TypeError          MessageType = "error"
)

// Envelope wraps all WebSocket messages with a type field.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinMessage subscribes the session to a profile room.
type JoinMessage struct {
	ProfileID string `json:"profile_id"`
}

// LeaveMessage unsubscribes the session from a profile room.
type LeaveMessage struct {
	ProfileID string `json:"profile_id"`
}

// SetLevelMessage is a fader level mutation intent.
type SetLevelMessage struct {
	ChannelID string `json:"channel_id"`
	Level     int    `json:"level"`
	Final     bool   `json:"final,omitempty"` // End of a drag gesture
}

// SetMuteMessage is a mute mutation intent.
type SetMuteMessage struct {
	ChannelID string `json:"channel_id"`
	Muted     bool   `json:"muted"`
}

// SetSoloMessage is a solo mutation intent.
type SetSoloMessage struct {
	ChannelID string `json:"channel_id"`
	Solo      bool   `json:"solo"`
}

// PressButtonMessage is a button press intent. On carries the desired
// toggle state; it is ignored for momentary buttons.
type PressButtonMessage struct {
	ButtonID string `json:"button_id"`
	On       bool   `json:"on"`
}

// VUSample is one meter reading, optionally stereo.
type VUSample struct {
	Level int  `json:"level"`
	Right *int `json:"right,omitempty"`
}

// VUReportMessage carries batched meter peaks captured from a session's
// locally attached hardware input, keyed by channel strip ID.
type VUReportMessage struct {
	ProfileID string              `json:"profile_id"`
	Levels    map[string]VUSample `json:"levels"`
}

// TakeMessage requests responsibility for a profile.
type TakeMessage struct {
	ProfileID string `json:"profile_id"`
	Force     bool   `json:"force,omitempty"`
}

// DropMessage releases responsibility for a profile.
type DropMessage struct {
	ProfileID string `json:"profile_id"`
}

// SnapshotMessage is the full authoritative state of a profile: every
// entity with its state version, plus responsibility and presence.
type SnapshotMessage struct {
	Profile        models.Profile          `json:"profile"`
	Strips         []models.ChannelStrip   `json:"strips"`
	Buttons        []models.Button         `json:"buttons"`
	Responsibility models.Responsibility   `json:"responsibility"`
	Online         []models.ActivityRecord `json:"online"`
}

// LevelUpdate announces an authoritative fader level change.
type LevelUpdate struct {
	ChannelID string `json:"channel_id"`
	Level     int    `json:"level"`
	Version   int64  `json:"version"`
	UserID    string `json:"user_id,omitempty"`
}

// MuteUpdate announces an authoritative mute change.
type MuteUpdate struct {
	ChannelID string `json:"channel_id"`
	Muted     bool   `json:"muted"`
	Version   int64  `json:"version"`
	UserID    string `json:"user_id,omitempty"`
}

// SoloUpdate announces an authoritative solo change.
type SoloUpdate struct {
	ChannelID string `json:"channel_id"`
	Solo      bool   `json:"solo"`
	Version   int64  `json:"version"`
	UserID    string `json:"user_id,omitempty"`
}

// ButtonUpdate announces an authoritative button state change. For
// momentary buttons it marks the press itself.
type ButtonUpdate struct {
	ButtonID string `json:"button_id"`
	On       bool   `json:"on"`
	Version  int64  `json:"version"`
	UserID   string `json:"user_id,omitempty"`
}

// ResponsibilityUpdate announces a responsibility change. Empty UserID
// means the token was dropped. Not version-gated.
type ResponsibilityUpdate struct {
	ProfileID   string `json:"profile_id"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// PresenceUpdate announces a user joining or leaving a profile room.
type PresenceUpdate struct {
	ProfileID   string `json:"profile_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Online      bool   `json:"online"`
}

// ConfigKind identifies what a ConfigUpdate carries.
type ConfigKind string

const (
	ConfigStripAdded    ConfigKind = "strip_added"
	ConfigStripUpdated  ConfigKind = "strip_updated"
	ConfigStripDeleted  ConfigKind = "strip_deleted"
	ConfigStripsReorder ConfigKind = "strips_reordered"
	ConfigButtonAdded   ConfigKind = "button_added"
	ConfigButtonUpdated ConfigKind = "button_updated"
	ConfigButtonDeleted ConfigKind = "button_deleted"
)

// ConfigUpdate announces a layout change made by a privileged role.
type ConfigUpdate struct {
	ProfileID string               `json:"profile_id"`
	Kind      ConfigKind           `json:"kind"`
	Strip     *models.ChannelStrip `json:"strip,omitempty"`
	Button    *models.Button       `json:"button,omitempty"`
	DeletedID string               `json:"deleted_id,omitempty"`
	Order     []string             `json:"order,omitempty"` // For strips_reordered
}

// VUUpdate relays ephemeral meter levels. Never version-gated.
type VUUpdate struct {
	ProfileID string              `json:"profile_id"`
	Levels    map[string]VUSample `json:"levels"`
}

// AckMessage acknowledges a mutation intent with the new authoritative
// version of the entity it touched.
type AckMessage struct {
	Type     MessageType `json:"type"` // The intent being acknowledged
	EntityID string      `json:"entity_id"`
	Version  int64       `json:"version"`
}

// ErrorMessage is sent when a request fails. For responsibility conflicts
// the current holder is included so the caller can offer a forced take.
type ErrorMessage struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HolderID   string `json:"holder_id,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
}

// Error codes
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidMsg   = "invalid_message"
	ErrCodeOutOfRange   = "out_of_range"
	ErrCodeConflict     = "responsibility_held"
	ErrCodeInternal     = "internal_error"
)

// NewEnvelope creates an envelope with the given type and data.
func NewEnvelope(msgType MessageType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type: msgType,
		Data: raw,
	}, nil
}

// ParseEnvelope parses a JSON message into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
