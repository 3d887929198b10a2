package models

// ChannelStrip is one fader lane of a profile's console: a level fader,
// mute/solo flags, and the MIDI wire mappings that mirror it to hardware.
type ChannelStrip struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"` // Ordering within the profile
	Color     string `json:"color"`

	MinLevel     int  `json:"min_level"`
	MaxLevel     int  `json:"max_level"`
	CurrentLevel int  `json:"current_level"`
	IsMuted      bool `json:"is_muted"`
	IsSolo       bool `json:"is_solo"`

	// MIDI wire mappings. VU, mute and solo CCs are optional.
	MIDICCOutput  int  `json:"midi_cc_output"`
	MIDICCVUInput *int `json:"midi_cc_vu_input,omitempty"`
	MIDICCVURight *int `json:"midi_cc_vu_right,omitempty"` // Stereo pair, if any
	MIDICCMute    *int `json:"midi_cc_mute,omitempty"`
	MIDICCSolo    *int `json:"midi_cc_solo,omitempty"`
	MIDIChannel   *int `json:"midi_channel,omitempty"` // Override; nil = global default

	// StateVersion increments on every authoritative change to
	// level/mute/solo. VU levels never bump it.
	StateVersion int64 `json:"state_version"`

	// Ephemeral meter levels, most-recent-write-wins.
	VULevel      int `json:"vu_level"`
	VULevelRight int `json:"vu_level_right"`
}

// EffectiveLevels computes each strip's output level after the mute/solo
// cascade: a muted strip outputs zero, and if any strip in the set is
// soloed, every non-soloed strip outputs zero. Pure; recomputed on demand.
func EffectiveLevels(strips []ChannelStrip) map[string]int {
	anySolo := false
	for _, s := range strips {
		if s.IsSolo {
			anySolo = true
			break
		}
	}

	out := make(map[string]int, len(strips))
	for _, s := range strips {
		switch {
		case s.IsMuted:
			out[s.ID] = 0
		case anySolo && !s.IsSolo:
			out[s.ID] = 0
		default:
			out[s.ID] = s.CurrentLevel
		}
	}
	return out
}
