package models

import "time"

// Responsibility is the advisory single-holder lock for a profile. A zero
// UserID means nobody holds it. It is keyed by holder identity, not by a
// state version.
type Responsibility struct {
	ProfileID   string    `json:"profile_id"`
	UserID      string    `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	TakenAt     time.Time `json:"taken_at,omitempty"`
}

// Held reports whether anyone currently holds responsibility.
func (r Responsibility) Held() bool {
	return r.UserID != ""
}
