package models

import "time"

// ActivityRecord tracks when a user last interacted with a profile. It is
// purely informational, never versioned, and pruned after inactivity.
type ActivityRecord struct {
	ProfileID   string    `json:"profile_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LastSeen    time.Time `json:"last_seen"`
}
