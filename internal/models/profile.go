package models

import "time"

// Profile is a named console layout shared by a set of members.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"` // URL-friendly, unique
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is a member's permission level within a profile.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleOperator   Role = "operator"
	RoleGuest      Role = "guest"
)

var roleLevels = map[Role]int{
	RoleOwner:      5,
	RoleAdmin:      4,
	RoleTechnician: 3,
	RoleOperator:   2,
	RoleGuest:      1,
}

// AtLeast reports whether r grants at least the permissions of min.
// An unknown role grants nothing.
func (r Role) AtLeast(min Role) bool {
	return roleLevels[r] >= roleLevels[min] && roleLevels[r] > 0
}

// Member is a user's membership in a profile.
type Member struct {
	ProfileID   string `json:"profile_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}
