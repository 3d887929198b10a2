package models

// User represents a caller identity resolved by the external auth service.
type User struct {
	ID          string `json:"id"`
	LoginName   string `json:"login_name"`   // e.g., "user@example.com"
	DisplayName string `json:"display_name"` // e.g., "John Doe"
}
