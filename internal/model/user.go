package model

// UserProfile is the read-only view of a user document.
type UserProfile struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Gender GenderRestriction `json:"gender"`
	Email  string            `json:"email,omitempty"`
	Phone  string            `json:"phone,omitempty"`
}
