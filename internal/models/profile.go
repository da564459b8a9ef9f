package models

// Profile mirrors a user of the hosted auth service. Its ID is the auth user id.
type Profile struct {
	Base
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
}
