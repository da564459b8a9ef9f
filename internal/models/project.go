package models

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxProjectNameLength is counted in characters, not bytes.
const MaxProjectNameLength = 200

var (
	ErrNameRequired    = errors.New("name is required")
	ErrNameTooLong     = errors.New("name is too long")
	ErrNothingToUpdate = errors.New("no fields to update")
)

type Project struct {
	Base
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Normalize trims the input and checks required fields.
func (r *CreateProjectRequest) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(r.Name) > MaxProjectNameLength {
		return ErrNameTooLong
	}
	r.Description = trimmedOrNil(r.Description)
	return nil
}

// UpdateProjectRequest is a partial update; nil fields are left untouched.
// An empty description clears it.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r *UpdateProjectRequest) Normalize() error {
	if r.Name == nil && r.Description == nil {
		return ErrNothingToUpdate
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return ErrNameRequired
		}
		if utf8.RuneCountInString(name) > MaxProjectNameLength {
			return ErrNameTooLong
		}
		r.Name = &name
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
	return nil
}

// Apply writes the update onto p. Callers refresh UpdatedAt themselves.
func (r UpdateProjectRequest) Apply(p *Project) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		if *r.Description == "" {
			p.Description = nil
		} else {
			d := *r.Description
			p.Description = &d
		}
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
