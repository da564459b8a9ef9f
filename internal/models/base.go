package models

import (
	"time"

	"github.com/google/uuid"
)

// Base carries the default columns every persisted entity has.
type Base struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBase returns a Base with a fresh identifier and both timestamps set to now.
func NewBase(now time.Time) Base {
	now = now.UTC()
	return Base{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes UpdatedAt. CreatedAt and ID never change after creation.
func (b *Base) Touch(now time.Time) {
	now = now.UTC()
	if now.Before(b.UpdatedAt) {
		return
	}
	b.UpdatedAt = now
}
