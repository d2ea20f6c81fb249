package models

import (
	"time"
)

// Persona is an AI character definition owned by exactly one user.
// The owner is the only participant allowed to invoke it.
type Persona struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Personality string    `json:"personality"`
	ModelName   string    `json:"model_name"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreatePersonaRequest is the request structure for creating a persona
type CreatePersonaRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	ModelName   string `json:"model_name"`
	AvatarURL   string `json:"avatar_url"`
}
