package models

import (
	"time"
)

// Message represents a chat message in the shared room. Human messages
// carry AuthorID; persisted AI replies carry PersonaID instead.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text" json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	AuthorID  uint      `gorm:"index" json:"author_id"`
	PersonaID *uint     `gorm:"index" json:"persona_id,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// IsAIReply reports whether the message was written by a persona
func (m *Message) IsAIReply() bool {
	return m.PersonaID != nil
}
