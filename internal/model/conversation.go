package model

import "time"

// Conversation ids are uuids assigned by the backend on the first message.
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserEmail   string    `gorm:"size:128;not null;index" json:"user_email"`
	LastMessage string    `gorm:"type:text" json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
