package repository

import (
	"fmt"
	"slices"

	"gorm.io/gorm"

	"samchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListByConversationID returns the conversation's messages oldest first. A
// positive limit keeps only the newest limit messages; zero or less returns
// the whole history.
func (r *MessageRepository) ListByConversationID(conversationID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	if limit <= 0 {
		if err := r.db.Where("conversation_id = ?", conversationID).
			Order("created_at ASC").Order("id ASC").
			Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("list messages failed: %w", err)
		}
		return messages, nil
	}

	if err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}
