package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"samchat/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(conversation *model.Conversation) error {
	if err := r.db.Create(conversation).Error; err != nil {
		return fmt.Errorf("create conversation failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(id string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) GetByIDAndUserEmail(id, email string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("id = ? AND user_email = ?", id, email).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

// ListByUserEmail returns the user's conversations, newest first.
func (r *ConversationRepository) ListByUserEmail(email string) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := r.db.Where("user_email = ?", email).Order("created_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) UpdateLastMessage(id, content string) error {
	if err := r.db.Model(&model.Conversation{}).Where("id = ?", id).Update("last_message", content).Error; err != nil {
		return fmt.Errorf("update conversation last message failed: %w", err)
	}
	return nil
}

// DeleteWithMessages removes the conversation and its persisted messages in
// one transaction. It reports false when nothing matched.
func (r *ConversationRepository) DeleteWithMessages(id, email string) (bool, error) {
	deleted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_email = ?", id, email).Delete(&model.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation failed: %w", err)
	}
	return deleted, nil
}
