package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"samchat/internal/ai"
	"samchat/internal/model"
	"samchat/internal/render"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrMessageEnqueue       = errors.New("message enqueue failed")
	ErrCompletion           = errors.New("completion failed")
)

const (
	previewRunes        = 50
	emptyPreview        = "Nova conversa"
	emptyCompletion     = "The model returned an empty response."
	maxConversationID   = 36
	defaultContextLimit = 10
)

type ConversationStore interface {
	Create(conversation *model.Conversation) error
	GetByID(id string) (*model.Conversation, error)
	GetByIDAndUserEmail(id, email string) (*model.Conversation, error)
	ListByUserEmail(email string) ([]model.Conversation, error)
	UpdateLastMessage(id, content string) error
	DeleteWithMessages(id, email string) (bool, error)
}

type MessageStore interface {
	ListByConversationID(conversationID string, limit int) ([]model.Message, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID string) error
	MarkDirty(ctx context.Context, conversationID string) error
	IsDirty(ctx context.Context, conversationID string) (bool, error)
}

type ChatCompleter interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	publisher     AsyncMessagePublisher
	historyCache  HistoryCache
	llm           ChatCompleter
	llmConfig     ai.ChatConfig
	maxContext    int
	logger        *zap.Logger
	turns         *keyedMutex
	now           func() time.Time
}

type ChatInput struct {
	Email          string
	ConversationID string
	Message        string
}

type ChatResult struct {
	ConversationID string    `json:"conversation_id"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastMessage string    `json:"last_message"`
}

type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationDetail struct {
	ID        string        `json:"id"`
	UserEmail string        `json:"user_email"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []MessageView `json:"messages"`
}

func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	llm ChatCompleter,
	llmConfig ai.ChatConfig,
	maxContext int,
	logger *zap.Logger,
) *ChatService {
	if maxContext <= 0 {
		maxContext = defaultContextLimit
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		historyCache:  historyCache,
		llm:           llm,
		llmConfig:     llmConfig,
		maxContext:    maxContext,
		logger:        logger,
		turns:         newKeyedMutex(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Chat appends the user's message to the conversation, asks the model for a
// reply over the most recent messages and stores the formatted reply. A new
// conversation is created when the id is empty or unknown.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	if input.Email == "" || len(input.ConversationID) > maxConversationID {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Message)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	unlock := s.turns.Lock(conversationID)
	defer unlock()

	if err := s.ensureConversation(conversationID, input.Email); err != nil {
		return nil, err
	}

	cached := s.cacheTrusted(ctx, conversationID)
	history, err := s.history(ctx, conversationID, cached)
	if err != nil {
		return nil, err
	}

	userMessage := model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.record(ctx, &history, userMessage, &cached); err != nil {
		return nil, err
	}

	reply, err := s.llm.Complete(ctx, s.llmConfig, s.promptMessages(history))
	if err != nil {
		s.logger.Error("llm completion failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyCompletion
	}

	assistantMessage := model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        render.FormatResponse(reply),
		CreatedAt:      s.now(),
	}
	if err := s.record(ctx, &history, assistantMessage, &cached); err != nil {
		return nil, err
	}

	return &ChatResult{
		ConversationID: conversationID,
		Message:        assistantMessage.Content,
		Timestamp:      assistantMessage.CreatedAt,
	}, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *ChatService) ListConversations(email string) ([]ConversationSummary, error) {
	if email == "" {
		return nil, ErrInvalidInput
	}
	conversations, err := s.conversations.ListByUserEmail(email)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, ConversationSummary{
			ID:          c.ID,
			CreatedAt:   c.CreatedAt,
			LastMessage: preview(c.LastMessage),
		})
	}
	return out, nil
}

func (s *ChatService) GetConversation(ctx context.Context, email, conversationID string) (*ConversationDetail, error) {
	conversation, err := s.owned(email, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conversation.ID, s.cacheTrusted(ctx, conversation.ID))
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(history))
	for _, m := range history {
		views = append(views, MessageView{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	return &ConversationDetail{
		ID:        conversation.ID,
		UserEmail: conversation.UserEmail,
		CreatedAt: conversation.CreatedAt,
		Messages:  views,
	}, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, email, conversationID string) error {
	if email == "" || conversationID == "" {
		return ErrConversationNotFound
	}
	deleted, err := s.conversations.DeleteWithMessages(conversationID, email)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrConversationNotFound
	}
	if err := s.historyCache.DeleteHistory(ctx, conversationID); err != nil {
		s.logger.Warn("drop cached history failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

func (s *ChatService) owned(email, conversationID string) (*model.Conversation, error) {
	if email == "" || conversationID == "" {
		return nil, ErrConversationNotFound
	}
	conversation, err := s.conversations.GetByIDAndUserEmail(conversationID, email)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ChatService) ensureConversation(conversationID, email string) error {
	existing, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.UserEmail != email {
			return ErrConversationNotFound
		}
		return nil
	}
	return s.conversations.Create(&model.Conversation{
		ID:        conversationID,
		UserEmail: email,
		CreatedAt: s.now(),
	})
}

// cacheTrusted reports whether the cached history may be read and rebuilt.
// It is not while the conversation is marked dirty: the cache missed a write
// and the database may still lag behind the persist queue.
func (s *ChatService) cacheTrusted(ctx context.Context, conversationID string) bool {
	dirty, err := s.historyCache.IsDirty(ctx, conversationID)
	if err != nil {
		s.logger.Warn("check history dirty marker failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return false
	}
	return !dirty
}

// history reads the conversation from the cache, falling back to the
// database on a miss or a cache error. The database copy only warms the cache
// when the cache is trusted.
func (s *ChatService) history(ctx context.Context, conversationID string, cached bool) ([]model.Message, error) {
	if cached {
		messages, hit, err := s.historyCache.GetHistory(ctx, conversationID)
		if err == nil && hit {
			return messages, nil
		}
		if err != nil {
			s.logger.Warn("read cached history failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	stored, err := s.messages.ListByConversationID(conversationID, 0)
	if err != nil {
		return nil, err
	}
	if cached {
		if err := s.historyCache.SetHistory(ctx, conversationID, stored); err != nil {
			s.logger.Warn("warm history cache failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return stored, nil
}

// record queues msg for persistence and writes it through to the cache and
// the conversation preview. A failed write-through drops the cached copy and
// marks the conversation dirty; while dirty every queued message renews the
// marker so the cache is rebuilt only after the queue had time to drain.
func (s *ChatService) record(ctx context.Context, history *[]model.Message, msg model.Message, cached *bool) error {
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("enqueue message failed", zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		return ErrMessageEnqueue
	}
	*history = append(*history, msg)

	if *cached {
		if err := s.historyCache.SetHistory(ctx, msg.ConversationID, *history); err != nil {
			s.logger.Warn("write cached history failed", zap.String("conversation_id", msg.ConversationID), zap.Error(err))
			*cached = false
		}
	}
	if !*cached {
		s.invalidate(ctx, msg.ConversationID)
	}
	return s.conversations.UpdateLastMessage(msg.ConversationID, msg.Content)
}

func (s *ChatService) invalidate(ctx context.Context, conversationID string) {
	if err := s.historyCache.MarkDirty(ctx, conversationID); err != nil {
		s.logger.Warn("mark history dirty failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	if err := s.historyCache.DeleteHistory(ctx, conversationID); err != nil {
		s.logger.Warn("drop cached history failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func (s *ChatService) promptMessages(history []model.Message) []ai.ChatMessage {
	recent := history
	if len(recent) > s.maxContext {
		recent = recent[len(recent)-s.maxContext:]
	}
	out := make([]ai.ChatMessage, 0, len(recent))
	for _, m := range recent {
		out = append(out, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func preview(last string) string {
	if last == "" {
		return emptyPreview
	}
	if utf8.RuneCountInString(last) > previewRunes {
		last = string([]rune(last)[:previewRunes])
	}
	return last + "..."
}
