package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"samchat/internal/ai"
	"samchat/internal/cache"
	"samchat/internal/model"
	"samchat/internal/repository"
)

type fixture struct {
	db        *gorm.DB
	redis     *miniredis.Miniredis
	client    *redisv9.Client
	publisher *fakePublisher
	llm       *fakeLLM
	mailer    *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Conversation{}, &model.Message{}))

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &fixture{
		db:        db,
		redis:     mr,
		client:    client,
		publisher: &fakePublisher{repo: repository.NewMessageRepository(db)},
		llm:       &fakeLLM{reply: "hello"},
		mailer:    &fakeMailer{},
	}
}

func (f *fixture) authService(debug bool) *AuthService {
	return NewAuthService(
		repository.NewUserRepository(f.db),
		cache.NewLoginTokenStore(f.client, 24*time.Hour),
		f.mailer,
		zap.NewNop(),
		AuthOptions{
			JWTSecret:     "test-secret",
			JWTExpiration: time.Hour,
			AllowedDomain: "teddydigital.io",
			DebugTokens:   debug,
		},
	)
}

func (f *fixture) chatService() *ChatService {
	return f.chatServiceWithCache(cache.NewHistoryCache(f.client, time.Hour, time.Minute))
}

func (f *fixture) chatServiceWithCache(historyCache HistoryCache) *ChatService {
	return NewChatService(
		repository.NewConversationRepository(f.db),
		repository.NewMessageRepository(f.db),
		f.publisher,
		historyCache,
		f.llm,
		ai.ChatConfig{BaseURL: "http://llm", APIKey: "k", Model: "gpt-4"},
		10,
		zap.NewNop(),
	)
}

// fakePublisher persists synchronously, standing in for queue plus worker.
// With hold set, messages wait in pending until drain, like a lagging worker.
type fakePublisher struct {
	mu      sync.Mutex
	repo    *repository.MessageRepository
	err     error
	hold    bool
	sent    []model.Message
	pending []model.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	if p.hold {
		p.pending = append(p.pending, msg)
		return nil
	}
	return p.repo.Create(&msg)
}

func (p *fakePublisher) drain(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range p.pending {
		require.NoError(t, p.repo.Create(&msg))
	}
	p.pending = nil
	p.hold = false
}

// failingSetCache fails every SetHistory while setErr is set.
type failingSetCache struct {
	*cache.HistoryCache
	setErr error
}

func (c *failingSetCache) SetHistory(ctx context.Context, conversationID string, messages []model.Message) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.HistoryCache.SetHistory(ctx, conversationID, messages)
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]ai.ChatMessage
}

func (l *fakeLLM) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, messages)
	return l.reply, l.err
}

type fakeMailer struct {
	err  error
	sent map[string]string
}

func (m *fakeMailer) SendLoginToken(_ context.Context, to, token string) error {
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[to] = token
	return m.err
}

var errBoom = errors.New("boom")
