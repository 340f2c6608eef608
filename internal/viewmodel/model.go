// Package viewmodel holds one browser's client state: which screen is shown,
// the auth form, the conversation list and the active conversation. Every
// operation is a direct call to the chat API followed by a state update.
package viewmodel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"samchat/internal/apiclient"
	"samchat/internal/session"
)

type View string

const (
	ViewLanding View = "landing"
	ViewAuth    View = "auth"
	ViewChat    View = "chat"
)

type AuthMode string

const (
	ModeRegister AuthMode = "register"
	ModeLogin    AuthMode = "login"
)

const (
	MsgTokenSent       = "Token enviado para seu email! Verifique sua caixa de entrada."
	MsgDebugTokenSent  = "Token enviado! Para desenvolvimento, use: "
	MsgRegisterFailed  = "Erro no registro"
	MsgLoginFailed     = "Erro no login"
	MsgConnectionError = "Erro de conexão"
	MsgSendFailed      = "Erro ao enviar mensagem"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrBusy             = errors.New("request already in flight")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// API is the part of the chat API the client uses.
type API interface {
	Register(ctx context.Context, email string) (*apiclient.RegisterResponse, error)
	Login(ctx context.Context, email, token string) (*apiclient.LoginResponse, error)
	ListConversations(ctx context.Context, accessToken string) ([]apiclient.ConversationSummary, error)
	GetConversation(ctx context.Context, accessToken, id string) (*apiclient.Conversation, error)
	Chat(ctx context.Context, accessToken string, req apiclient.ChatRequest) (*apiclient.ChatResponse, error)
	DeleteConversation(ctx context.Context, accessToken, id string) error
}

type SessionStore interface {
	Load(ctx context.Context, browserID string) (*session.Session, error)
	Save(ctx context.Context, browserID string, sess session.Session) error
	Clear(ctx context.Context, browserID string) error
}

type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

type Conversation struct {
	ID          string
	CreatedAt   time.Time
	LastMessage string
}

// Snapshot is a copy of the state for rendering.
type Snapshot struct {
	View        View
	AuthMode    AuthMode
	Email       string
	TokenInput  string
	Loading     bool
	AuthMessage string
	// AuthInfo marks AuthMessage as a confirmation rather than an error.
	AuthInfo bool

	UserEmail     string
	Conversations []Conversation
	ActiveID      string
	Messages      []Message
	ChatLoading   bool
	ChatError     string
}

// Model is safe for concurrent use. The lock is never held across API calls.
type Model struct {
	browserID string
	api       API
	store     SessionStore
	logger    *zap.Logger
	now       func() time.Time

	startMu sync.Mutex
	started bool

	mu          sync.Mutex
	view        View
	authMode    AuthMode
	email       string
	tokenInput  string
	loading     bool
	authMessage string
	authInfo    bool

	user          *session.Session
	conversations []Conversation
	activeID      string
	messages      []Message
	chatLoading   bool
	chatError     string

	// generation changes whenever the displayed conversation is replaced, so
	// replies that belong to an earlier one are not appended.
	generation uint64
	openSeq    uint64
	lastSeen   time.Time
}

func New(browserID string, api API, store SessionStore, logger *zap.Logger) *Model {
	return &Model{
		browserID: browserID,
		api:       api,
		store:     store,
		logger:    logger.With(zap.String("browser_id", browserID)),
		now:       time.Now,
		view:      ViewLanding,
		authMode:  ModeRegister,
		lastSeen:  time.Now(),
	}
}

// Start reads the persisted session until one read succeeds. A stored
// session skips the landing screen and loads the conversation list.
func (m *Model) Start(ctx context.Context) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return
	}

	sess, err := m.store.Load(ctx, m.browserID)
	if err != nil {
		m.logger.Warn("load persisted session failed", zap.Error(err))
		return
	}
	m.started = true
	if sess == nil {
		return
	}

	m.mu.Lock()
	m.user = sess
	m.view = ViewChat
	m.mu.Unlock()

	m.LoadConversations(ctx)
}

func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		View:          m.view,
		AuthMode:      m.authMode,
		Email:         m.email,
		TokenInput:    m.tokenInput,
		Loading:       m.loading,
		AuthMessage:   m.authMessage,
		AuthInfo:      m.authInfo,
		Conversations: append([]Conversation(nil), m.conversations...),
		ActiveID:      m.activeID,
		Messages:      append([]Message(nil), m.messages...),
		ChatLoading:   m.chatLoading,
		ChatError:     m.chatError,
	}
	if m.user != nil {
		s.UserEmail = m.user.Email
	}
	return s
}

// EnterAuth leaves the landing screen.
func (m *Model) EnterAuth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.view == ViewLanding {
		m.view = ViewAuth
	}
}

// BackToLanding returns from the auth screen.
func (m *Model) BackToLanding() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.view == ViewAuth {
		m.view = ViewLanding
	}
}

func (m *Model) SetAuthMode(mode AuthMode) {
	if mode != ModeRegister && mode != ModeLogin {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authMode = mode
	m.authMessage = ""
	m.authInfo = false
}

// Register asks the API to send a login token to email.
func (m *Model) Register(ctx context.Context, email string) error {
	if !m.beginAuth(email) {
		return ErrBusy
	}

	resp, err := m.api.Register(ctx, email)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.authMessage = failureMessage(err, MsgRegisterFailed)
		return nil
	}
	m.authMode = ModeLogin
	m.authMessage = MsgTokenSent
	m.authInfo = true
	if resp.DebugToken != "" {
		m.authMessage = MsgDebugTokenSent + resp.DebugToken
		m.tokenInput = resp.DebugToken
	}
	return nil
}

// Login exchanges a login token for a session, persists it and opens the
// chat screen.
func (m *Model) Login(ctx context.Context, email, token string) error {
	if !m.beginAuth(email) {
		return ErrBusy
	}
	m.mu.Lock()
	m.tokenInput = token
	m.mu.Unlock()

	resp, err := m.api.Login(ctx, email, token)
	if err != nil {
		m.mu.Lock()
		m.loading = false
		m.authMessage = failureMessage(err, MsgLoginFailed)
		m.mu.Unlock()
		return nil
	}

	sess := session.Session{AccessToken: resp.AccessToken, Email: resp.User.Email}
	if err := m.store.Save(ctx, m.browserID, sess); err != nil {
		m.logger.Warn("persist session failed", zap.Error(err))
	}

	m.mu.Lock()
	m.loading = false
	m.user = &sess
	m.view = ViewChat
	m.tokenInput = ""
	m.authMessage = ""
	m.resetConversationLocked()
	m.conversations = nil
	m.mu.Unlock()

	m.LoadConversations(ctx)
	return nil
}

func (m *Model) beginAuth(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loading {
		return false
	}
	m.loading = true
	m.email = email
	m.authMessage = ""
	m.authInfo = false
	return true
}

// LoadConversations refreshes the sidebar list. Failures are only logged.
func (m *Model) LoadConversations(ctx context.Context) {
	token, ok := m.accessToken()
	if !ok {
		return
	}

	list, err := m.api.ListConversations(ctx, token)
	if err != nil {
		m.logger.Warn("load conversations failed", zap.Error(err))
		return
	}

	out := make([]Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, Conversation{ID: c.ID, CreatedAt: c.CreatedAt.Time, LastMessage: c.LastMessage})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sameSessionLocked(token) {
		m.conversations = out
	}
}

// OpenConversation replaces the displayed messages with conversation id.
// Failures are only logged and leave the current view untouched.
func (m *Model) OpenConversation(ctx context.Context, id string) {
	token, ok := m.accessToken()
	if !ok {
		return
	}
	m.mu.Lock()
	m.openSeq++
	seq := m.openSeq
	m.mu.Unlock()

	conv, err := m.api.GetConversation(ctx, token, id)
	if err != nil {
		m.logger.Warn("load conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return
	}

	messages := make([]Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		messages = append(messages, Message{Role: msg.Role, Content: msg.Content, Timestamp: msg.Timestamp.Time})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sameSessionLocked(token) || m.openSeq != seq {
		return
	}
	m.generation++
	m.messages = messages
	m.activeID = id
}

// NewChat shows the empty unsaved conversation.
func (m *Model) NewChat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetConversationLocked()
}

// PendingSend is a message that has been shown but not yet answered.
type PendingSend struct {
	text           string
	conversationID string
	token          string
	generation     uint64
}

// BeginSend appends the user's message right away and marks a send in
// flight. Empty text or a send already in flight are rejected.
func (m *Model) BeginSend(text string) (*PendingSend, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, ErrNotAuthenticated
	}
	if m.chatLoading {
		return nil, ErrBusy
	}

	m.messages = append(m.messages, Message{Role: "user", Content: text, Timestamp: m.now()})
	m.chatLoading = true
	m.chatError = ""
	return &PendingSend{
		text:           text,
		conversationID: m.activeID,
		token:          m.user.AccessToken,
		generation:     m.generation,
	}, nil
}

// CompleteSend posts the pending message and appends the reply. On failure
// the user's message stays and an error banner is shown.
func (m *Model) CompleteSend(ctx context.Context, p *PendingSend) {
	resp, err := m.api.Chat(ctx, p.token, apiclient.ChatRequest{
		Message:        p.text,
		ConversationID: p.conversationID,
	})

	m.mu.Lock()
	if !m.sameSessionLocked(p.token) {
		m.mu.Unlock()
		return
	}
	m.chatLoading = false
	if err != nil {
		m.chatError = MsgSendFailed
		if !isAPIError(err) {
			m.chatError = MsgConnectionError
		}
		m.mu.Unlock()
		m.logger.Warn("send message failed", zap.Error(err))
		return
	}
	if m.generation == p.generation {
		m.messages = append(m.messages, Message{Role: "assistant", Content: resp.Message, Timestamp: resp.Timestamp.Time})
		m.activeID = resp.ConversationID
	} else {
		m.logger.Info("reply arrived after conversation switch", zap.String("conversation_id", resp.ConversationID))
	}
	m.mu.Unlock()

	m.LoadConversations(ctx)
}

// Send is BeginSend followed by CompleteSend. No-ops return ErrEmptyMessage
// or ErrBusy.
func (m *Model) Send(ctx context.Context, text string) error {
	p, err := m.BeginSend(text)
	if err != nil {
		return err
	}
	m.CompleteSend(ctx, p)
	return nil
}

// DeleteConversation removes a conversation. Deleting the active one returns
// to a new chat. Failures are only logged.
func (m *Model) DeleteConversation(ctx context.Context, id string) {
	token, ok := m.accessToken()
	if !ok {
		return
	}
	if err := m.api.DeleteConversation(ctx, token, id); err != nil {
		m.logger.Warn("delete conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.sameSessionLocked(token) && m.activeID == id {
		m.resetConversationLocked()
	}
	m.mu.Unlock()

	m.LoadConversations(ctx)
}

func (m *Model) DismissError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatError = ""
}

// Logout forgets the persisted session and all conversation state.
func (m *Model) Logout(ctx context.Context) {
	if err := m.store.Clear(ctx, m.browserID); err != nil {
		m.logger.Warn("clear persisted session failed", zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.view = ViewAuth
	m.email = ""
	m.tokenInput = ""
	m.authMessage = ""
	m.authInfo = false
	m.loading = false
	m.conversations = nil
	m.chatLoading = false
	m.chatError = ""
	m.resetConversationLocked()
}

// Touch records activity for idle eviction.
func (m *Model) Touch() {
	m.mu.Lock()
	m.lastSeen = m.now()
	m.mu.Unlock()
}

func (m *Model) idleSince(cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.chatLoading && !m.loading && m.lastSeen.Before(cutoff)
}

func (m *Model) accessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return "", false
	}
	return m.user.AccessToken, true
}

func (m *Model) sameSessionLocked(token string) bool {
	return m.user != nil && m.user.AccessToken == token
}

func (m *Model) resetConversationLocked() {
	m.generation++
	m.messages = nil
	m.activeID = ""
}

func failureMessage(err error, fallback string) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return fallback
	}
	return MsgConnectionError
}

func isAPIError(err error) bool {
	var apiErr *apiclient.APIError
	return errors.As(err, &apiErr)
}
