package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samchat/internal/cache"
	"samchat/internal/model"
	"samchat/internal/repository"
)

const ana = "ana@teddydigital.io"

func TestChatCreatesConversationAndFormatsReply(t *testing.T) {
	f := newFixture(t)
	f.llm.reply = "**Olá!**"
	svc := f.chatService()
	ctx := context.Background()

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "  oi  "})
	require.NoError(t, err)
	assert.Len(t, res.ConversationID, 36)
	assert.Equal(t, "<strong>Olá!</strong>", res.Message)
	assert.False(t, res.Timestamp.IsZero())

	require.Len(t, f.publisher.sent, 2)
	assert.Equal(t, model.RoleUser, f.publisher.sent[0].Role)
	assert.Equal(t, "oi", f.publisher.sent[0].Content)

	detail, err := svc.GetConversation(ctx, ana, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, ana, detail.UserEmail)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "oi", detail.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, detail.Messages[1].Role)
}

func TestChatContinuesConversationWithRecentContext(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "m0"})
	require.NoError(t, err)
	for i := 1; i < 7; i++ {
		_, err := svc.Chat(ctx, ChatInput{Email: ana, ConversationID: res.ConversationID, Message: "m" + string(rune('0'+i))})
		require.NoError(t, err)
	}

	last := f.llm.requests[len(f.llm.requests)-1]
	require.Len(t, last, 10)
	assert.Equal(t, "m6", last[9].Content)
	assert.Equal(t, model.RoleUser, last[9].Role)

	list, err := svc.ListConversations(ana)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestChatFallsBackToDatabaseWhenCacheIsCold(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "first"})
	require.NoError(t, err)
	f.redis.FlushAll()

	detail, err := svc.GetConversation(ctx, ana, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "first", detail.Messages[0].Content)
}

func TestChatColdCacheLoadsWholeLongConversation(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	conversations := repository.NewConversationRepository(f.db)
	messages := repository.NewMessageRepository(f.db)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, conversations.Create(&model.Conversation{ID: "long", UserEmail: ana, CreatedAt: start}))
	for i := 0; i < 520; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, messages.Create(&model.Message{
			ConversationID: "long",
			Role:           role,
			Content:        fmt.Sprintf("m%d", i),
			CreatedAt:      start.Add(time.Duration(i) * time.Second),
		}))
	}
	f.redis.FlushAll()

	_, err := svc.Chat(ctx, ChatInput{Email: ana, ConversationID: "long", Message: "next"})
	require.NoError(t, err)

	prompt := f.llm.requests[len(f.llm.requests)-1]
	require.Len(t, prompt, 10)
	assert.Equal(t, "m519", prompt[8].Content)
	assert.Equal(t, "next", prompt[9].Content)

	f.redis.FlushAll()
	detail, err := svc.GetConversation(ctx, ana, "long")
	require.NoError(t, err)
	require.Len(t, detail.Messages, 522)
	assert.Equal(t, "m0", detail.Messages[0].Content)
	assert.Equal(t, "next", detail.Messages[520].Content)
}

func TestChatFailedWriteThroughKeepsStaleHistoryOutOfCache(t *testing.T) {
	f := newFixture(t)
	historyCache := &failingSetCache{HistoryCache: cache.NewHistoryCache(f.client, time.Hour, 30*time.Second)}
	svc := f.chatServiceWithCache(historyCache)
	ctx := context.Background()

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "one"})
	require.NoError(t, err)
	id := res.ConversationID
	historyKey := "chat:history:" + id
	dirtyKey := "chat:history:dirty:" + id
	require.True(t, f.redis.Exists(historyKey))
	require.False(t, f.redis.Exists(dirtyKey))

	f.publisher.hold = true
	historyCache.setErr = errBoom
	_, err = svc.Chat(ctx, ChatInput{Email: ana, ConversationID: id, Message: "two"})
	require.NoError(t, err)
	assert.True(t, f.redis.Exists(dirtyKey))
	assert.False(t, f.redis.Exists(historyKey))

	historyCache.setErr = nil
	_, err = svc.Chat(ctx, ChatInput{Email: ana, ConversationID: id, Message: "three"})
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(historyKey), "lagging database copy must not warm the cache")
	assert.True(t, f.redis.Exists(dirtyKey))

	f.publisher.drain(t)
	f.redis.FastForward(31 * time.Second)
	require.False(t, f.redis.Exists(dirtyKey))

	detail, err := svc.GetConversation(ctx, ana, id)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 6)
	assert.Equal(t, "two", detail.Messages[2].Content)
	assert.Equal(t, "three", detail.Messages[4].Content)

	cached, hit, err := historyCache.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, cached, 6)
}

func TestChatErrors(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = svc.Chat(ctx, ChatInput{Email: ana, ConversationID: strings.Repeat("x", 37), Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "hi"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, ChatInput{Email: "bob@teddydigital.io", ConversationID: res.ConversationID, Message: "hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	f.llm.err = errBoom
	_, err = svc.Chat(ctx, ChatInput{Email: ana, Message: "hi"})
	assert.ErrorIs(t, err, ErrCompletion)
	assert.Contains(t, err.Error(), "boom")

	f.llm.err = nil
	f.publisher.err = errBoom
	_, err = svc.Chat(ctx, ChatInput{Email: ana, Message: "hi"})
	assert.ErrorIs(t, err, ErrMessageEnqueue)
}

func TestChatEmptyReplyIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.llm.reply = "   "

	res, err := f.chatService().Chat(context.Background(), ChatInput{Email: ana, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, emptyCompletion, res.Message)
}

func TestListConversationsNewestFirstWithPreview(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	f.llm.reply = strings.Repeat("á", 60)
	older, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "one"})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	f.llm.reply = "short"
	newer, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "two"})
	require.NoError(t, err)

	list, err := svc.ListConversations(ana)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ConversationID, list[0].ID)
	assert.Equal(t, "short...", list[0].LastMessage)
	assert.Equal(t, older.ConversationID, list[1].ID)
	assert.Equal(t, strings.Repeat("á", 50)+"...", list[1].LastMessage)

	empty, err := svc.ListConversations("bob@teddydigital.io")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPreviewOfEmptyConversation(t *testing.T) {
	assert.Equal(t, "Nova conversa", preview(""))
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	svc := f.chatService()
	ctx := context.Background()

	res, err := svc.Chat(ctx, ChatInput{Email: ana, Message: "hi"})
	require.NoError(t, err)

	err = svc.DeleteConversation(ctx, "bob@teddydigital.io", res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, svc.DeleteConversation(ctx, ana, res.ConversationID))
	assert.False(t, f.redis.Exists("chat:history:"+res.ConversationID))

	_, err = svc.GetConversation(ctx, ana, res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	err = svc.DeleteConversation(ctx, ana, res.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
