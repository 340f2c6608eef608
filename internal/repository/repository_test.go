package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"samchat/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A second pooled connection would see a fresh empty database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Conversation{}, &model.Message{}))
	return db
}

func TestUserRepositoryEnsureByEmail(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))

	missing, err := repo.GetByEmail("ana@teddydigital.io")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, err := repo.EnsureByEmail("ana@teddydigital.io")
	require.NoError(t, err)
	second, err := repo.EnsureByEmail("ana@teddydigital.io")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	found, err := repo.GetByEmail("ana@teddydigital.io")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestConversationRepositoryScopesByUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(&model.Conversation{ID: "c-old", UserEmail: "ana@teddydigital.io", CreatedAt: base}))
	require.NoError(t, repo.Create(&model.Conversation{ID: "c-new", UserEmail: "ana@teddydigital.io", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.Create(&model.Conversation{ID: "c-bob", UserEmail: "bob@teddydigital.io", CreatedAt: base}))

	list, err := repo.ListByUserEmail("ana@teddydigital.io")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c-new", list[0].ID)
	assert.Equal(t, "c-old", list[1].ID)

	other, err := repo.GetByIDAndUserEmail("c-bob", "ana@teddydigital.io")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, repo.UpdateLastMessage("c-new", "hello"))
	got, err := repo.GetByID("c-new")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.LastMessage)
}

func TestConversationRepositoryDeleteWithMessages(t *testing.T) {
	db := openTestDB(t)
	conversations := NewConversationRepository(db)
	messages := NewMessageRepository(db)

	require.NoError(t, conversations.Create(&model.Conversation{ID: "c1", UserEmail: "ana@teddydigital.io"}))
	require.NoError(t, messages.Create(&model.Message{ConversationID: "c1", Role: model.RoleUser, Content: "hi"}))
	require.NoError(t, messages.Create(&model.Message{ConversationID: "c1", Role: model.RoleAssistant, Content: "hello"}))

	deleted, err := conversations.DeleteWithMessages("c1", "bob@teddydigital.io")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = conversations.DeleteWithMessages("c1", "ana@teddydigital.io")
	require.NoError(t, err)
	assert.True(t, deleted)

	left, err := messages.ListByConversationID("c1", 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestMessageRepositoryListKeepsInsertOrder(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Create(&model.Message{ConversationID: "c1", Role: model.RoleUser, Content: content, CreatedAt: at}))
	}

	list, err := repo.ListByConversationID("c1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Content)
	assert.Equal(t, "three", list[1].Content)

	all, err := repo.ListByConversationID("c1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
}

func TestMessageRepositoryListWithoutLimitReturnsLongHistory(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 620; i++ {
		require.NoError(t, repo.Create(&model.Message{
			ConversationID: "c1",
			Role:           model.RoleUser,
			Content:        fmt.Sprintf("m%d", i),
			CreatedAt:      at.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.ListByConversationID("c1", 0)
	require.NoError(t, err)
	require.Len(t, all, 620)
	assert.Equal(t, "m0", all[0].Content)
	assert.Equal(t, "m619", all[619].Content)

	recent, err := repo.ListByConversationID("c1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "m610", recent[0].Content)
	assert.Equal(t, "m619", recent[9].Content)
}
