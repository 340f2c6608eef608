package worker

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"samchat/internal/model"
)

type fakeStore struct {
	saved []model.Message
	err   error
}

func (f *fakeStore) Create(message *model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *message)
	return nil
}

func TestHandleStoresMessage(t *testing.T) {
	store := &fakeStore{}
	w := NewMessagePersistWorker(nil, store, "q", zap.NewNop())

	body, err := json.Marshal(model.Message{
		ID:             99,
		ConversationID: "c1",
		Role:           model.RoleUser,
		Content:        "hi",
		CreatedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, w.handle(body))
	require.Len(t, store.saved, 1)
	assert.Equal(t, uint(0), store.saved[0].ID)
	assert.Equal(t, "c1", store.saved[0].ConversationID)
	assert.Equal(t, "hi", store.saved[0].Content)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	w := NewMessagePersistWorker(nil, &fakeStore{}, "q", zap.NewNop())

	assert.ErrorIs(t, w.handle([]byte("{not json")), errUndecodable)
	assert.ErrorIs(t, w.handle([]byte(`{"role":"user","content":"x"}`)), errUndecodable)
}

func TestHandlePassesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	w := NewMessagePersistWorker(nil, &fakeStore{err: boom}, "q", zap.NewNop())

	err := w.handle([]byte(`{"conversation_id":"c1","role":"user","content":"x"}`))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errUndecodable)
}
