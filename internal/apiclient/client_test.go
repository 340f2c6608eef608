package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAndChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ana@teddydigital.io", body["email"])
			assert.Equal(t, "tok", body["token"])
			_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","user":{"email":"ana@teddydigital.io"}}`))
		case "/chat":
			assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, hasID := body["conversation_id"]
			assert.False(t, hasID, "new chats must omit conversation_id")
			_, _ = w.Write([]byte(`{"conversation_id":"c1","message":"<b>oi</b>","timestamp":"2024-05-01T10:30:00.123456"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	login, err := c.Login(ctx, "ana@teddydigital.io", "tok")
	require.NoError(t, err)
	assert.Equal(t, "jwt", login.AccessToken)
	assert.Equal(t, "ana@teddydigital.io", login.User.Email)

	chat, err := c.Chat(ctx, "jwt", ChatRequest{Message: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "c1", chat.ConversationID)
	assert.Equal(t, 30, chat.Timestamp.Minute())
}

func TestConversationsEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/conversations":
			_, _ = w.Write([]byte(`[{"id":"c2","created_at":"2024-05-01T11:00:00Z","last_message":"b..."},{"id":"c1","created_at":"2024-05-01T10:00:00Z","last_message":"Nova conversa"}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/conversations/c1":
			_, _ = w.Write([]byte(`{"id":"c1","messages":[{"role":"user","content":"hi","timestamp":"2024-05-01T10:00:00Z"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/conversations/c1":
			_, _ = w.Write([]byte(`{"message":"Conversa deletada"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Conversa não encontrada"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	list, err := c.ListConversations(ctx, "jwt")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)

	conv, err := c.GetConversation(ctx, "jwt", "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hi", conv.Messages[0].Content)

	require.NoError(t, c.DeleteConversation(ctx, "jwt", "c1"))

	err = c.DeleteConversation(ctx, "jwt", "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Conversa não encontrada", apiErr.Detail)
}

func TestErrorDetails(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{name: "string detail", status: 400, body: `{"detail":"Only teddydigital.io emails are allowed"}`, detail: "Only teddydigital.io emails are allowed"},
		{name: "validation list", status: 422, body: `{"detail":[{"loc":["body","email"]}]}`, detail: ""},
		{name: "not json", status: 502, body: `bad gateway`, detail: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Register(context.Background(), "x@y.z")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.detail, apiErr.Detail)
		})
	}
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Register(context.Background(), "ana@teddydigital.io")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestTimeLayouts(t *testing.T) {
	for _, raw := range []string{`"2024-05-01T10:30:00Z"`, `"2024-05-01T10:30:00.5+02:00"`, `"2024-05-01T10:30:00"`} {
		var ts Time
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.Equal(t, 30, ts.Minute())
	}

	var ts Time
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
