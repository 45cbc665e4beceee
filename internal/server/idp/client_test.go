package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_VerifyExternalToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer ext-token", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "ext-user-1",
			"email": "alice@example.com",
			"user_metadata": {"full_name": "Alice", "avatar_url": "https://cdn.example.com/a.png"}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", time.Second)

	identity, err := client.VerifyExternalToken(context.Background(), "ext-token")
	require.NoError(t, err)
	assert.Equal(t, "ext-user-1", identity.ID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, "https://cdn.example.com/a.png", identity.AvatarURL)
}

func TestClient_VerifyExternalToken_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)

	_, err := client.VerifyExternalToken(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrTokenRejected)
}

func TestClient_VerifyExternalToken_ProviderError(t *testing.T) {
	// 5xx провайдера тоже означает отказ в аутентификации, fail closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)

	_, err := client.VerifyExternalToken(context.Background(), "token")
	assert.ErrorIs(t, err, ErrTokenRejected)
}

func TestClient_VerifyExternalToken_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)

	_, err := client.VerifyExternalToken(context.Background(), "token")
	assert.ErrorIs(t, err, ErrTokenRejected)
}

func TestClient_VerifyExternalToken_IncompleteUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "", "email": ""}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)

	_, err := client.VerifyExternalToken(context.Background(), "token")
	assert.ErrorIs(t, err, ErrTokenRejected)
}

func TestClient_VerifyExternalToken_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // закрываем сразу, провайдер недоступен

	client := NewClient(server.URL, "", time.Second)

	_, err := client.VerifyExternalToken(context.Background(), "token")
	assert.ErrorIs(t, err, ErrTokenRejected)
}
