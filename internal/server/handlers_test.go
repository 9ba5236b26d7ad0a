package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	conversationID int64
	err            error
	gotState       string
	gotCode        string
}

func (f *fakeExchanger) HandleCallback(ctx context.Context, state, code string) (int64, error) {
	f.gotState = state
	f.gotCode = code
	if f.err != nil {
		return 0, f.err
	}
	return f.conversationID, nil
}

func TestHandleHealthCheck(t *testing.T) {
	s := New(Config{ProviderName: "google", Port: 8080})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "google", response["provider"])
}

func TestHandleOAuthCallback(t *testing.T) {
	t.Run("completes the flow and notifies the conversation", func(t *testing.T) {
		exchanger := &fakeExchanger{conversationID: 42}
		var notifiedID int64
		var notifiedText string

		s := New(Config{
			OAuth: exchanger,
			Notify: func(conversationID int64, text string) {
				notifiedID = conversationID
				notifiedText = text
			},
			ProviderName: "google",
			Port:         8080,
		})

		req := httptest.NewRequest("GET", "/oauth/callback?state=state-1&code=code-1", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "state-1", exchanger.gotState)
		assert.Equal(t, "code-1", exchanger.gotCode)
		assert.Contains(t, w.Body.String(), "Calendar connected")
		assert.Equal(t, int64(42), notifiedID)
		assert.Contains(t, notifiedText, "/auth")
	})

	t.Run("missing parameters rejected", func(t *testing.T) {
		s := New(Config{OAuth: &fakeExchanger{}, Port: 8080})

		req := httptest.NewRequest("GET", "/oauth/callback?code=code-1", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("exchange failure reported", func(t *testing.T) {
		s := New(Config{OAuth: &fakeExchanger{err: errors.New("unknown or expired oauth state")}, Port: 8080})

		req := httptest.NewRequest("GET", "/oauth/callback?state=bad&code=code-1", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "failed to complete authorization")
	})

	t.Run("consent denial reported", func(t *testing.T) {
		exchanger := &fakeExchanger{}
		s := New(Config{OAuth: exchanger, Port: 8080})

		req := httptest.NewRequest("GET", "/oauth/callback?error=access_denied", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, exchanger.gotCode)
	})

	t.Run("disabled without a direct provider", func(t *testing.T) {
		s := New(Config{Port: 8080})

		req := httptest.NewRequest("GET", "/oauth/callback?state=state-1&code=code-1", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
