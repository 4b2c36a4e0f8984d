package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"traffic-ingester/internal/config"
)

func newManager(baseURL string) *Manager {
	portal := config.Default().Portal
	portal.BaseURL = baseURL
	return NewManager(portal, config.Default().Auth, zap.NewNop(), nil)
}

func TestAcquireInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/oauth2/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "App", r.PostForm.Get("client_id"))
		assert.Equal(t, "public", r.PostForm.Get("scope"))
		assert.Equal(t, "en-US,en;q=0.9,de-AT;q=0.8,de;q=0.7", r.Header.Get("Accept-Language"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "awse_fresh"})
	}))
	defer srv.Close()

	m := newManager(srv.URL)
	assert.Equal(t, StateUnauthenticated, m.State())

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "awse_fresh", tok)
	assert.Equal(t, StateAuthenticated, m.State())

	h, ok := m.AuthHeader()
	require.True(t, ok)
	assert.Equal(t, "Bearer awse_fresh", h)
}

func TestAcquireNonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	m := newManager(srv.URL)
	_, err := m.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestAcquireMissingAccessTokenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token_type": "bearer"})
	}))
	defer srv.Close()

	m := newManager(srv.URL)
	_, err := m.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestSetTokenTransitionsAndMarkExpired(t *testing.T) {
	m := newManager("https://example.test")
	m.SetToken("awse_manual")
	assert.Equal(t, StateAuthenticated, m.State())

	m.MarkExpired()
	assert.Equal(t, StateExpired, m.State())

	// the credential stays installed; expiry is a state, not a wipe
	h, ok := m.AuthHeader()
	require.True(t, ok)
	assert.Equal(t, "Bearer awse_manual", h)
}

func TestMarkExpiredWithoutCredentialIsNoOp(t *testing.T) {
	m := newManager("https://example.test")
	m.MarkExpired()
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestSetTokenAcceptsUnexpectedPrefix(t *testing.T) {
	m := newManager("https://example.test")
	// soft validation: a warning, not a rejection
	m.SetToken("other_prefix_token")
	h, ok := m.AuthHeader()
	require.True(t, ok)
	assert.Equal(t, "Bearer other_prefix_token", h)
}
