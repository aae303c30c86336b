package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"counseling-portal-be/pkg/resilience"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInParsesTokenResponse(t *testing.T) {
	userId := uuid.NewString()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "client@example.com", creds["email"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-abc",
			"expires_in":   3600,
			"user": map[string]interface{}{
				"id":           userId,
				"email":        "client@example.com",
				"app_metadata": map[string]interface{}{"role": "client"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	session, err := c.SignIn(context.Background(), "client@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, userId, session.Identity.Id.String())
	assert.Equal(t, "client", session.Role)
	assert.Equal(t, "token-abc", session.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.Expiry, 5*time.Second)
}

func TestSignInRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error_description": "Invalid login credentials",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.SignIn(context.Background(), "client@example.com", "wrong")

	assert.ErrorIs(t, err, resilience.ErrProviderRejected)
	assert.Contains(t, err.Error(), "Invalid login credentials")
}

func TestSignInServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.SignIn(context.Background(), "client@example.com", "secret")

	require.Error(t, err)
	assert.NotErrorIs(t, err, resilience.ErrProviderRejected)
}

func TestGetSessionRevalidatesToken(t *testing.T) {
	userId := uuid.NewString()
	revoked := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "token-abc",
				"expires_in":   3600,
				"user":         map[string]interface{}{"id": userId, "email": "client@example.com"},
			})
		case "/auth/v1/user":
			if revoked {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"id": userId, "email": "client@example.com"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ctx := context.Background()

	_, err := c.SignIn(ctx, "client@example.com", "secret")
	require.NoError(t, err)

	session, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)

	// Revoked server-side: the cached token must not resurrect the session.
	revoked = true
	session, err = c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetSessionWithoutSignIn(t *testing.T) {
	c := NewClient("http://unused.invalid", "")
	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}
