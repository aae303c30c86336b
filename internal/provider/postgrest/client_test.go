package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/provider/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchProfileBuildsEqFilter(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/profiles", r.URL.Path)
		require.Equal(t, "eq."+id.String(), r.URL.Query().Get("identity_id"))
		require.Equal(t, "store-key", r.Header.Get("apikey"))

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"identity_id":     id.String(),
				"status":          "Active",
				"intake_complete": true,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "store-key")
	profile, err := c.FetchProfile(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, profile.IdentityId)
	assert.Equal(t, entity.ProfileStatusActive, profile.Status)
	assert.True(t, profile.IntakeComplete)
}

func TestFetchProfileEmptyResultIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchProfile(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, contract.ErrNotFound))
}

func TestQueryPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Query(context.Background(), "therapists", nil)
	assert.Error(t, err)
}

func TestUpdateProfilePatchesByIdentity(t *testing.T) {
	id := uuid.New()
	var gotMethod string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.Equal(t, "eq."+id.String(), r.URL.Query().Get("identity_id"))
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	err := c.UpdateProfile(context.Background(), id, map[string]interface{}{"status": "IntakeStarted"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "IntakeStarted", gotBody["status"])
}
