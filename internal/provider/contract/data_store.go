package contract

import (
	"context"
	"errors"

	"counseling-portal-be/internal/entity"

	"github.com/google/uuid"
)

// ErrNotFound distinguishes "no record" from a transport failure. The profile
// loader maps it to ProfileStatusNew instead of an error state.
var ErrNotFound = errors.New("record not found")

// Filter is a flat field/value match. Implementations translate it to their
// own query syntax (SQL where-map, PostgREST eq filters).
type Filter map[string]interface{}

// IDataStore is the remote profile/data collaborator.
type IDataStore interface {
	// FetchProfile returns the profile for an identity, or ErrNotFound.
	FetchProfile(ctx context.Context, identityId uuid.UUID) (*entity.Profile, error)

	// UpdateProfile applies a partial field update (intake form submissions).
	UpdateProfile(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error

	// Query runs a filtered read against an arbitrary collection. Used by
	// feature-level loads (therapist search) outside the auth flow.
	Query(ctx context.Context, collection string, filter Filter) ([]map[string]interface{}, error)
}
