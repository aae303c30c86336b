package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionInitializing    SessionState = "INITIALIZING"
	SessionAuthenticated   SessionState = "AUTHENTICATED"
	SessionUnauthenticated SessionState = "UNAUTHENTICATED"
	SessionError           SessionState = "ERROR"
)

// Roles are coarse permission tags attached to an identity.
const (
	RoleClient    = "client"
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

// Identity is the opaque authenticated-user handle returned by the identity
// provider.
type Identity struct {
	Id    uuid.UUID
	Email string
}

// Session is the authoritative in-memory authentication record.
// Invariant: Identity is non-nil iff State == SessionAuthenticated.
type Session struct {
	State     SessionState
	Identity  *Identity
	Role      *string
	Expiry    *time.Time
	LastError error
}
