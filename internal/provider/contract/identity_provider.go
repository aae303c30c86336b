package contract

import (
	"context"
	"time"

	"counseling-portal-be/internal/entity"
)

type AuthEventType string

const (
	AuthSignedIn       AuthEventType = "SIGNED_IN"
	AuthSignedOut      AuthEventType = "SIGNED_OUT"
	AuthTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthUserUpdated    AuthEventType = "USER_UPDATED"
)

// ProviderSession is the identity/token/expiry triple the provider returns.
// Role is carried in the token claims when the provider supports it.
type ProviderSession struct {
	Identity    entity.Identity
	Role        string
	AccessToken string
	Expiry      time.Time // zero when the provider did not report one
}

// AuthEvent is a provider-initiated change (e.g. an out-of-band token refresh).
// Session is nil for AuthSignedOut.
type AuthEvent struct {
	Type    AuthEventType
	Session *ProviderSession
}

type AuthListener func(AuthEvent)

// IIdentityProvider is the remote identity collaborator. Implementations must
// be safe for concurrent use.
type IIdentityProvider interface {
	// SignIn exchanges credentials for a session. Credential failures return
	// an error wrapping resilience.ErrProviderRejected.
	SignIn(ctx context.Context, email, password string) (*ProviderSession, error)

	// SignOut revokes the current session server-side.
	SignOut(ctx context.Context) error

	// GetSession returns the current valid session, or (nil, nil) when there
	// is none.
	GetSession(ctx context.Context) (*ProviderSession, error)

	// GetUser is the cheap fallback identity check used when GetSession fails:
	// it answers "who am I" without re-validating the whole session.
	GetUser(ctx context.Context) (*entity.Identity, error)

	// ResetPasswordForEmail triggers the provider's reset flow.
	ResetPasswordForEmail(ctx context.Context, email string) error

	// OnAuthEvent registers a listener for provider-initiated changes and
	// returns an unsubscribe func.
	OnAuthEvent(listener AuthListener) func()
}
