package dto

import (
	"time"

	"counseling-portal-be/internal/service"
)

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type SessionResponse struct {
	State          string     `json:"state"`
	Initialized    bool       `json:"initialized"`
	IdentityId     *string    `json:"identity_id,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Role           *string    `json:"role,omitempty"`
	Expiry         *time.Time `json:"expiry,omitempty"`
	ProfileStatus  string     `json:"profile_status,omitempty"`
	ProfileLoading bool       `json:"profile_loading"`
	Error          *string    `json:"error,omitempty"`
}

// FromSnapshot converts the service-level snapshot into the wire shape shared
// by the REST responses and the websocket stream.
func FromSnapshot(snap service.Snapshot) SessionResponse {
	res := SessionResponse{
		State:          string(snap.State),
		Initialized:    snap.Initialized,
		Role:           snap.Role,
		Expiry:         snap.Expiry,
		ProfileStatus:  string(snap.ProfileStatus),
		ProfileLoading: snap.ProfileLoading,
	}
	if snap.Identity != nil {
		id := snap.Identity.Id.String()
		email := snap.Identity.Email
		res.IdentityId = &id
		res.Email = &email
	}
	if snap.LastError != nil {
		msg := snap.LastError.Error()
		res.Error = &msg
	}
	return res
}
