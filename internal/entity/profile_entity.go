package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProfileStatus string

const (
	// ProfileStatusNew is the first-class "no record yet" variant: the identity
	// is real but intake has not started.
	ProfileStatusNew ProfileStatus = "New"

	ProfileStatusIntakeStarted ProfileStatus = "IntakeStarted"
	ProfileStatusActive        ProfileStatus = "Active"

	// ProfileStatusErrorFetching marks a transient fetch failure. It degrades
	// the profile only; the session stays authenticated.
	ProfileStatusErrorFetching ProfileStatus = "ErrorFetchingStatus"
)

// Profile is the role-specific record keyed by identity id, fetched separately
// from the identity itself.
type Profile struct {
	IdentityId     uuid.UUID
	Status         ProfileStatus
	IntakeComplete bool
	Fields         datatypes.JSONMap
	UpdatedAt      time.Time
}
