package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileModel is the gorm mapping for the profiles collection.
type ProfileModel struct {
	IdentityId     uuid.UUID         `gorm:"column:identity_id;primaryKey"`
	Status         string            `gorm:"column:status"`
	IntakeComplete bool              `gorm:"column:intake_complete"`
	Fields         datatypes.JSONMap `gorm:"column:fields;type:jsonb"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at"`
}

func (ProfileModel) TableName() string {
	return "profiles"
}

// TherapistModel is the gorm mapping for the therapist directory.
type TherapistModel struct {
	Id               uuid.UUID                   `gorm:"column:id;primaryKey"`
	FullName         string                      `gorm:"column:full_name"`
	Credentials      string                      `gorm:"column:credentials"`
	Specialties      datatypes.JSONSlice[string] `gorm:"column:specialties;type:jsonb"`
	State            string                      `gorm:"column:state"`
	Modality         string                      `gorm:"column:modality"`
	AcceptingClients bool                        `gorm:"column:accepting_clients"`
	Bio              string                      `gorm:"column:bio"`
	CreatedAt        time.Time                   `gorm:"column:created_at"`
}

func (TherapistModel) TableName() string {
	return "therapists"
}
