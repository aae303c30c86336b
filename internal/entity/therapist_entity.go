package entity

import (
	"github.com/google/uuid"
)

// Therapist is a directory entry shown during therapist selection.
type Therapist struct {
	Id               uuid.UUID
	FullName         string
	Credentials      string
	Specialties      []string
	State            string // licensure state
	Modality         string // "telehealth" | "in-person" | "both"
	AcceptingClients bool
	Bio              string
}
