package mapper

import (
	"counseling-portal-be/internal/entity"

	"github.com/google/uuid"
)

// TherapistFromRow converts a generic store row into a directory entry. Rows
// with an unparsable id are skipped by the caller rather than failing the
// whole listing.
func TherapistFromRow(row map[string]interface{}) (*entity.Therapist, bool) {
	idStr, _ := row["id"].(string)
	uid, err := uuid.Parse(idStr)
	if err != nil {
		return nil, false
	}

	t := &entity.Therapist{Id: uid}
	if v, ok := row["full_name"].(string); ok {
		t.FullName = v
	}
	if v, ok := row["credentials"].(string); ok {
		t.Credentials = v
	}
	if v, ok := row["state"].(string); ok {
		t.State = v
	}
	if v, ok := row["modality"].(string); ok {
		t.Modality = v
	}
	if v, ok := row["bio"].(string); ok {
		t.Bio = v
	}
	if v, ok := row["accepting_clients"].(bool); ok {
		t.AcceptingClients = v
	}
	if raw, ok := row["specialties"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				t.Specialties = append(t.Specialties, str)
			}
		}
	}
	return t, true
}
