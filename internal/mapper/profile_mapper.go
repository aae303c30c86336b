package mapper

import (
	"fmt"
	"time"

	"counseling-portal-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileFromRow converts a generic store row into a typed Profile. Rows come
// back as loosely-typed JSON maps from both store implementations, so every
// field is type-asserted individually.
func ProfileFromRow(row map[string]interface{}) (*entity.Profile, error) {
	idStr, _ := row["identity_id"].(string)
	uid, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("profile row missing identity_id: %w", err)
	}

	p := &entity.Profile{
		IdentityId: uid,
		Status:     entity.ProfileStatusNew,
	}

	if s, ok := row["status"].(string); ok && s != "" {
		p.Status = entity.ProfileStatus(s)
	}
	if b, ok := row["intake_complete"].(bool); ok {
		p.IntakeComplete = b
	}
	if fields, ok := row["fields"].(map[string]interface{}); ok {
		p.Fields = datatypes.JSONMap(fields)
	}
	if ts, ok := row["updated_at"].(string); ok {
		if t, terr := time.Parse(time.RFC3339, ts); terr == nil {
			p.UpdatedAt = t
		}
	}
	return p, nil
}
