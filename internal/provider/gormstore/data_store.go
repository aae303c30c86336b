package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/provider/contract"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store implements the data-store contract on a Postgres database via gorm,
// for deployments that own the data store instead of consuming a remote one.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the backing tables. Called by the seeder, not the server.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&ProfileModel{}, &TherapistModel{})
}

func (s *Store) FetchProfile(ctx context.Context, identityId uuid.UUID) (*entity.Profile, error) {
	var model ProfileModel
	err := s.db.WithContext(ctx).First(&model, "identity_id = ?", identityId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, contract.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &entity.Profile{
		IdentityId:     model.IdentityId,
		Status:         entity.ProfileStatus(model.Status),
		IntakeComplete: model.IntakeComplete,
		Fields:         model.Fields,
		UpdatedAt:      model.UpdatedAt,
	}, nil
}

func (s *Store) UpdateProfile(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error {
	var model ProfileModel
	err := s.db.WithContext(ctx).First(&model, "identity_id = ?", identityId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First intake submission creates the record.
		model = ProfileModel{
			IdentityId: identityId,
			Status:     string(entity.ProfileStatusIntakeStarted),
			Fields:     datatypes.JSONMap{},
			CreatedAt:  time.Now(),
		}
	} else if err != nil {
		return err
	}

	if model.Fields == nil {
		model.Fields = datatypes.JSONMap{}
	}
	for k, v := range fields {
		switch k {
		case "status":
			if str, ok := v.(string); ok {
				model.Status = str
			}
		case "intake_complete":
			if b, ok := v.(bool); ok {
				model.IntakeComplete = b
			}
		default:
			model.Fields[k] = v
		}
	}
	model.UpdatedAt = time.Now()

	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *Store) Query(ctx context.Context, collection string, filter contract.Filter) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	q := s.db.WithContext(ctx).Table(collection)
	if len(filter) > 0 {
		q = q.Where(map[string]interface{}(filter))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	normalizeRows(rows)
	return rows, nil
}

// normalizeRows makes raw gorm rows look the same as rows from the REST store:
// uuids become strings and jsonb columns are decoded into plain values.
func normalizeRows(rows []map[string]interface{}) {
	for _, row := range rows {
		for k, v := range row {
			switch t := v.(type) {
			case uuid.UUID:
				row[k] = t.String()
			case [16]byte:
				row[k] = uuid.UUID(t).String()
			case []byte:
				var decoded interface{}
				if err := json.Unmarshal(t, &decoded); err == nil {
					row[k] = decoded
				} else {
					row[k] = string(t)
				}
			case time.Time:
				row[k] = t.Format(time.RFC3339)
			}
		}
	}
}
