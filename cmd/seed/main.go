package main

import (
	"time"

	"counseling-portal-be/internal/config"
	"counseling-portal-be/internal/provider/gormstore"
	"counseling-portal-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seeds the therapist directory for local development. Run against the same
// DB_CONNECTION_STRING the server uses.
func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		color.Red("✗ Unable to connect to database: %v", err)
		return
	}

	color.Cyan("Running migrations...")
	store := gormstore.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		color.Red("✗ Migration failed: %v", err)
		return
	}
	color.Green("✓ Migrations applied")

	color.Cyan("Seeding therapists...")
	if err := seedTherapists(db); err != nil {
		color.Red("✗ Seeding failed: %v", err)
		return
	}
	color.Green("✓ Therapist directory seeded")
}

func seedTherapists(db *gorm.DB) error {
	therapists := []gormstore.TherapistModel{
		{
			Id:               uuid.MustParse("0b54a9c2-43a1-4bd0-9e3f-111111111111"),
			FullName:         "Dana Whitfield",
			Credentials:      "LMFT",
			Specialties:      datatypes.NewJSONSlice([]string{"anxiety", "couples"}),
			State:            "CA",
			Modality:         "video",
			AcceptingClients: true,
			Bio:              "Works with couples and individuals navigating anxiety and life transitions.",
		},
		{
			Id:               uuid.MustParse("0b54a9c2-43a1-4bd0-9e3f-222222222222"),
			FullName:         "Marcus Oyelaran",
			Credentials:      "LCSW",
			Specialties:      datatypes.NewJSONSlice([]string{"depression", "grief"}),
			State:            "NY",
			Modality:         "video",
			AcceptingClients: true,
			Bio:              "Focuses on grief work and depression with an attachment-informed approach.",
		},
		{
			Id:               uuid.MustParse("0b54a9c2-43a1-4bd0-9e3f-333333333333"),
			FullName:         "Priya Raman",
			Credentials:      "PhD",
			Specialties:      datatypes.NewJSONSlice([]string{"trauma", "anxiety"}),
			State:            "CA",
			Modality:         "phone",
			AcceptingClients: false,
			Bio:              "Trauma specialist. Currently maintaining a waitlist.",
		},
	}

	for i := range therapists {
		therapists[i].CreatedAt = time.Now()
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&therapists).Error
}
