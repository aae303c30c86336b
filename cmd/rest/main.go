package main

import (
	"context"
	"log"

	"counseling-portal-be/internal/bootstrap"
	"counseling-portal-be/internal/config"
	"counseling-portal-be/internal/server"
	"counseling-portal-be/internal/tracer"
	"counseling-portal-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (only needed for the gorm-backed data store)
	var gormDB *gorm.DB
	if cfg.Provider.StoreKind == "gorm" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	go container.Mirror.Watch(context.Background(), container.Breaker.ApplyRemote)

	// The startup session check runs while the server comes up; routes answer
	// with the INITIALIZING state until it settles.
	go container.SessionService.Initialize(context.Background())

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
