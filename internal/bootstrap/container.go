package bootstrap

import (
	"context"
	"log"

	"counseling-portal-be/internal/config"
	"counseling-portal-be/internal/controller"
	"counseling-portal-be/internal/dto"
	"counseling-portal-be/internal/pkg/logger"
	"counseling-portal-be/internal/pkg/mailer"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/internal/provider/gormstore"
	"counseling-portal-be/internal/provider/gotrue"
	"counseling-portal-be/internal/provider/local"
	"counseling-portal-be/internal/provider/postgrest"
	"counseling-portal-be/internal/repository/cache"
	"counseling-portal-be/internal/service"
	"counseling-portal-be/internal/websocket"
	"counseling-portal-be/pkg/events"
	"counseling-portal-be/pkg/resilience"

	pktNats "counseling-portal-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SessionController   controller.ISessionController
	TherapistController controller.ITherapistController
	ProfileController   controller.IProfileController

	// Core services (exposed for main.go to drive startup)
	SessionService service.ISessionService

	// Resilience plumbing (exposed for main.go background loops)
	Breaker *resilience.Breaker
	Mirror  *resilience.Mirror

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// 3. Resilience pipeline
	mirror := resilience.NewMirror(rdb, sysLogger)
	breaker := resilience.NewBreaker(cfg.Resilience.MaxAttempts, cfg.Resilience.CircuitCooldown, pubSub, mirror, sysLogger)

	// A fresh instance adopts the cluster's breaker status before serving.
	breaker.Preload(context.Background(),
		service.ClassSessionCheck,
		service.ClassProfileFetch,
		service.ClassTherapistList,
		service.ClassTherapistFallback,
	)

	var probe resilience.ReachabilityProbe
	if cfg.Resilience.ProbeURL != "" {
		probe = resilience.NewHTTPProbe(cfg.Resilience.ProbeURL, cfg.Resilience.ProbeTimeout)
	}

	guard := resilience.NewGuard(resilience.Options{
		MaxAttempts:       cfg.Resilience.MaxAttempts,
		InitialDelay:      cfg.Resilience.InitialDelay,
		BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
		PerAttemptTimeout: cfg.Resilience.PerAttemptTimeout,
		CircuitCooldown:   cfg.Resilience.CircuitCooldown,
	}, breaker, probe, sysLogger)

	// 4. Identity provider and data store
	var provider contract.IIdentityProvider
	if cfg.Provider.Kind == "http" {
		provider = gotrue.NewClient(cfg.Provider.IdentityURL, cfg.Provider.AnonKey)
		log.Printf("[INFO] Using Identity Provider: HTTP (%s)", cfg.Provider.IdentityURL)
	} else {
		localProvider := local.NewProvider(cfg.Provider.JWTSecret, emailService)
		if cfg.App.Environment != "production" {
			if _, err := localProvider.AddAccount("demo@example.com", "demo-password", "client"); err == nil {
				log.Printf("[INFO] Seeded demo account: demo@example.com")
			}
		}
		provider = localProvider
		log.Printf("[INFO] Using Identity Provider: LOCAL")
	}

	var store contract.IDataStore
	if cfg.Provider.StoreKind == "gorm" && db != nil {
		store = gormstore.NewStore(db)
		log.Printf("[INFO] Using Data Store: GORM")
	} else {
		store = postgrest.NewClient(cfg.Provider.StoreURL, cfg.Provider.StoreAPIKey)
		log.Printf("[INFO] Using Data Store: POSTGREST (%s)", cfg.Provider.StoreURL)
	}

	// 5. Services
	sessionCache := cache.NewSessionCache(rdb, cfg.App.CacheNamespace, sysLogger)
	profileService := service.NewProfileService(store, guard, sysLogger)

	var eventPublisher service.IEventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}

	sessionService := service.NewSessionService(
		provider,
		sessionCache,
		profileService,
		guard,
		eventPublisher,
		cfg.Resilience.CacheBufferWindow,
		cfg.Resilience.InitTimeout,
		sysLogger,
	)
	therapistService := service.NewTherapistService(store, guard, sysLogger)

	// 6. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/stream.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// Every session change goes straight out on the stream.
	sessionService.Subscribe(func(snap service.Snapshot) {
		wsHub.Broadcast("session", dto.FromSnapshot(snap))
	})

	// Lifecycle events from other instances reach local clients through the
	// durable bus consumer.
	if natsSub != nil {
		err := natsSub.Subscribe("portal.>", "portal-stream", func(ctx context.Context, event events.Event) error {
			wsHub.Broadcast("lifecycle", map[string]interface{}{
				"type": event.EventType(),
				"data": event.Payload(),
			})
			return nil
		})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to lifecycle events: %v", err)
		}
	}

	// Breaker transitions too, so clients can render the "try again" state.
	if ch, err := breaker.Events(context.Background()); err != nil {
		log.Printf("[WARN] Failed to subscribe to breaker events: %v", err)
	} else {
		go func() {
			for ev := range ch {
				wsHub.Broadcast("breaker", ev)
			}
		}()
	}

	// 7. Controllers
	return &Container{
		SessionController:   controller.NewSessionController(sessionService),
		TherapistController: controller.NewTherapistController(therapistService),
		ProfileController:   controller.NewProfileController(sessionService, profileService),

		SessionService: sessionService,
		Breaker:        breaker,
		Mirror:         mirror,
		WebSocketHub:   wsHub,
	}
}
