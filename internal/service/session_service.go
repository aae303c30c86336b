package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/pkg/logger"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/internal/repository/cache"
	"counseling-portal-be/pkg/events"
	"counseling-portal-be/pkg/resilience"

	"github.com/google/uuid"
)

// ClassSessionCheck is the breaker operation class for authoritative session
// lookups. Exported so startup code can pre-seed it from the shared mirror.
const ClassSessionCheck = "session-check"

// IEventPublisher abstracts the bus so the service does not care whether
// events go to NATS or nowhere (nil publisher is fine in dev).
type IEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Snapshot is the immutable view handed to subscribers on every change.
type Snapshot struct {
	State          entity.SessionState
	Identity       *entity.Identity
	Role           *string
	Expiry         *time.Time
	Profile        *entity.Profile
	ProfileStatus  entity.ProfileStatus
	ProfileLoading bool
	Initialized    bool
	LastError      error
}

type Listener func(Snapshot)

type ISessionService interface {
	// Initialize runs the startup session check: optimistic cache restore
	// first, then the authoritative provider check. Flips the initialized
	// latch exactly once, whatever the outcome.
	Initialize(ctx context.Context)

	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error

	// Refresh re-validates the session with the provider. When every retry is
	// exhausted the session is demoted rather than left advertising a session
	// we cannot prove.
	Refresh(ctx context.Context) error

	// Retry clears an open session-check circuit and re-runs the check.
	Retry(ctx context.Context) error

	ForgotPassword(ctx context.Context, email string) error

	// Subscribe registers a listener and replays the current snapshot to it
	// immediately. Listeners fire in registration order. Returns unsubscribe.
	Subscribe(l Listener) func()

	Snapshot() Snapshot

	// HasRole reports whether the session is authenticated with any of the
	// listed roles.
	HasRole(roles ...string) bool

	// Close detaches from the provider's event feed.
	Close()
}

type registration struct {
	id int
	fn Listener
}

type sessionService struct {
	provider       contract.IIdentityProvider
	cache          cache.ISessionCache
	profiles       IProfileService
	guard          *resilience.Guard
	eventPublisher IEventPublisher
	logger         logger.ILogger

	bufferWindow time.Duration
	initTimeout  time.Duration

	mu           sync.Mutex
	session      entity.Session
	initialized  bool
	listeners    []registration
	nextListener int

	initOnce    sync.Once
	unsubscribe func()
}

func NewSessionService(
	provider contract.IIdentityProvider,
	sessionCache cache.ISessionCache,
	profiles IProfileService,
	guard *resilience.Guard,
	eventPublisher IEventPublisher,
	bufferWindow time.Duration,
	initTimeout time.Duration,
	log logger.ILogger,
) ISessionService {
	s := &sessionService{
		provider:       provider,
		cache:          sessionCache,
		profiles:       profiles,
		guard:          guard,
		eventPublisher: eventPublisher,
		logger:         log,
		bufferWindow:   bufferWindow,
		initTimeout:    initTimeout,
		session:        entity.Session{State: entity.SessionInitializing},
	}
	profiles.SetOnChange(s.notify)
	s.unsubscribe = provider.OnAuthEvent(s.handleAuthEvent)
	return s
}

func (s *sessionService) Initialize(ctx context.Context) {
	// 1. Optimistic restore: pre-seed from the cached record so the caller sees
	// a session instantly, unless the record is inside the staleness window.
	if rec, err := s.cache.Get(ctx); err == nil && rec != nil {
		if rec.StalePast(s.bufferWindow, time.Now()) {
			s.logger.Info("Session", "Cached session too close to expiry, forcing cold check", nil)
			_ = s.cache.Delete(ctx)
		} else if id, perr := uuid.Parse(rec.IdentityId); perr == nil {
			s.mu.Lock()
			if s.session.State == entity.SessionInitializing {
				role := rec.Role
				expiry := rec.Expiry
				s.session = entity.Session{
					State:    entity.SessionAuthenticated,
					Identity: &entity.Identity{Id: id, Email: rec.Email},
					Role:     &role,
					Expiry:   &expiry,
				}
			}
			s.mu.Unlock()
			s.notify()
		}
	}

	// 2. Authoritative check, bounded by the overall init deadline.
	initCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
	defer cancel()

	sess, err := s.checkSession(initCtx)

	if err != nil && !errors.Is(err, resilience.ErrCancelled) && !errors.Is(err, resilience.ErrProviderRejected) {
		// 3. One cheap identity lookup before declaring the session dead.
		if ident, uerr := s.provider.GetUser(initCtx); uerr == nil && ident != nil {
			s.logger.Info("Session", "Session check failed but user lookup succeeded", map[string]interface{}{"identity_id": ident.Id.String()})
			sess = &contract.ProviderSession{Identity: *ident}
			err = nil
		}
	}

	// 4. The authoritative result always supersedes the optimistic pre-seed.
	switch {
	case err == nil && sess != nil:
		s.applySession(ctx, sess, "")
	case err == nil, errors.Is(err, resilience.ErrProviderRejected):
		s.clearSession(ctx, nil)
	case errors.Is(err, resilience.ErrCancelled):
		// The caller went away mid-init. A cancellation is never stored as a
		// user-visible error; whatever state stands is left for the next call.
	default:
		s.logger.Error("Session", "Initialization failed", map[string]interface{}{"error": err.Error()})
		s.mu.Lock()
		s.session = entity.Session{State: entity.SessionError, LastError: err}
		s.mu.Unlock()
		_ = s.cache.Delete(ctx)
		s.notify()
	}

	s.markInitialized(ctx)
}

func (s *sessionService) SignIn(ctx context.Context, email, password string) error {
	// Credential submission is never retried: a rejection is terminal and a
	// duplicate submission risks provider-side rate limiting.
	ps, err := s.provider.SignIn(ctx, email, password)
	if err == nil && ps == nil {
		err = resilience.Rejected("provider returned no session")
	}
	if err != nil {
		s.mu.Lock()
		s.session.LastError = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.applySession(ctx, ps, events.TypeSessionSignedIn)
	return nil
}

func (s *sessionService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	ident := s.session.Identity
	s.mu.Unlock()

	// Server-side revocation is best effort. The local session is cleared
	// regardless so the caller can never be stuck signed in.
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("Session", "Provider sign-out failed, clearing locally anyway", map[string]interface{}{"error": err.Error()})
	}

	s.clearSession(ctx, nil)
	if ident != nil {
		s.publishEvent(ctx, events.TypeSessionSignedOut, *ident)
	}
	return nil
}

func (s *sessionService) Refresh(ctx context.Context) error {
	sess, err := s.checkSession(ctx)
	if err != nil {
		if errors.Is(err, resilience.ErrCancelled) {
			return err
		}
		s.logger.Warn("Session", "Refresh exhausted, demoting session", map[string]interface{}{"error": err.Error()})
		s.clearSession(ctx, err)
		return err
	}
	if sess == nil {
		s.clearSession(ctx, nil)
		return nil
	}

	s.applySession(ctx, sess, events.TypeSessionRefreshed)
	return nil
}

func (s *sessionService) Retry(ctx context.Context) error {
	s.guard.Breaker().Reset(ClassSessionCheck)
	return s.Refresh(ctx)
}

func (s *sessionService) ForgotPassword(ctx context.Context, email string) error {
	return s.provider.ResetPasswordForEmail(ctx, email)
}

func (s *sessionService) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, registration{id: id, fn: l})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	l(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, reg := range s.listeners {
			if reg.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *sessionService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *sessionService) HasRole(roles ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.State != entity.SessionAuthenticated || s.session.Role == nil {
		return false
	}
	for _, role := range roles {
		if *s.session.Role == role {
			return true
		}
	}
	return false
}

func (s *sessionService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// checkSession runs the guarded authoritative session lookup.
func (s *sessionService) checkSession(ctx context.Context) (*contract.ProviderSession, error) {
	var sess *contract.ProviderSession
	err := s.guard.Do(ctx, ClassSessionCheck, func(ctx context.Context) error {
		ps, gerr := s.provider.GetSession(ctx)
		if gerr != nil {
			return gerr
		}
		sess = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// handleAuthEvent folds provider-initiated changes (out-of-band refreshes,
// revocations from another device) into local state.
func (s *sessionService) handleAuthEvent(ev contract.AuthEvent) {
	ctx := context.Background()
	switch ev.Type {
	case contract.AuthSignedIn, contract.AuthTokenRefreshed, contract.AuthUserUpdated:
		if ev.Session != nil {
			s.applySession(ctx, ev.Session, "")
		}
	case contract.AuthSignedOut:
		s.clearSession(ctx, nil)
	}
}

func (s *sessionService) applySession(ctx context.Context, ps *contract.ProviderSession, eventType string) {
	ident := ps.Identity

	s.mu.Lock()
	sess := entity.Session{State: entity.SessionAuthenticated, Identity: &ident}
	if ps.Role != "" {
		role := ps.Role
		sess.Role = &role
	}
	if !ps.Expiry.IsZero() {
		expiry := ps.Expiry
		sess.Expiry = &expiry
	}
	s.session = sess
	s.mu.Unlock()

	rec := &cache.CachedSessionRecord{
		IdentityId: ident.Id.String(),
		Email:      ident.Email,
		Role:       ps.Role,
		Expiry:     ps.Expiry,
	}
	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.Warn("Session", "Failed to persist session record", map[string]interface{}{"error": err.Error()})
	}

	if eventType != "" {
		s.publishEvent(ctx, eventType, ident)
	}

	s.notify()

	go s.profiles.LoadFor(context.Background(), ident.Id)
}

func (s *sessionService) clearSession(ctx context.Context, lastErr error) {
	s.mu.Lock()
	s.session = entity.Session{State: entity.SessionUnauthenticated, LastError: lastErr}
	s.mu.Unlock()

	_ = s.cache.Delete(ctx)
	s.profiles.Clear()
	s.notify()
}

// markInitialized flips the latch. Monotonic: once set it is never unset, even
// if later refreshes fail.
func (s *sessionService) markInitialized(ctx context.Context) {
	s.initOnce.Do(func() {
		s.mu.Lock()
		s.initialized = true
		state := s.session.State
		s.mu.Unlock()

		if s.eventPublisher != nil {
			event := events.BaseEvent{
				Type:       events.TypeSessionInitialized,
				Data:       map[string]interface{}{"state": string(state)},
				OccurredAt: time.Now(),
			}
			if err := s.eventPublisher.Publish(ctx, event); err != nil {
				s.logger.Warn("Session", "Failed to publish lifecycle event", map[string]interface{}{"type": event.Type, "error": err.Error()})
			}
		}

		s.notify()
	})
}

func (s *sessionService) publishEvent(ctx context.Context, eventType string, ident entity.Identity) {
	if s.eventPublisher == nil {
		return
	}
	event := events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"identity_id": ident.Id.String(),
			"email":       ident.Email,
		},
		OccurredAt: time.Now(),
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Session", "Failed to publish lifecycle event", map[string]interface{}{"type": eventType, "error": err.Error()})
	}
}

// notify fans the current snapshot out to listeners in registration order.
// Called with the lock released so a listener can call back into the service.
func (s *sessionService) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	regs := make([]registration, len(s.listeners))
	copy(regs, s.listeners)
	s.mu.Unlock()

	for _, reg := range regs {
		reg.fn(snap)
	}
}

func (s *sessionService) snapshotLocked() Snapshot {
	return Snapshot{
		State:          s.session.State,
		Identity:       s.session.Identity,
		Role:           s.session.Role,
		Expiry:         s.session.Expiry,
		Profile:        s.profiles.Profile(),
		ProfileStatus:  s.profiles.Status(),
		ProfileLoading: s.profiles.Loading(),
		Initialized:    s.initialized,
		LastError:      s.session.LastError,
	}
}
