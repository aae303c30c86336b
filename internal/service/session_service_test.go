package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/pkg/logger"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/internal/repository/cache"
	"counseling-portal-be/pkg/events"
	"counseling-portal-be/pkg/resilience"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu           sync.Mutex
	session      *contract.ProviderSession
	sessionErr   error
	user         *entity.Identity
	userErr      error
	signInRes    *contract.ProviderSession
	signInErr    error
	signOutErr   error
	hang         bool // GetSession/GetUser block until the context dies
	sessionCalls int
	signOutCalls int
	listeners    []contract.AuthListener
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*contract.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	return p.signInRes, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	return p.signOutErr
}

func (p *fakeProvider) GetSession(ctx context.Context) (*contract.ProviderSession, error) {
	p.mu.Lock()
	p.sessionCalls++
	hang := p.hang
	sessionErr := p.sessionErr
	session := p.session
	p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if sessionErr != nil {
		return nil, sessionErr
	}
	return session, nil
}

func (p *fakeProvider) GetUser(ctx context.Context) (*entity.Identity, error) {
	p.mu.Lock()
	hang := p.hang
	userErr := p.userErr
	user := p.user
	p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if userErr != nil {
		return nil, userErr
	}
	return user, nil
}

func (p *fakeProvider) ResetPasswordForEmail(ctx context.Context, email string) error {
	return nil
}

func (p *fakeProvider) OnAuthEvent(listener contract.AuthListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, listener)
	return func() {}
}

func (p *fakeProvider) emit(ev contract.AuthEvent) {
	p.mu.Lock()
	listeners := append([]contract.AuthListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

type fakeStore struct {
	mu         sync.Mutex
	profile    *entity.Profile
	fetchErr   error
	updateErr  error
	queryRows  []map[string]interface{}
	queryErr   error
	fetchCalls int
}

func (s *fakeStore) FetchProfile(ctx context.Context, identityId uuid.UUID) (*entity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.profile == nil {
		return nil, contract.ErrNotFound
	}
	return s.profile, nil
}

func (s *fakeStore) UpdateProfile(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error {
	return s.updateErr
}

func (s *fakeStore) Query(ctx context.Context, collection string, filter contract.Filter) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryRows, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType())
	}
	return out
}

type sessionFixture struct {
	provider  *fakeProvider
	store     *fakeStore
	publisher *fakePublisher
	cache     cache.ISessionCache
	service   ISessionService
}

func newSessionFixture(t *testing.T, provider *fakeProvider, store *fakeStore) *sessionFixture {
	t.Helper()
	nop := logger.NewNopLogger()
	breaker := resilience.NewBreaker(2, time.Hour, nil, nil, nop)
	guard := resilience.NewGuard(resilience.Options{
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		PerAttemptTimeout: 500 * time.Millisecond,
		CircuitCooldown:   time.Hour,
	}, breaker, nil, nop)

	sessionCache := cache.NewSessionCache(nil, "test-"+uuid.NewString(), nop)
	profiles := NewProfileService(store, guard, nop)
	publisher := &fakePublisher{}

	svc := NewSessionService(
		provider,
		sessionCache,
		profiles,
		guard,
		publisher,
		10*time.Minute,
		time.Second,
		nop,
	)
	return &sessionFixture{
		provider:  provider,
		store:     store,
		publisher: publisher,
		cache:     sessionCache,
		service:   svc,
	}
}

func activeSession(id uuid.UUID) *contract.ProviderSession {
	return &contract.ProviderSession{
		Identity: entity.Identity{Id: id, Email: "client@example.com"},
		Role:     entity.RoleClient,
		Expiry:   time.Now().Add(time.Hour),
	}
}

func TestInitializeWithValidSession(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{session: activeSession(id)}
	store := &fakeStore{profile: &entity.Profile{IdentityId: id, Status: entity.ProfileStatusActive}}
	f := newSessionFixture(t, provider, store)

	f.service.Initialize(context.Background())

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionAuthenticated, snap.State)
	assert.True(t, snap.Initialized)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, id, snap.Identity.Id)

	// Session record is persisted for the next startup.
	rec, err := f.cache.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, id.String(), rec.IdentityId)

	// Profile load settles in the background.
	assert.Eventually(t, func() bool {
		return f.service.Snapshot().ProfileStatus == entity.ProfileStatusActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInitializeWithoutSession(t *testing.T) {
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	f.service.Initialize(context.Background())

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionUnauthenticated, snap.State)
	assert.True(t, snap.Initialized)
	assert.Nil(t, snap.Identity)
}

func TestInitializeTotalFailureEntersErrorState(t *testing.T) {
	provider := &fakeProvider{
		sessionErr: errors.New("connection refused"),
		userErr:    errors.New("connection refused"),
	}
	f := newSessionFixture(t, provider, &fakeStore{})

	f.service.Initialize(context.Background())

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionError, snap.State)
	assert.Error(t, snap.LastError)
	// The latch still flips: the app knows initialization ran and failed.
	assert.True(t, snap.Initialized)
}

func TestInitializeDeadlineSurfacesAsTimeout(t *testing.T) {
	provider := &fakeProvider{hang: true}
	store := &fakeStore{}
	nop := logger.NewNopLogger()
	breaker := resilience.NewBreaker(3, time.Hour, nil, nil, nop)
	guard := resilience.NewGuard(resilience.Options{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		PerAttemptTimeout: 5 * time.Second,
		CircuitCooldown:   time.Hour,
	}, breaker, nil, nop)
	sessionCache := cache.NewSessionCache(nil, "test-"+uuid.NewString(), nop)
	svc := NewSessionService(
		provider,
		sessionCache,
		NewProfileService(store, guard, nop),
		guard,
		&fakePublisher{},
		10*time.Minute,
		50*time.Millisecond,
		nop,
	)

	svc.Initialize(context.Background())

	// The init deadline expiring is a timeout, not a cancellation.
	snap := svc.Snapshot()
	assert.Equal(t, entity.SessionError, snap.State)
	assert.ErrorIs(t, snap.LastError, resilience.ErrTimeout)
	assert.NotErrorIs(t, snap.LastError, resilience.ErrCancelled)
	assert.True(t, snap.Initialized)
}

func TestInitializeCancelledNeverSurfaces(t *testing.T) {
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.service.Initialize(ctx)

	snap := f.service.Snapshot()
	assert.NotEqual(t, entity.SessionError, snap.State)
	assert.Nil(t, snap.LastError)
	assert.True(t, snap.Initialized)
}

func TestInitializeFallsBackToUserLookup(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{
		sessionErr: errors.New("session endpoint down"),
		user:       &entity.Identity{Id: id, Email: "client@example.com"},
	}
	f := newSessionFixture(t, provider, &fakeStore{})

	f.service.Initialize(context.Background())

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionAuthenticated, snap.State)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, id, snap.Identity.Id)
}

func TestInitializeReplaysFreshCacheThenSupersedes(t *testing.T) {
	id := uuid.New()
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	require.NoError(t, f.cache.Set(context.Background(), &cache.CachedSessionRecord{
		IdentityId: id.String(),
		Email:      "client@example.com",
		Role:       entity.RoleClient,
		Expiry:     time.Now().Add(time.Hour),
	}))

	var mu sync.Mutex
	var states []entity.SessionState
	f.service.Subscribe(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	f.service.Initialize(context.Background())

	mu.Lock()
	defer mu.Unlock()
	// Optimistic restore shows the cached session first, then the
	// authoritative no-session answer replaces it.
	assert.Contains(t, states, entity.SessionAuthenticated)
	assert.Equal(t, entity.SessionUnauthenticated, states[len(states)-1])
}

func TestInitializeDiscardsStaleCache(t *testing.T) {
	id := uuid.New()
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	// Expires inside the buffer window, so the record is unusable.
	require.NoError(t, f.cache.Set(context.Background(), &cache.CachedSessionRecord{
		IdentityId: id.String(),
		Email:      "client@example.com",
		Expiry:     time.Now().Add(time.Minute),
	}))

	var mu sync.Mutex
	var states []entity.SessionState
	f.service.Subscribe(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	f.service.Initialize(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, states, entity.SessionAuthenticated)

	rec, err := f.cache.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSignInSuccess(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{signInRes: activeSession(id)}
	f := newSessionFixture(t, provider, &fakeStore{})

	err := f.service.SignIn(context.Background(), "client@example.com", "secret")
	require.NoError(t, err)

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionAuthenticated, snap.State)
	assert.True(t, f.service.HasRole(entity.RoleClient))
	assert.Contains(t, f.publisher.types(), events.TypeSessionSignedIn)

	rec, err := f.cache.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, entity.RoleClient, rec.Role)
}

func TestSignInRejectionKeepsState(t *testing.T) {
	provider := &fakeProvider{signInErr: resilience.Rejected("invalid credentials")}
	f := newSessionFixture(t, provider, &fakeStore{})
	f.service.Initialize(context.Background())

	err := f.service.SignIn(context.Background(), "client@example.com", "wrong")
	assert.ErrorIs(t, err, resilience.ErrProviderRejected)

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
}

func TestSignInNilSessionIsRejected(t *testing.T) {
	// A provider that answers (nil, nil) has not issued a session.
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	err := f.service.SignIn(context.Background(), "client@example.com", "secret")
	assert.ErrorIs(t, err, resilience.ErrProviderRejected)
	assert.NotEqual(t, entity.SessionAuthenticated, f.service.Snapshot().State)
}

func TestSignOutClearsEvenWhenProviderFails(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{signInRes: activeSession(id), signOutErr: errors.New("revocation failed")}
	f := newSessionFixture(t, provider, &fakeStore{})

	require.NoError(t, f.service.SignIn(context.Background(), "client@example.com", "secret"))
	require.NoError(t, f.service.SignOut(context.Background()))

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Equal(t, 1, provider.signOutCalls)

	rec, err := f.cache.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Contains(t, f.publisher.types(), events.TypeSessionSignedOut)
}

func TestRefreshExhaustionDemotesSession(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{signInRes: activeSession(id)}
	f := newSessionFixture(t, provider, &fakeStore{})
	require.NoError(t, f.service.SignIn(context.Background(), "client@example.com", "secret"))

	provider.mu.Lock()
	provider.sessionErr = errors.New("connection refused")
	provider.mu.Unlock()

	err := f.service.Refresh(context.Background())
	require.Error(t, err)

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionUnauthenticated, snap.State)
	assert.Error(t, snap.LastError)

	rec, cerr := f.cache.Get(context.Background())
	require.NoError(t, cerr)
	assert.Nil(t, rec)
}

func TestLatchStaysSetAfterFailedRefresh(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{session: activeSession(id)}
	f := newSessionFixture(t, provider, &fakeStore{})

	f.service.Initialize(context.Background())
	require.True(t, f.service.Snapshot().Initialized)

	provider.mu.Lock()
	provider.sessionErr = errors.New("connection refused")
	provider.mu.Unlock()

	_ = f.service.Refresh(context.Background())
	assert.True(t, f.service.Snapshot().Initialized)
}

func TestProviderEventConvergence(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{}
	f := newSessionFixture(t, provider, &fakeStore{})
	f.service.Initialize(context.Background())

	provider.emit(contract.AuthEvent{
		Type:    contract.AuthTokenRefreshed,
		Session: activeSession(id),
	})

	snap := f.service.Snapshot()
	assert.Equal(t, entity.SessionAuthenticated, snap.State)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, id, snap.Identity.Id)

	provider.emit(contract.AuthEvent{Type: contract.AuthSignedOut})
	assert.Equal(t, entity.SessionUnauthenticated, f.service.Snapshot().State)
}

func TestSubscribeReplaysAndUnsubscribes(t *testing.T) {
	f := newSessionFixture(t, &fakeProvider{}, &fakeStore{})

	var mu sync.Mutex
	calls := 0
	unsubscribe := f.service.Subscribe(func(snap Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	mu.Lock()
	assert.Equal(t, 1, calls, "current snapshot replays immediately")
	mu.Unlock()

	unsubscribe()
	f.service.Initialize(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "no notifications after unsubscribe")
}

func TestHasRole(t *testing.T) {
	id := uuid.New()
	provider := &fakeProvider{signInRes: activeSession(id)}
	f := newSessionFixture(t, provider, &fakeStore{})

	assert.False(t, f.service.HasRole(entity.RoleClient))

	require.NoError(t, f.service.SignIn(context.Background(), "client@example.com", "secret"))
	assert.True(t, f.service.HasRole(entity.RoleClient))
	assert.False(t, f.service.HasRole(entity.RoleAdmin))

	// Any listed role is enough.
	assert.True(t, f.service.HasRole(entity.RoleAdmin, entity.RoleClient))
	assert.False(t, f.service.HasRole(entity.RoleAdmin, entity.RoleClinician))
	assert.False(t, f.service.HasRole())

	require.NoError(t, f.service.SignOut(context.Background()))
	assert.False(t, f.service.HasRole(entity.RoleClient))
}
