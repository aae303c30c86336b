package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/pkg/logger"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/pkg/resilience"

	"github.com/google/uuid"
)

const ClassProfileFetch = "profile-fetch"

type IProfileService interface {
	// LoadFor fetches the profile for an identity. Blocks until the fetch
	// settles or is superseded; run it in a goroutine from the session flow.
	LoadFor(ctx context.Context, identityId uuid.UUID)

	// SubmitIntake applies a partial intake-form update and reloads.
	SubmitIntake(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error

	Profile() *entity.Profile
	Status() entity.ProfileStatus
	Loading() bool

	// Clear drops the current profile and invalidates any in-flight fetch.
	Clear()

	// SetOnChange registers the single observer (the session service) that is
	// poked on every profile change.
	SetOnChange(fn func())
}

type profileService struct {
	store  contract.IDataStore
	guard  *resilience.Guard
	logger logger.ILogger

	// gen invalidates stale fetches: if the identity changes while a fetch is
	// outstanding, the old result is discarded, never applied.
	gen resilience.Generation

	mu       sync.Mutex
	profile  *entity.Profile
	status   entity.ProfileStatus
	loading  bool
	onChange func()
}

func NewProfileService(store contract.IDataStore, guard *resilience.Guard, log logger.ILogger) IProfileService {
	return &profileService{
		store:  store,
		guard:  guard,
		logger: log,
	}
}

func (s *profileService) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *profileService) LoadFor(ctx context.Context, identityId uuid.UUID) {
	gen := s.gen.Next()

	s.mu.Lock()
	s.loading = true
	notify := s.onChange
	s.mu.Unlock()
	if notify != nil {
		notify()
	}

	var record *entity.Profile
	err := s.guard.Do(ctx, ClassProfileFetch, func(ctx context.Context) error {
		rec, ferr := s.store.FetchProfile(ctx, identityId)
		if errors.Is(ferr, contract.ErrNotFound) {
			record = nil
			return nil
		}
		if ferr != nil {
			return ferr
		}
		record = rec
		return nil
	})

	s.mu.Lock()
	if !s.gen.IsCurrent(gen) {
		// A newer identity dispatched while we were fetching. Discard.
		s.mu.Unlock()
		return
	}
	s.loading = false

	switch {
	case errors.Is(err, resilience.ErrCancelled):
		// Silently discarded, never user-visible.
	case err != nil:
		s.profile = nil
		s.status = entity.ProfileStatusErrorFetching
		s.logger.Warn("Profile", "Profile fetch degraded", map[string]interface{}{
			"identity_id": identityId.String(),
			"error":       fmt.Errorf("%w: %v", resilience.ErrProfileFetchFailed, err).Error(),
		})
	case record == nil:
		// No record yet: a first-class state, not an error.
		s.profile = nil
		s.status = entity.ProfileStatusNew
	default:
		s.profile = record
		s.status = record.Status
	}
	notify = s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (s *profileService) SubmitIntake(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error {
	if err := s.store.UpdateProfile(ctx, identityId, fields); err != nil {
		return err
	}
	s.LoadFor(ctx, identityId)
	return nil
}

func (s *profileService) Profile() *entity.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *profileService) Status() entity.ProfileStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *profileService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *profileService) Clear() {
	s.gen.Next()
	s.mu.Lock()
	s.profile = nil
	s.status = ""
	s.loading = false
	s.mu.Unlock()
}
