package service

import (
	"context"
	"errors"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/mapper"
	"counseling-portal-be/internal/pkg/logger"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/pkg/resilience"
)

const (
	ClassTherapistList = "therapist-list"

	// The unfiltered fallback is budgeted separately, otherwise the filtered
	// query exhausting its attempts would trip the circuit the fallback needs.
	ClassTherapistFallback = "therapist-list-fallback"
)

// TherapistListing is a directory page plus a degraded marker: when the
// filtered query keeps failing, the service falls back to the unfiltered
// list so the caller still gets something to show.
type TherapistListing struct {
	Therapists []*entity.Therapist
	Degraded   bool
}

type ITherapistService interface {
	// List fetches the therapist directory, optionally filtered by state and
	// modality. Returns the listing or an error only when both the filtered
	// query and the unfiltered fallback fail.
	List(ctx context.Context, filter contract.Filter) (*TherapistListing, error)
}

type therapistService struct {
	store  contract.IDataStore
	guard  *resilience.Guard
	logger logger.ILogger

	// gen discards a slow filtered result when a newer List call superseded it.
	gen resilience.Generation
}

func NewTherapistService(store contract.IDataStore, guard *resilience.Guard, log logger.ILogger) ITherapistService {
	return &therapistService{
		store:  store,
		guard:  guard,
		logger: log,
	}
}

func (s *therapistService) List(ctx context.Context, filter contract.Filter) (*TherapistListing, error) {
	gen := s.gen.Next()

	rows, err := s.query(ctx, ClassTherapistList, filter)
	if err == nil {
		return &TherapistListing{Therapists: s.mapRows(rows)}, nil
	}
	if errors.Is(err, resilience.ErrCancelled) {
		return nil, err
	}
	if !s.gen.IsCurrent(gen) {
		return nil, resilience.ErrCancelled
	}
	if len(filter) == 0 || errors.Is(err, resilience.ErrCircuitOpen) {
		// Either there is no broader query to fall back to, or the circuit is
		// open and a fallback attempt would be refused anyway.
		return nil, err
	}

	s.logger.Warn("Therapist", "Filtered listing failed, serving unfiltered fallback", map[string]interface{}{"error": err.Error()})

	rows, ferr := s.query(ctx, ClassTherapistFallback, nil)
	if ferr != nil {
		return nil, err
	}
	return &TherapistListing{Therapists: s.mapRows(rows), Degraded: true}, nil
}

func (s *therapistService) query(ctx context.Context, class string, filter contract.Filter) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := s.guard.Do(ctx, class, func(ctx context.Context) error {
		r, qerr := s.store.Query(ctx, "therapists", filter)
		if qerr != nil {
			return qerr
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *therapistService) mapRows(rows []map[string]interface{}) []*entity.Therapist {
	out := make([]*entity.Therapist, 0, len(rows))
	for _, row := range rows {
		if t, ok := mapper.TherapistFromRow(row); ok {
			out = append(out, t)
		}
	}
	return out
}
