// Package ledger is the append-only history of care actions per plant. It is
// the only source of "last watered" and "last fertilized": both are
// recomputed from the full history on every call, never cached.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/nats-io/nuid"

	"github.com/plantbuddy/project/internal/domain"
)

type Repository interface {
	GetPlant(ctx context.Context, plantID string) (domain.Plant, error)
	AppendCareEvent(ctx context.Context, event domain.CareEvent) error
	MaxEventTimestamp(ctx context.Context, plantID string, eventType domain.EventType) (time.Time, bool, error)
	ListCareEvents(ctx context.Context, plantID string) ([]domain.CareEvent, error)
}

type Service struct {
	Repo  Repository
	Now   func() time.Time
	NewID func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:  repo,
		Now:   time.Now,
		NewID: nuid.Next,
	}
}

// RecordEvent appends one event stamped with the current time.
func (s *Service) RecordEvent(ctx context.Context, plantID string, eventType domain.EventType, note string) (domain.CareEvent, error) {
	return s.RecordEventAt(ctx, plantID, eventType, note, s.Now())
}

// RecordEventAt appends one event stamped with at. Callers that derive other
// values from the same instant (a dated note, a due date) read the clock once
// and pass it here.
func (s *Service) RecordEventAt(ctx context.Context, plantID string, eventType domain.EventType, note string, at time.Time) (domain.CareEvent, error) {
	if !eventType.Valid() {
		return domain.CareEvent{}, domain.NewValidationError("event_type", fmt.Sprintf("unknown event type %q", eventType))
	}
	if _, err := s.Repo.GetPlant(ctx, plantID); err != nil {
		return domain.CareEvent{}, domain.WrapPersistence("get plant", plantID, err)
	}

	event := domain.CareEvent{
		ID:         s.NewID(),
		PlantID:    plantID,
		Type:       eventType,
		OccurredAt: at,
		Note:       strings.TrimSpace(note),
	}
	if err := s.Repo.AppendCareEvent(ctx, event); err != nil {
		return domain.CareEvent{}, domain.WrapPersistence("append care event", plantID, err)
	}
	return event, nil
}

// LastEventOfType returns the calendar date of the most recent event of the
// given type. The boolean is false when the plant has no such event.
func (s *Service) LastEventOfType(ctx context.Context, plantID string, eventType domain.EventType) (civil.Date, bool, error) {
	if _, err := s.Repo.GetPlant(ctx, plantID); err != nil {
		return civil.Date{}, false, domain.WrapPersistence("get plant", plantID, err)
	}
	return s.lastEventDate(ctx, plantID, eventType)
}

// LastCareDate is LastEventOfType for an already loaded plant, falling back
// to the acquisition date when the care was never recorded.
func (s *Service) LastCareDate(ctx context.Context, plant domain.Plant, careType domain.CareType) (civil.Date, error) {
	last, ok, err := s.lastEventDate(ctx, plant.ID, careType.EventType())
	if err != nil {
		return civil.Date{}, err
	}
	if !ok {
		return plant.DateAcquired, nil
	}
	return last, nil
}

// History returns every event of a plant ordered by time, ties in insertion order.
func (s *Service) History(ctx context.Context, plantID string) ([]domain.CareEvent, error) {
	if _, err := s.Repo.GetPlant(ctx, plantID); err != nil {
		return nil, domain.WrapPersistence("get plant", plantID, err)
	}
	events, err := s.Repo.ListCareEvents(ctx, plantID)
	if err != nil {
		return nil, domain.WrapPersistence("list care events", plantID, err)
	}
	return events, nil
}

// Today is the current calendar date in the clock's location.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.Now())
}

// CurrentTime reads the ledger clock.
func (s *Service) CurrentTime() time.Time {
	return s.Now()
}

func (s *Service) lastEventDate(ctx context.Context, plantID string, eventType domain.EventType) (civil.Date, bool, error) {
	ts, ok, err := s.Repo.MaxEventTimestamp(ctx, plantID, eventType)
	if err != nil {
		return civil.Date{}, false, domain.WrapPersistence("max event timestamp", plantID, err)
	}
	if !ok {
		return civil.Date{}, false, nil
	}
	// Stores may hand back UTC; dates are read in the clock's own location.
	return civil.DateOf(ts.In(s.Now().Location())), true, nil
}
