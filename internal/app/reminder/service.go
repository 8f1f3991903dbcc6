// Package reminder keeps exactly one open reminder per plant and care type,
// in step with the care ledger and the plant's configured frequencies.
package reminder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/nats-io/nuid"

	"github.com/plantbuddy/project/internal/app/schedule"
	"github.com/plantbuddy/project/internal/domain"
)

type Repository interface {
	GetPlant(ctx context.Context, plantID string) (domain.Plant, error)
	InsertReminder(ctx context.Context, reminder domain.Reminder) error
	DeleteReminders(ctx context.Context, plantID string, careType domain.CareType) error
	ListIncompleteReminders(ctx context.Context, plantID string) ([]domain.Reminder, error)
}

// TxRunner runs fn so that its writes apply together or not at all.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Ledger interface {
	RecordEventAt(ctx context.Context, plantID string, eventType domain.EventType, note string, at time.Time) (domain.CareEvent, error)
	LastCareDate(ctx context.Context, plant domain.Plant, careType domain.CareType) (civil.Date, error)
	CurrentTime() time.Time
}

type Service struct {
	Repo   Repository
	Tx     TxRunner
	Ledger Ledger
	NewID  func() string
}

func NewService(repo Repository, tx TxRunner, ledger Ledger) *Service {
	return &Service{
		Repo:   repo,
		Tx:     tx,
		Ledger: ledger,
		NewID:  nuid.Next,
	}
}

// Outcome is the result of one recorded care action.
type Outcome struct {
	Event    domain.CareEvent
	Reminder domain.Reminder
}

// StaleReminderError is returned when a care event was recorded but its
// reminder could not be replaced. The event stays in the ledger; calling
// Reschedule for the same plant and care type brings the reminder back in
// line.
type StaleReminderError struct {
	PlantID  string
	CareType domain.CareType
	Event    domain.CareEvent
	Err      error
}

func (e *StaleReminderError) Error() string {
	return fmt.Sprintf("%s recorded for plant %s but reminder not rescheduled: %v", e.CareType, e.PlantID, e.Err)
}

func (e *StaleReminderError) Unwrap() error { return e.Err }

// CreateInitialReminders creates one reminder per care type, due one
// frequency after the acquisition date. It must run once per plant.
func (s *Service) CreateInitialReminders(ctx context.Context, plant domain.Plant) ([]domain.Reminder, error) {
	created := make([]domain.Reminder, 0, len(domain.CareTypes))
	for _, careType := range domain.CareTypes {
		due, err := schedule.NextDueDate(plant.FrequencyDays(careType), plant.DateAcquired)
		if err != nil {
			return nil, fmt.Errorf("initial %s reminder: %w", careType, err)
		}
		reminder := domain.Reminder{
			ID:       s.NewID(),
			PlantID:  plant.ID,
			CareType: careType,
			DueDate:  due,
		}
		if err := s.Repo.InsertReminder(ctx, reminder); err != nil {
			return nil, domain.WrapPersistence("insert reminder", plant.ID, err)
		}
		created = append(created, reminder)
	}
	return created, nil
}

// RecordCareAndReschedule appends a care event for today and replaces the
// open reminder of that care type with one due a full frequency later.
func (s *Service) RecordCareAndReschedule(ctx context.Context, plantID string, careType domain.CareType) (Outcome, error) {
	if !careType.Valid() {
		return Outcome{}, domain.NewValidationError("care_type", fmt.Sprintf("unknown care type %q", careType))
	}
	plant, err := s.Repo.GetPlant(ctx, plantID)
	if err != nil {
		return Outcome{}, domain.WrapPersistence("get plant", plantID, err)
	}

	// One clock read dates the event, its note and the new due date.
	now := s.Ledger.CurrentTime()
	today := civil.DateOf(now)
	event, err := s.Ledger.RecordEventAt(ctx, plantID, careType.EventType(), CareNote(careType, today), now)
	if err != nil {
		return Outcome{}, err
	}

	reminder, err := s.replace(ctx, plant, careType, today)
	if err != nil {
		return Outcome{Event: event}, &StaleReminderError{PlantID: plantID, CareType: careType, Event: event, Err: err}
	}
	return Outcome{Event: event, Reminder: reminder}, nil
}

// Reschedule rebuilds the open reminder of one care type from the latest
// ledger state: due one frequency after the last recorded care, or after
// the acquisition date when there is none.
func (s *Service) Reschedule(ctx context.Context, plantID string, careType domain.CareType) (domain.Reminder, error) {
	if !careType.Valid() {
		return domain.Reminder{}, domain.NewValidationError("care_type", fmt.Sprintf("unknown care type %q", careType))
	}
	plant, err := s.Repo.GetPlant(ctx, plantID)
	if err != nil {
		return domain.Reminder{}, domain.WrapPersistence("get plant", plantID, err)
	}
	last, err := s.Ledger.LastCareDate(ctx, plant, careType)
	if err != nil {
		return domain.Reminder{}, err
	}
	return s.replace(ctx, plant, careType, last)
}

// ListOutstanding returns the open reminders of a plant, earliest due first,
// ties ordered by care type name.
func (s *Service) ListOutstanding(ctx context.Context, plantID string) ([]domain.Reminder, error) {
	if _, err := s.Repo.GetPlant(ctx, plantID); err != nil {
		return nil, domain.WrapPersistence("get plant", plantID, err)
	}
	reminders, err := s.Repo.ListIncompleteReminders(ctx, plantID)
	if err != nil {
		return nil, domain.WrapPersistence("list reminders", plantID, err)
	}
	slices.SortStableFunc(reminders, func(a, b domain.Reminder) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return cmp.Compare(a.CareType, b.CareType)
	})
	return reminders, nil
}

func (s *Service) replace(ctx context.Context, plant domain.Plant, careType domain.CareType, last civil.Date) (domain.Reminder, error) {
	due, err := schedule.NextDueDate(plant.FrequencyDays(careType), last)
	if err != nil {
		return domain.Reminder{}, err
	}
	reminder := domain.Reminder{
		ID:       s.NewID(),
		PlantID:  plant.ID,
		CareType: careType,
		DueDate:  due,
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.Repo.DeleteReminders(ctx, plant.ID, careType); err != nil {
			return domain.WrapPersistence("delete reminders", plant.ID, err)
		}
		if err := s.Repo.InsertReminder(ctx, reminder); err != nil {
			return domain.WrapPersistence("insert reminder", plant.ID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Reminder{}, domain.WrapPersistence("replace reminder", plant.ID, err)
	}
	return reminder, nil
}

// CareNote is the ledger note written for a care action on the given day.
func CareNote(careType domain.CareType, day civil.Date) string {
	verb := "watered"
	if careType == domain.CareFertilizing {
		verb = "fertilized"
	}
	return fmt.Sprintf("Plant %s on %s", verb, day)
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Tx == nil {
		return fn(ctx)
	}
	return s.Tx.RunInTx(ctx, fn)
}
