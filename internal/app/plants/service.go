// Package plants is the entry point presentation code talks to. It composes
// the care ledger, the schedule calculator and the reminder manager around
// the plant catalog.
package plants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/plantbuddy/project/internal/app/ledger"
	"github.com/plantbuddy/project/internal/app/reminder"
	"github.com/plantbuddy/project/internal/app/schedule"
	"github.com/plantbuddy/project/internal/contracts"
	"github.com/plantbuddy/project/internal/domain"
	"github.com/plantbuddy/project/internal/platform/metrics"
	"github.com/plantbuddy/project/internal/sharding"
)

const (
	initialSetupNote = "Plant added to system"
	listConcurrency  = 8
)

// Repository is the full persistence capability: the plant catalog plus what
// the ledger and the reminder manager need.
type Repository interface {
	ledger.Repository
	reminder.Repository
	InsertPlant(ctx context.Context, plant domain.Plant) (string, error)
	UpdatePlant(ctx context.Context, plant domain.Plant) error
	DeletePlant(ctx context.Context, plantID string) error
	ListPlants(ctx context.Context, location domain.Location) ([]domain.Plant, error)
}

type PublishFunc func(subject string, payload []byte) error

// Defaults fill in frequencies a new plant was created without.
type Defaults struct {
	WateringDays    int
	FertilizingDays int
}

type Service struct {
	Repo      Repository
	Tx        reminder.TxRunner
	Ledger    *ledger.Service
	Reminders *reminder.Service
	Defaults  Defaults
	// Publish is optional; care events are not published when it is nil.
	Publish PublishFunc
	Metrics *Metrics
	Logger  *slog.Logger

	locks keyedMutex
}

func NewService(repo Repository, tx reminder.TxRunner) *Service {
	led := ledger.NewService(repo)
	return &Service{
		Repo:      repo,
		Tx:        tx,
		Ledger:    led,
		Reminders: reminder.NewService(repo, tx, led),
		Defaults: Defaults{
			WateringDays:    domain.DefaultWateringFrequencyDays,
			FertilizingDays: domain.DefaultFertilizingFrequencyDays,
		},
		Metrics: NewMetrics(metrics.NewRegistry()),
		Logger:  slog.Default(),
	}
}

// PlantInput is a fully populated form. Nil pointers mean "use the default"
// when adding and "keep the current value" when updating.
type PlantInput struct {
	Name                     string            `json:"name"`
	Species                  string            `json:"species"`
	Location                 domain.Location   `json:"location"`
	LightNeeds               domain.LightNeeds `json:"light_needs"`
	DateAcquired             *civil.Date       `json:"date_acquired,omitempty"`
	WateringFrequencyDays    *int              `json:"watering_frequency_days,omitempty"`
	FertilizingFrequencyDays *int              `json:"fertilizing_frequency_days,omitempty"`
	Notes                    string            `json:"notes"`
	ImagePath                string            `json:"image_path"`
}

func (in PlantInput) apply(p domain.Plant) domain.Plant {
	p.Name = in.Name
	p.Species = in.Species
	p.Location = in.Location
	p.LightNeeds = in.LightNeeds
	p.Notes = in.Notes
	p.ImagePath = in.ImagePath
	if in.DateAcquired != nil {
		p.DateAcquired = *in.DateAcquired
	}
	if in.WateringFrequencyDays != nil {
		p.WateringFrequencyDays = *in.WateringFrequencyDays
	}
	if in.FertilizingFrequencyDays != nil {
		p.FertilizingFrequencyDays = *in.FertilizingFrequencyDays
	}
	p.Normalize()
	return p
}

// PlantView is a plant with its care status derived from the ledger.
type PlantView struct {
	domain.Plant
	LastWatered          civil.Date `json:"last_watered"`
	LastFertilized       civil.Date `json:"last_fertilized"`
	NextWatering         civil.Date `json:"next_watering"`
	NextFertilizing      civil.Date `json:"next_fertilizing"`
	DaysUntilWatering    int        `json:"days_until_watering"`
	DaysUntilFertilizing int        `json:"days_until_fertilizing"`
	WateringProgress     float64    `json:"watering_progress"`
	FertilizingProgress  float64    `json:"fertilizing_progress"`
}

// AddPlant validates the input, stores the plant, writes its InitialSetup
// event and creates its two initial reminders, all in one transaction.
func (s *Service) AddPlant(ctx context.Context, in PlantInput) (string, error) {
	plant := in.apply(domain.Plant{
		DateAcquired:             s.Ledger.Today(),
		WateringFrequencyDays:    s.Defaults.WateringDays,
		FertilizingFrequencyDays: s.Defaults.FertilizingDays,
	})
	if err := plant.Validate(); err != nil {
		return "", err
	}

	var setup domain.CareEvent
	err := s.runInTx(ctx, func(ctx context.Context) error {
		id, err := s.Repo.InsertPlant(ctx, plant)
		if err != nil {
			return domain.WrapPersistence("insert plant", "", err)
		}
		plant.ID = id
		if setup, err = s.Ledger.RecordEvent(ctx, id, domain.EventInitialSetup, initialSetupNote); err != nil {
			return err
		}
		_, err = s.Reminders.CreateInitialReminders(ctx, plant)
		return err
	})
	if err != nil {
		return "", domain.WrapPersistence("add plant", plant.ID, err)
	}

	s.Metrics.PlantChanges.Inc("add")
	s.Logger.Info("plant added", "plant_id", plant.ID, "name", plant.Name)
	s.publish(setup, civil.Date{})
	return plant.ID, nil
}

// UpdatePlant replaces the editable fields of a plant. When a frequency or
// the acquisition date changes, the affected reminders are rebuilt from the
// ledger so they match the new configuration.
func (s *Service) UpdatePlant(ctx context.Context, plantID string, in PlantInput) (domain.Plant, error) {
	unlock := s.locks.Lock(plantID)
	defer unlock()

	current, err := s.Repo.GetPlant(ctx, plantID)
	if err != nil {
		return domain.Plant{}, domain.WrapPersistence("get plant", plantID, err)
	}
	updated := in.apply(current)
	if err := updated.Validate(); err != nil {
		return domain.Plant{}, err
	}

	var stale []domain.CareType
	for _, careType := range domain.CareTypes {
		if updated.FrequencyDays(careType) != current.FrequencyDays(careType) || updated.DateAcquired != current.DateAcquired {
			stale = append(stale, careType)
		}
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.Repo.UpdatePlant(ctx, updated); err != nil {
			return domain.WrapPersistence("update plant", plantID, err)
		}
		for _, careType := range stale {
			if _, err := s.Reminders.Reschedule(ctx, plantID, careType); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Plant{}, domain.WrapPersistence("update plant", plantID, err)
	}

	s.Metrics.PlantChanges.Inc("update")
	s.Logger.Info("plant updated", "plant_id", plantID, "rescheduled", len(stale))
	return updated, nil
}

// DeletePlant removes a plant with all of its events and reminders.
func (s *Service) DeletePlant(ctx context.Context, plantID string) error {
	unlock := s.locks.Lock(plantID)
	defer unlock()

	if err := s.Repo.DeletePlant(ctx, plantID); err != nil {
		return domain.WrapPersistence("delete plant", plantID, err)
	}
	s.Metrics.PlantChanges.Inc("delete")
	s.Logger.Info("plant deleted", "plant_id", plantID)
	return nil
}

// GetPlantView loads a plant and derives its status as of today.
func (s *Service) GetPlantView(ctx context.Context, plantID string) (PlantView, error) {
	plant, err := s.Repo.GetPlant(ctx, plantID)
	if err != nil {
		return PlantView{}, domain.WrapPersistence("get plant", plantID, err)
	}
	return s.view(ctx, plant, s.Ledger.Today())
}

// ListPlants returns every plant, optionally in one location, in storage
// order with its derived status.
func (s *Service) ListPlants(ctx context.Context, location domain.Location) ([]PlantView, error) {
	if location != "" && !location.Valid() {
		return nil, domain.NewValidationError("location", fmt.Sprintf("unknown location %q", location))
	}
	plants, err := s.Repo.ListPlants(ctx, location)
	if err != nil {
		return nil, domain.WrapPersistence("list plants", "", err)
	}

	today := s.Ledger.Today()
	views := make([]PlantView, len(plants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, plant := range plants {
		i, plant := i, plant
		g.Go(func() error {
			v, err := s.view(gctx, plant, today)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) RecordWatering(ctx context.Context, plantID string) (PlantView, error) {
	return s.recordCare(ctx, plantID, domain.CareWatering)
}

func (s *Service) RecordFertilizing(ctx context.Context, plantID string) (PlantView, error) {
	return s.recordCare(ctx, plantID, domain.CareFertilizing)
}

// Reschedule retries only the reminder step of a care action, e.g. after
// RecordWatering returned a *reminder.StaleReminderError.
func (s *Service) Reschedule(ctx context.Context, plantID string, careType domain.CareType) (domain.Reminder, error) {
	unlock := s.locks.Lock(plantID)
	defer unlock()

	r, err := s.Reminders.Reschedule(ctx, plantID, careType)
	if err != nil {
		return domain.Reminder{}, err
	}
	s.Logger.Info("reminder rescheduled", "plant_id", plantID, "care_type", careType, "due", r.DueDate)
	return r, nil
}

func (s *Service) ListOutstanding(ctx context.Context, plantID string) ([]domain.Reminder, error) {
	return s.Reminders.ListOutstanding(ctx, plantID)
}

func (s *Service) History(ctx context.Context, plantID string) ([]domain.CareEvent, error) {
	return s.Ledger.History(ctx, plantID)
}

// Choices lists the values the plant form offers.
type Choices struct {
	Locations       []domain.Location   `json:"locations"`
	LightNeeds      []domain.LightNeeds `json:"light_needs"`
	CareTypes       []domain.CareType   `json:"care_types"`
	WateringDays    int                 `json:"default_watering_frequency_days"`
	FertilizingDays int                 `json:"default_fertilizing_frequency_days"`
}

func (s *Service) Options() Choices {
	return Choices{
		Locations:       domain.Locations,
		LightNeeds:      domain.LightLevels,
		CareTypes:       domain.CareTypes,
		WateringDays:    s.Defaults.WateringDays,
		FertilizingDays: s.Defaults.FertilizingDays,
	}
}

func (s *Service) recordCare(ctx context.Context, plantID string, careType domain.CareType) (PlantView, error) {
	unlock := s.locks.Lock(plantID)
	defer unlock()

	out, err := s.Reminders.RecordCareAndReschedule(ctx, plantID, careType)
	var stale *reminder.StaleReminderError
	switch {
	case errors.As(err, &stale):
		s.Metrics.CareActions.Inc(string(careType), "stale")
		s.Logger.Warn("care recorded but reminder not rescheduled",
			"plant_id", plantID, "care_type", careType, "event_id", stale.Event.ID, "error", stale.Err)
		s.publish(stale.Event, civil.Date{})
		return PlantView{}, err
	case err != nil:
		s.Metrics.CareActions.Inc(string(careType), "error")
		return PlantView{}, err
	}

	s.Metrics.CareActions.Inc(string(careType), "ok")
	s.Logger.Info("care recorded", "plant_id", plantID, "care_type", careType, "next_due", out.Reminder.DueDate)
	s.publish(out.Event, out.Reminder.DueDate)
	return s.GetPlantView(ctx, plantID)
}

func (s *Service) view(ctx context.Context, plant domain.Plant, today civil.Date) (PlantView, error) {
	var last [2]civil.Date
	g, gctx := errgroup.WithContext(ctx)
	for i, careType := range domain.CareTypes {
		i, careType := i, careType
		g.Go(func() error {
			d, err := s.Ledger.LastCareDate(gctx, plant, careType)
			last[i] = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return PlantView{}, err
	}

	water, err := schedule.Compute(plant.WateringFrequencyDays, last[0], today)
	if err != nil {
		return PlantView{}, fmt.Errorf("plant %s watering status: %w", plant.ID, err)
	}
	feed, err := schedule.Compute(plant.FertilizingFrequencyDays, last[1], today)
	if err != nil {
		return PlantView{}, fmt.Errorf("plant %s fertilizing status: %w", plant.ID, err)
	}
	return PlantView{
		Plant:                plant,
		LastWatered:          water.LastEvent,
		LastFertilized:       feed.LastEvent,
		NextWatering:         water.NextDue,
		NextFertilizing:      feed.NextDue,
		DaysUntilWatering:    water.DaysUntilDue,
		DaysUntilFertilizing: feed.DaysUntilDue,
		WateringProgress:     water.Progress,
		FertilizingProgress:  feed.Progress,
	}, nil
}

// publish sends a care event to the message bus. The ledger already holds
// the event, so a failure is logged and counted only.
func (s *Service) publish(event domain.CareEvent, nextDue civil.Date) {
	if s.Publish == nil {
		return
	}
	msg := contracts.CareEventMessage{
		EventID:    event.ID,
		PlantID:    event.PlantID,
		EventType:  string(event.Type),
		Note:       event.Note,
		OccurredAt: event.OccurredAt,
		ShardID:    sharding.ShardFor(event.PlantID),
	}
	if !nextDue.IsZero() {
		msg.NextDue = nextDue.String()
	}
	payload, err := json.Marshal(msg)
	if err == nil {
		err = s.Publish(sharding.CareSubject(event.PlantID), payload)
	}
	if err != nil {
		s.Metrics.PublishFailures.Inc(string(event.Type))
		s.Logger.Warn("publish care event failed", "plant_id", event.PlantID, "event_id", event.ID, "error", err)
	}
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Tx == nil {
		return fn(ctx)
	}
	return s.Tx.RunInTx(ctx, fn)
}
