// Package memory keeps plants, care events and reminders in process memory.
// It enforces the same constraints as the PostgreSQL schema: foreign keys,
// cascading plant deletion and at most one open reminder per care type.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nuid"

	"github.com/plantbuddy/project/internal/domain"
)

type storedPlant struct {
	seq   uint64
	plant domain.Plant
}

type storedEvent struct {
	seq   uint64
	event domain.CareEvent
}

type Store struct {
	NewID func() string

	mu        sync.RWMutex
	plants    []storedPlant
	events    []storedEvent
	reminders []domain.Reminder
	seq       uint64
}

func New() *Store {
	return &Store{NewID: nuid.Next}
}

type undoKey struct{}

type undoLog struct {
	ops []func()
}

// RunInTx runs fn and reverts every write it made through this store when
// fn returns an error.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(undoKey{}).(*undoLog); nested {
		return fn(ctx)
	}
	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		s.mu.Lock()
		for i := len(log.ops) - 1; i >= 0; i-- {
			log.ops[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback must be called with s.mu held. Each op undoes exactly the rows
// its write touched, so writes committed meanwhile by other callers survive.
func onRollback(ctx context.Context, op func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.ops = append(log.ops, op)
	}
}

func (s *Store) InsertPlant(ctx context.Context, plant domain.Plant) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plant.ID = s.NewID()
	s.seq++
	s.plants = append(s.plants, storedPlant{seq: s.seq, plant: plant})
	id := plant.ID
	onRollback(ctx, func() {
		s.plants = slices.DeleteFunc(s.plants, func(p storedPlant) bool { return p.plant.ID == id })
	})
	return id, nil
}

func (s *Store) GetPlant(_ context.Context, plantID string) (domain.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.plantIndex(plantID)
	if idx < 0 {
		return domain.Plant{}, domain.NotFound("plant", plantID)
	}
	return s.plants[idx].plant, nil
}

func (s *Store) UpdatePlant(ctx context.Context, plant domain.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.plantIndex(plant.ID)
	if idx < 0 {
		return domain.NotFound("plant", plant.ID)
	}
	prev := s.plants[idx].plant
	s.plants[idx].plant = plant
	onRollback(ctx, func() {
		if i := s.plantIndex(prev.ID); i >= 0 {
			s.plants[i].plant = prev
		}
	})
	return nil
}

func (s *Store) DeletePlant(ctx context.Context, plantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.plantIndex(plantID)
	if idx < 0 {
		return domain.NotFound("plant", plantID)
	}
	removed := s.plants[idx]
	s.plants = slices.Delete(s.plants, idx, idx+1)

	var events []storedEvent
	s.events = slices.DeleteFunc(s.events, func(e storedEvent) bool {
		if e.event.PlantID == plantID {
			events = append(events, e)
			return true
		}
		return false
	})
	reminders := s.takeReminders(func(r domain.Reminder) bool { return r.PlantID == plantID })

	onRollback(ctx, func() {
		// Back into its insertion-order slot.
		at, _ := slices.BinarySearchFunc(s.plants, removed.seq, func(p storedPlant, seq uint64) int {
			return cmp.Compare(p.seq, seq)
		})
		s.plants = slices.Insert(s.plants, at, removed)
		s.events = append(s.events, events...)
		s.reminders = append(s.reminders, reminders...)
	})
	return nil
}

// ListPlants returns plants in insertion order, optionally narrowed to one location.
func (s *Store) ListPlants(_ context.Context, location domain.Location) ([]domain.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Plant, 0, len(s.plants))
	for _, p := range s.plants {
		if location != "" && p.plant.Location != location {
			continue
		}
		out = append(out, p.plant)
	}
	return out, nil
}

func (s *Store) AppendCareEvent(ctx context.Context, event domain.CareEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plantIndex(event.PlantID) < 0 {
		return domain.NotFound("plant", event.PlantID)
	}
	s.seq++
	s.events = append(s.events, storedEvent{seq: s.seq, event: event})
	id := event.ID
	onRollback(ctx, func() {
		s.events = slices.DeleteFunc(s.events, func(e storedEvent) bool { return e.event.ID == id })
	})
	return nil
}

func (s *Store) MaxEventTimestamp(_ context.Context, plantID string, eventType domain.EventType) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest time.Time
		found  bool
	)
	for _, e := range s.events {
		if e.event.PlantID != plantID || e.event.Type != eventType {
			continue
		}
		if !found || e.event.OccurredAt.After(latest) {
			latest = e.event.OccurredAt
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) ListCareEvents(_ context.Context, plantID string) ([]domain.CareEvent, error) {
	s.mu.RLock()
	matched := make([]storedEvent, 0)
	for _, e := range s.events {
		if e.event.PlantID == plantID {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b storedEvent) int {
		if c := a.event.OccurredAt.Compare(b.event.OccurredAt); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})
	out := make([]domain.CareEvent, len(matched))
	for i, e := range matched {
		out[i] = e.event
	}
	return out, nil
}

func (s *Store) InsertReminder(ctx context.Context, reminder domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plantIndex(reminder.PlantID) < 0 {
		return domain.NotFound("plant", reminder.PlantID)
	}
	if !reminder.Completed {
		for _, r := range s.reminders {
			if r.PlantID == reminder.PlantID && r.CareType == reminder.CareType && !r.Completed {
				return fmt.Errorf("open %s reminder for plant %s: %w", reminder.CareType, reminder.PlantID, domain.ErrConflict)
			}
		}
	}
	if reminder.ID == "" {
		reminder.ID = s.NewID()
	}
	s.reminders = append(s.reminders, reminder)
	id := reminder.ID
	onRollback(ctx, func() {
		s.reminders = slices.DeleteFunc(s.reminders, func(r domain.Reminder) bool { return r.ID == id })
	})
	return nil
}

func (s *Store) DeleteReminders(ctx context.Context, plantID string, careType domain.CareType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.takeReminders(func(r domain.Reminder) bool {
		return r.PlantID == plantID && r.CareType == careType && !r.Completed
	})
	if len(removed) > 0 {
		onRollback(ctx, func() { s.reminders = append(s.reminders, removed...) })
	}
	return nil
}

// takeReminders removes and returns the reminders matching del.
func (s *Store) takeReminders(del func(domain.Reminder) bool) []domain.Reminder {
	var removed []domain.Reminder
	s.reminders = slices.DeleteFunc(s.reminders, func(r domain.Reminder) bool {
		if del(r) {
			removed = append(removed, r)
			return true
		}
		return false
	})
	return removed
}

// ListIncompleteReminders returns open reminders ordered by due date.
func (s *Store) ListIncompleteReminders(_ context.Context, plantID string) ([]domain.Reminder, error) {
	s.mu.RLock()
	out := make([]domain.Reminder, 0, 2)
	for _, r := range s.reminders {
		if r.PlantID == plantID && !r.Completed {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Reminder) int { return a.DueDate.Compare(b.DueDate) })
	return out, nil
}

func (s *Store) plantIndex(plantID string) int {
	return slices.IndexFunc(s.plants, func(p storedPlant) bool { return p.plant.ID == plantID })
}
