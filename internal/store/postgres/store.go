package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/nats-io/nuid"

	"github.com/plantbuddy/project/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var plantColumns = []string{
	"id", "name", "species", "location", "light_needs", "date_acquired",
	"watering_frequency_days", "fertilizing_frequency_days", "notes", "image_path",
}

type Store struct {
	DB    DB
	NewID func() string
}

func New(db DB) *Store {
	return &Store{DB: db, NewID: nuid.Next}
}

type plantRow struct {
	ID                       string    `db:"id"`
	Name                     string    `db:"name"`
	Species                  string    `db:"species"`
	Location                 string    `db:"location"`
	LightNeeds               string    `db:"light_needs"`
	DateAcquired             time.Time `db:"date_acquired"`
	WateringFrequencyDays    int       `db:"watering_frequency_days"`
	FertilizingFrequencyDays int       `db:"fertilizing_frequency_days"`
	Notes                    string    `db:"notes"`
	ImagePath                string    `db:"image_path"`
}

func (r plantRow) toDomain() domain.Plant {
	return domain.Plant{
		ID:                       r.ID,
		Name:                     r.Name,
		Species:                  r.Species,
		Location:                 domain.Location(r.Location),
		LightNeeds:               domain.LightNeeds(r.LightNeeds),
		DateAcquired:             civil.DateOf(r.DateAcquired),
		WateringFrequencyDays:    r.WateringFrequencyDays,
		FertilizingFrequencyDays: r.FertilizingFrequencyDays,
		Notes:                    r.Notes,
		ImagePath:                r.ImagePath,
	}
}

type eventRow struct {
	ID         string    `db:"id"`
	PlantID    string    `db:"plant_id"`
	EventType  string    `db:"event_type"`
	OccurredAt time.Time `db:"occurred_at"`
	Note       string    `db:"note"`
}

type reminderRow struct {
	ID          string    `db:"id"`
	PlantID     string    `db:"plant_id"`
	CareType    string    `db:"care_type"`
	DueDate     time.Time `db:"due_date"`
	IsCompleted bool      `db:"is_completed"`
}

// dbDate is the value bound to DATE columns.
func dbDate(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func (s *Store) InsertPlant(ctx context.Context, plant domain.Plant) (string, error) {
	id := s.NewID()
	_, err := s.querier(ctx).Exec(ctx,
		`INSERT INTO plants (id, name, species, location, light_needs, date_acquired,
		                     watering_frequency_days, fertilizing_frequency_days, notes, image_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, plant.Name, plant.Species, string(plant.Location), string(plant.LightNeeds), dbDate(plant.DateAcquired),
		plant.WateringFrequencyDays, plant.FertilizingFrequencyDays, plant.Notes, plant.ImagePath,
	)
	if err != nil {
		return "", mapError(err, "plant", id)
	}
	return id, nil
}

func (s *Store) GetPlant(ctx context.Context, plantID string) (domain.Plant, error) {
	var r plantRow
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT id, name, species, location, light_needs, date_acquired,
		        watering_frequency_days, fertilizing_frequency_days, notes, image_path
		 FROM plants
		 WHERE id = $1`,
		plantID,
	).Scan(
		&r.ID,
		&r.Name,
		&r.Species,
		&r.Location,
		&r.LightNeeds,
		&r.DateAcquired,
		&r.WateringFrequencyDays,
		&r.FertilizingFrequencyDays,
		&r.Notes,
		&r.ImagePath,
	)
	if err != nil {
		return domain.Plant{}, mapError(err, "plant", plantID)
	}
	return r.toDomain(), nil
}

func (s *Store) UpdatePlant(ctx context.Context, plant domain.Plant) error {
	query, args, err := psql.Update("plants").
		SetMap(map[string]any{
			"name":                       plant.Name,
			"species":                    plant.Species,
			"location":                   string(plant.Location),
			"light_needs":                string(plant.LightNeeds),
			"date_acquired":              dbDate(plant.DateAcquired),
			"watering_frequency_days":    plant.WateringFrequencyDays,
			"fertilizing_frequency_days": plant.FertilizingFrequencyDays,
			"notes":                      plant.Notes,
			"image_path":                 plant.ImagePath,
		}).
		Where(sq.Eq{"id": plant.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update plant: %w", err)
	}
	tag, err := s.querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, "plant", plant.ID)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("plant", plant.ID)
	}
	return nil
}

// DeletePlant removes the plant; its events and reminders go with it through
// ON DELETE CASCADE.
func (s *Store) DeletePlant(ctx context.Context, plantID string) error {
	tag, err := s.querier(ctx).Exec(ctx, `DELETE FROM plants WHERE id = $1`, plantID)
	if err != nil {
		return mapError(err, "plant", plantID)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("plant", plantID)
	}
	return nil
}

// ListPlants returns plants in insertion order, optionally narrowed to one location.
func (s *Store) ListPlants(ctx context.Context, location domain.Location) ([]domain.Plant, error) {
	builder := psql.Select(plantColumns...).From("plants").OrderBy("seq")
	if location != "" {
		builder = builder.Where(sq.Eq{"location": string(location)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list plants: %w", err)
	}

	var rows []plantRow
	if err := pgxscan.Select(ctx, s.querier(ctx), &rows, query, args...); err != nil {
		return nil, mapError(err, "plants", string(location))
	}
	plants := make([]domain.Plant, len(rows))
	for i, r := range rows {
		plants[i] = r.toDomain()
	}
	return plants, nil
}

func (s *Store) AppendCareEvent(ctx context.Context, event domain.CareEvent) error {
	_, err := s.querier(ctx).Exec(ctx,
		`INSERT INTO care_events (id, plant_id, event_type, occurred_at, note)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.PlantID, string(event.Type), event.OccurredAt, event.Note,
	)
	return mapError(err, "care event", event.PlantID)
}

func (s *Store) MaxEventTimestamp(ctx context.Context, plantID string, eventType domain.EventType) (time.Time, bool, error) {
	var ts *time.Time
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT max(occurred_at) FROM care_events WHERE plant_id = $1 AND event_type = $2`,
		plantID, string(eventType),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, mapError(err, "care event", plantID)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

func (s *Store) ListCareEvents(ctx context.Context, plantID string) ([]domain.CareEvent, error) {
	var rows []eventRow
	err := pgxscan.Select(ctx, s.querier(ctx), &rows,
		`SELECT id, plant_id, event_type, occurred_at, note
		 FROM care_events
		 WHERE plant_id = $1
		 ORDER BY occurred_at, seq`,
		plantID,
	)
	if err != nil {
		return nil, mapError(err, "care events", plantID)
	}
	events := make([]domain.CareEvent, len(rows))
	for i, r := range rows {
		events[i] = domain.CareEvent{
			ID:         r.ID,
			PlantID:    r.PlantID,
			Type:       domain.EventType(r.EventType),
			OccurredAt: r.OccurredAt,
			Note:       r.Note,
		}
	}
	return events, nil
}

func (s *Store) InsertReminder(ctx context.Context, reminder domain.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = s.NewID()
	}
	_, err := s.querier(ctx).Exec(ctx,
		`INSERT INTO reminders (id, plant_id, care_type, due_date, is_completed)
		 VALUES ($1, $2, $3, $4, $5)`,
		reminder.ID, reminder.PlantID, string(reminder.CareType), dbDate(reminder.DueDate), reminder.Completed,
	)
	return mapError(err, "reminder", reminder.PlantID)
}

func (s *Store) DeleteReminders(ctx context.Context, plantID string, careType domain.CareType) error {
	_, err := s.querier(ctx).Exec(ctx,
		`DELETE FROM reminders WHERE plant_id = $1 AND care_type = $2 AND NOT is_completed`,
		plantID, string(careType),
	)
	return mapError(err, "reminder", plantID)
}

// ListIncompleteReminders returns open reminders ordered by due date.
func (s *Store) ListIncompleteReminders(ctx context.Context, plantID string) ([]domain.Reminder, error) {
	var rows []reminderRow
	err := pgxscan.Select(ctx, s.querier(ctx), &rows,
		`SELECT id, plant_id, care_type, due_date, is_completed
		 FROM reminders
		 WHERE plant_id = $1 AND NOT is_completed
		 ORDER BY due_date, care_type`,
		plantID,
	)
	if err != nil {
		return nil, mapError(err, "reminders", plantID)
	}
	reminders := make([]domain.Reminder, len(rows))
	for i, r := range rows {
		reminders[i] = domain.Reminder{
			ID:        r.ID,
			PlantID:   r.PlantID,
			CareType:  domain.CareType(r.CareType),
			DueDate:   civil.DateOf(r.DueDate),
			Completed: r.IsCompleted,
		}
	}
	return reminders, nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
