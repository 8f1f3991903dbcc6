package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantbuddy/project/internal/app/ledger"
	"github.com/plantbuddy/project/internal/app/reminder"
	"github.com/plantbuddy/project/internal/domain"
	"github.com/plantbuddy/project/internal/store/memory"
)

func day(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

type flakyStore struct {
	*memory.Store
	insertErr error
}

func (f *flakyStore) InsertReminder(ctx context.Context, r domain.Reminder) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.InsertReminder(ctx, r)
}

type fixture struct {
	store  *flakyStore
	ledger *ledger.Service
	svc    *reminder.Service
	now    time.Time
	plant  domain.Plant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &flakyStore{Store: memory.New()},
		now:   time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC),
	}
	f.ledger = ledger.NewService(f.store)
	f.ledger.Now = func() time.Time { return f.now }
	f.svc = reminder.NewService(f.store, f.store, f.ledger)

	f.plant = domain.Plant{
		Name:                     "Fern",
		Location:                 domain.LocationKitchen,
		LightNeeds:               domain.DarkIndirect,
		DateAcquired:             day(2024, time.May, 1),
		WateringFrequencyDays:    3,
		FertilizingFrequencyDays: 14,
	}
	id, err := f.store.InsertPlant(context.Background(), f.plant)
	require.NoError(t, err)
	f.plant.ID = id
	return f
}

func (f *fixture) outstanding(t *testing.T) map[domain.CareType][]domain.Reminder {
	t.Helper()
	list, err := f.svc.ListOutstanding(context.Background(), f.plant.ID)
	require.NoError(t, err)
	out := map[domain.CareType][]domain.Reminder{}
	for _, r := range list {
		out[r.CareType] = append(out[r.CareType], r)
	}
	return out
}

func TestCreateInitialReminders(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateInitialReminders(context.Background(), f.plant)
	require.NoError(t, err)
	require.Len(t, created, 2)

	list, err := f.svc.ListOutstanding(context.Background(), f.plant.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.CareWatering, list[0].CareType)
	assert.Equal(t, day(2024, time.May, 4), list[0].DueDate)
	assert.Equal(t, domain.CareFertilizing, list[1].CareType)
	assert.Equal(t, day(2024, time.May, 15), list[1].DueDate)
}

func TestCreateInitialRemindersTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)
	_, err = f.svc.CreateInitialReminders(ctx, f.plant)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRecordCareAndRescheduleKeepsOneOpenReminderPerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)

	sequence := []domain.CareType{
		domain.CareWatering, domain.CareWatering, domain.CareFertilizing,
		domain.CareWatering, domain.CareFertilizing, domain.CareFertilizing,
	}
	for i, careType := range sequence {
		f.now = f.now.AddDate(0, 0, 1)
		out, err := f.svc.RecordCareAndReschedule(ctx, f.plant.ID, careType)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, civil.DateOf(f.now).AddDays(f.plant.FrequencyDays(careType)), out.Reminder.DueDate)
		assert.Equal(t, careType.EventType(), out.Event.Type)

		open := f.outstanding(t)
		assert.Len(t, open[domain.CareWatering], 1, "step %d", i)
		assert.Len(t, open[domain.CareFertilizing], 1, "step %d", i)
	}
}

func TestRecordCareReadsClockOnceAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)

	beforeMidnight := time.Date(2024, time.June, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	calls := 0
	f.ledger.Now = func() time.Time {
		calls++
		if calls == 1 {
			return beforeMidnight
		}
		return time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC)
	}

	out, err := f.svc.RecordCareAndReschedule(ctx, f.plant.ID, domain.CareWatering)
	require.NoError(t, err)
	assert.Equal(t, beforeMidnight, out.Event.OccurredAt)
	assert.Equal(t, "Plant watered on 2024-06-10", out.Event.Note)
	assert.Equal(t, day(2024, time.June, 13), out.Reminder.DueDate)

	last, err := f.ledger.LastCareDate(ctx, f.plant, domain.CareWatering)
	require.NoError(t, err)
	assert.Equal(t, out.Reminder.DueDate, last.AddDays(f.plant.WateringFrequencyDays))
}

func TestRecordCareWritesDatedNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)

	out, err := f.svc.RecordCareAndReschedule(ctx, f.plant.ID, domain.CareFertilizing)
	require.NoError(t, err)
	assert.Equal(t, "Plant fertilized on 2024-05-10", out.Event.Note)
	assert.Equal(t, "Plant watered on 2024-05-10", reminder.CareNote(domain.CareWatering, day(2024, time.May, 10)))
}

func TestRecordCareUnknownPlantMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordCareAndReschedule(ctx, "nope", domain.CareWatering)
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := f.store.ListCareEvents(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
	reminders, err := f.store.ListIncompleteReminders(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, reminders)

	_, err = f.svc.ListOutstanding(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordCareRejectsUnknownCareType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordCareAndReschedule(context.Background(), f.plant.ID, domain.CareType("Misting"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestFailedReplacementLeavesEventAndOldReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)

	boom := errors.New("disk full")
	f.store.insertErr = boom
	out, err := f.svc.RecordCareAndReschedule(ctx, f.plant.ID, domain.CareWatering)

	var stale *reminder.StaleReminderError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, f.plant.ID, stale.PlantID)
	assert.Equal(t, domain.CareWatering, stale.CareType)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, out.Event.ID)

	last, ok, err := f.ledger.LastEventOfType(ctx, f.plant.ID, domain.EventWatering)
	require.NoError(t, err)
	require.True(t, ok, "the ledger keeps the event")
	assert.Equal(t, day(2024, time.May, 10), last)

	open := f.outstanding(t)
	require.Len(t, open[domain.CareWatering], 1, "delete is rolled back with the failed insert")
	assert.Equal(t, day(2024, time.May, 4), open[domain.CareWatering][0].DueDate)

	f.store.insertErr = nil
	fixed, err := f.svc.Reschedule(ctx, stale.PlantID, stale.CareType)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.May, 13), fixed.DueDate)
	open = f.outstanding(t)
	require.Len(t, open[domain.CareWatering], 1)
	assert.Equal(t, fixed.ID, open[domain.CareWatering][0].ID)
}

func TestRescheduleFromAcquisitionDateWithoutHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateInitialReminders(ctx, f.plant)
	require.NoError(t, err)

	f.plant.FertilizingFrequencyDays = 20
	require.NoError(t, f.store.UpdatePlant(ctx, f.plant))

	r, err := f.svc.Reschedule(ctx, f.plant.ID, domain.CareFertilizing)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.May, 21), r.DueDate)
}

func TestListOutstandingTiesByCareTypeName(t *testing.T) {
	f := newFixture(t)
	f.plant.WateringFrequencyDays = 14
	require.NoError(t, f.store.UpdatePlant(context.Background(), f.plant))

	_, err := f.svc.CreateInitialReminders(context.Background(), f.plant)
	require.NoError(t, err)

	list, err := f.svc.ListOutstanding(context.Background(), f.plant.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, list[0].DueDate, list[1].DueDate)
	assert.Equal(t, domain.CareFertilizing, list[0].CareType)
	assert.Equal(t, domain.CareWatering, list[1].CareType)
}

func TestInitialRemindersNeedAcquisitionDate(t *testing.T) {
	f := newFixture(t)
	f.plant.DateAcquired = civil.Date{}

	_, err := f.svc.CreateInitialReminders(context.Background(), f.plant)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}
