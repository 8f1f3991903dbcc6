package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantbuddy/project/internal/app/ledger"
	"github.com/plantbuddy/project/internal/domain"
	"github.com/plantbuddy/project/internal/store/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(days int) { c.now = c.now.AddDate(0, 0, days) }

func day(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

func setup(t *testing.T) (*ledger.Service, *memory.Store, *clock, domain.Plant) {
	t.Helper()
	store := memory.New()
	c := &clock{now: time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)}
	svc := ledger.NewService(store)
	svc.Now = c.Now

	plant := domain.Plant{
		Name:                     "Monstera",
		Location:                 domain.LocationLivingRoom,
		LightNeeds:               domain.LightIndirect,
		DateAcquired:             day(2024, time.February, 20),
		WateringFrequencyDays:    7,
		FertilizingFrequencyDays: 30,
	}
	id, err := store.InsertPlant(context.Background(), plant)
	require.NoError(t, err)
	plant.ID = id
	return svc, store, c, plant
}

func TestRecordEventUnknownPlant(t *testing.T) {
	svc, store, _, _ := setup(t)

	_, err := svc.RecordEvent(context.Background(), "missing", domain.EventWatering, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := store.ListCareEvents(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecordEventRejectsUnknownType(t *testing.T) {
	svc, _, _, plant := setup(t)

	_, err := svc.RecordEvent(context.Background(), plant.ID, domain.EventType("Pruning"), "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "event_type", verr.Errors[0].Field)
}

func TestLastEventOfTypeAbsent(t *testing.T) {
	svc, _, _, plant := setup(t)

	_, ok, err := svc.LastEventOfType(context.Background(), plant.ID, domain.EventWatering)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.LastEventOfType(context.Background(), "missing", domain.EventWatering)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLastCareDateFollowsLatestLedgerState(t *testing.T) {
	ctx := context.Background()
	svc, _, c, plant := setup(t)

	got, err := svc.LastCareDate(ctx, plant, domain.CareWatering)
	require.NoError(t, err)
	assert.Equal(t, plant.DateAcquired, got, "falls back to acquisition date")

	_, err = svc.RecordEvent(ctx, plant.ID, domain.EventWatering, "")
	require.NoError(t, err)
	got, err = svc.LastCareDate(ctx, plant, domain.CareWatering)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 1), got)

	// A later event must show up on the very next read of the same plant value.
	c.advance(4)
	_, err = svc.RecordEvent(ctx, plant.ID, domain.EventWatering, "")
	require.NoError(t, err)
	got, err = svc.LastCareDate(ctx, plant, domain.CareWatering)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 5), got)

	got, err = svc.LastCareDate(ctx, plant, domain.CareFertilizing)
	require.NoError(t, err)
	assert.Equal(t, plant.DateAcquired, got, "watering does not move fertilizing")
}

func TestLastEventDateUsesClockLocation(t *testing.T) {
	ctx := context.Background()
	svc, _, c, plant := setup(t)
	tokyo := time.FixedZone("JST", 9*60*60)
	c.now = time.Date(2024, time.March, 1, 20, 0, 0, 0, time.UTC).In(tokyo)

	_, err := svc.RecordEvent(ctx, plant.ID, domain.EventFertilizing, "")
	require.NoError(t, err)

	got, ok, err := svc.LastEventOfType(ctx, plant.ID, domain.EventFertilizing)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2024, time.March, 2), got)
	assert.Equal(t, day(2024, time.March, 2), svc.Today())
}

func TestHistoryOrderedWithTiesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, c, plant := setup(t)

	first, err := svc.RecordEvent(ctx, plant.ID, domain.EventInitialSetup, "Plant added to system")
	require.NoError(t, err)
	second, err := svc.RecordEvent(ctx, plant.ID, domain.EventWatering, "  same instant  ")
	require.NoError(t, err)
	c.advance(1)
	third, err := svc.RecordEvent(ctx, plant.ID, domain.EventFertilizing, "")
	require.NoError(t, err)

	events, err := svc.History(ctx, plant.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{events[0].ID, events[1].ID, events[2].ID})
	assert.Equal(t, "same instant", events[1].Note)
}

type failingRepo struct {
	*memory.Store
	appendErr error
	maxErr    error
}

func (f *failingRepo) AppendCareEvent(ctx context.Context, event domain.CareEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Store.AppendCareEvent(ctx, event)
}

func (f *failingRepo) MaxEventTimestamp(ctx context.Context, plantID string, eventType domain.EventType) (time.Time, bool, error) {
	if f.maxErr != nil {
		return time.Time{}, false, f.maxErr
	}
	return f.Store.MaxEventTimestamp(ctx, plantID, eventType)
}

func TestPersistenceFailuresCarryContext(t *testing.T) {
	ctx := context.Background()
	_, store, _, plant := setup(t)
	boom := errors.New("connection reset")
	svc := ledger.NewService(&failingRepo{Store: store, appendErr: boom, maxErr: boom})

	_, err := svc.RecordEvent(ctx, plant.ID, domain.EventWatering, "")
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append care event", perr.Op)
	assert.Equal(t, plant.ID, perr.PlantID)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, boom)

	_, err = svc.LastCareDate(ctx, plant, domain.CareWatering)
	require.ErrorIs(t, err, domain.ErrPersistence)
}
