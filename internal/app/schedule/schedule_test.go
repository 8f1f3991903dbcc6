package schedule

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantbuddy/project/internal/domain"
)

var day0 = civil.Date{Year: 2026, Month: 2, Day: 24}

func TestNextDueDate_AddsFrequency(t *testing.T) {
	for _, f := range []int{1, 2, 7, 30, 365} {
		got, err := NextDueDate(f, day0)
		require.NoError(t, err)
		assert.Equal(t, day0.AddDays(f), got)

		days, err := DaysUntilDue(f, day0, got)
		require.NoError(t, err)
		assert.Zero(t, days, "frequency %d", f)
	}
}

func TestNextDueDate_CrossesMonthAndLeapDay(t *testing.T) {
	got, err := NextDueDate(7, civil.Date{Year: 2028, Month: 2, Day: 25})
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2028, Month: 3, Day: 3}, got)
}

func TestDaysUntilDue_NegativeWhenOverdue(t *testing.T) {
	days, err := DaysUntilDue(7, day0, day0.AddDays(10))
	require.NoError(t, err)
	assert.Equal(t, -3, days)
}

func TestProgressFraction_MonotonicAndClamped(t *testing.T) {
	for _, f := range []int{1, 3, 7, 30} {
		prev := -1.0
		for offset := -5; offset <= f+5; offset++ {
			p, err := ProgressFraction(f, day0, day0.AddDays(offset))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p, prev, "f=%d offset=%d", f, offset)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			switch {
			case offset <= 0:
				assert.Equal(t, 0.0, p)
			case offset >= f:
				assert.Equal(t, 1.0, p)
			}
			prev = p
		}
	}
}

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		wantDays int
		wantProg float64
	}{
		{name: "acquired today", offset: 0, wantDays: 7, wantProg: 0},
		{name: "due today", offset: 7, wantDays: 0, wantProg: 1},
		{name: "three days overdue", offset: 10, wantDays: -3, wantProg: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := Compute(7, day0, day0.AddDays(tt.offset))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, st.DaysUntilDue)
			assert.InDelta(t, tt.wantProg, st.Progress, 1e-9)
			assert.Equal(t, day0.AddDays(7), st.NextDue)
			assert.Equal(t, day0, st.LastEvent)
		})
	}
}

func TestAbsentLastEventIsInvalidState(t *testing.T) {
	_, err := DaysUntilDue(7, civil.Date{}, day0)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = NextDueDate(7, civil.Date{})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = Compute(7, civil.Date{}, day0)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNonPositiveFrequencyIsInvalidState(t *testing.T) {
	_, err := ProgressFraction(0, day0, day0)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestDaysBetween_Signed(t *testing.T) {
	assert.Equal(t, 3, DaysBetween(day0, day0.AddDays(3)))
	assert.Equal(t, -3, DaysBetween(day0.AddDays(3), day0))
}
