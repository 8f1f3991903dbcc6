// Package schedule derives care due dates and status from a frequency and the
// date of the last matching care event. Every function is pure; dates are
// naive calendar dates and all arithmetic is in whole days.
package schedule

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/plantbuddy/project/internal/domain"
)

// Status is the derived care status for one care type.
type Status struct {
	LastEvent    civil.Date `json:"last_event"`
	NextDue      civil.Date `json:"next_due"`
	DaysUntilDue int        `json:"days_until_due"`
	Progress     float64    `json:"progress"`
}

// DaysBetween is the signed number of calendar days from start to end.
func DaysBetween(start, end civil.Date) int {
	return end.DaysSince(start)
}

// NextDueDate returns lastEvent + frequencyDays.
func NextDueDate(frequencyDays int, lastEvent civil.Date) (civil.Date, error) {
	if err := check(frequencyDays, lastEvent); err != nil {
		return civil.Date{}, err
	}
	return lastEvent.AddDays(frequencyDays), nil
}

// DaysUntilDue returns frequencyDays minus the days elapsed since lastEvent.
// Negative results mean the care is overdue and are returned unclamped.
func DaysUntilDue(frequencyDays int, lastEvent, today civil.Date) (int, error) {
	if err := check(frequencyDays, lastEvent); err != nil {
		return 0, err
	}
	return frequencyDays - DaysBetween(lastEvent, today), nil
}

// ProgressFraction is the elapsed share of the interval, clamped to [0, 1].
func ProgressFraction(frequencyDays int, lastEvent, today civil.Date) (float64, error) {
	days, err := DaysUntilDue(frequencyDays, lastEvent, today)
	if err != nil {
		return 0, err
	}
	return clamp(1 - float64(days)/float64(frequencyDays)), nil
}

// Compute returns the full status for one care type in a single call.
func Compute(frequencyDays int, lastEvent, today civil.Date) (Status, error) {
	next, err := NextDueDate(frequencyDays, lastEvent)
	if err != nil {
		return Status{}, err
	}
	days, err := DaysUntilDue(frequencyDays, lastEvent, today)
	if err != nil {
		return Status{}, err
	}
	progress, err := ProgressFraction(frequencyDays, lastEvent, today)
	if err != nil {
		return Status{}, err
	}
	return Status{
		LastEvent:    lastEvent,
		NextDue:      next,
		DaysUntilDue: days,
		Progress:     progress,
	}, nil
}

func check(frequencyDays int, lastEvent civil.Date) error {
	if lastEvent == (civil.Date{}) {
		return fmt.Errorf("%w: last event date is absent", domain.ErrInvalidState)
	}
	if frequencyDays < 1 {
		return fmt.Errorf("%w: frequency must be positive, got %d", domain.ErrInvalidState, frequencyDays)
	}
	return nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
