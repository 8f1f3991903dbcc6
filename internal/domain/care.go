package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// EventType classifies a care ledger entry.
type EventType string

const (
	EventWatering     EventType = "Watering"
	EventFertilizing  EventType = "Fertilizing"
	EventInitialSetup EventType = "InitialSetup"
)

func (t EventType) Valid() bool {
	switch t {
	case EventWatering, EventFertilizing, EventInitialSetup:
		return true
	default:
		return false
	}
}

// CareType is a recurring care obligation tracked by reminders.
type CareType string

const (
	CareWatering    CareType = "Watering"
	CareFertilizing CareType = "Fertilizing"
)

// CareTypes lists every tracked care type.
var CareTypes = []CareType{CareWatering, CareFertilizing}

func (c CareType) Valid() bool {
	return c == CareWatering || c == CareFertilizing
}

// EventType returns the ledger event recorded when this care is performed.
func (c CareType) EventType() EventType {
	return EventType(c)
}

// CareEvent is an immutable ledger entry.
type CareEvent struct {
	ID         string    `json:"id"`
	PlantID    string    `json:"plant_id"`
	Type       EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       string    `json:"note,omitempty"`
}

// Reminder is one outstanding obligation for a (plant, care type) pair.
type Reminder struct {
	ID        string     `json:"id"`
	PlantID   string     `json:"plant_id"`
	CareType  CareType   `json:"care_type"`
	DueDate   civil.Date `json:"due_date"`
	Completed bool       `json:"completed"`
}
