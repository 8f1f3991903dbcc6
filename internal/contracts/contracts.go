package contracts

import "time"

// CareEventMessage is published by plant-api after a ledger append and
// consumed by care-audit.
type CareEventMessage struct {
	EventID    string    `json:"event_id"`
	PlantID    string    `json:"plant_id"`
	EventType  string    `json:"event_type"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	// NextDue is the new reminder due date (YYYY-MM-DD), empty when the
	// reminder could not be rescheduled.
	NextDue string `json:"next_due,omitempty"`
	ShardID int    `json:"shard_id"`
}
