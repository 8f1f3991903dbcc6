package domain

import (
	"strings"

	"cloud.google.com/go/civil"
)

const (
	DefaultWateringFrequencyDays    = 7
	DefaultFertilizingFrequencyDays = 30
)

// Location is where a plant is kept.
type Location string

const (
	LocationLivingRoom Location = "Living Room"
	LocationBalcony    Location = "Balcony"
	LocationVeranda    Location = "Veranda"
	LocationKitchen    Location = "Kitchen"
)

// Locations lists the accepted locations in display order.
var Locations = []Location{LocationLivingRoom, LocationBalcony, LocationVeranda, LocationKitchen}

func (l Location) Valid() bool {
	for _, v := range Locations {
		if v == l {
			return true
		}
	}
	return false
}

// LightNeeds is the light exposure a plant wants.
type LightNeeds string

const (
	LightDirect   LightNeeds = "Light Direct"
	LightIndirect LightNeeds = "Light Indirect"
	DarkDirect    LightNeeds = "Dark Direct"
	DarkIndirect  LightNeeds = "Dark Indirect"
)

// LightLevels lists the accepted light needs in display order.
var LightLevels = []LightNeeds{LightDirect, LightIndirect, DarkDirect, DarkIndirect}

func (l LightNeeds) Valid() bool {
	for _, v := range LightLevels {
		if v == l {
			return true
		}
	}
	return false
}

// Plant is the aggregate root. Last-watered and last-fertilized dates are
// never stored on it; they are derived from the care ledger on every read.
type Plant struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Species                  string     `json:"species,omitempty"`
	Location                 Location   `json:"location"`
	LightNeeds               LightNeeds `json:"light_needs"`
	DateAcquired             civil.Date `json:"date_acquired"`
	WateringFrequencyDays    int        `json:"watering_frequency_days"`
	FertilizingFrequencyDays int        `json:"fertilizing_frequency_days"`
	Notes                    string     `json:"notes,omitempty"`
	ImagePath                string     `json:"image_path,omitempty"`
}

// FrequencyDays returns the configured interval for a care type.
func (p Plant) FrequencyDays(careType CareType) int {
	if careType == CareFertilizing {
		return p.FertilizingFrequencyDays
	}
	return p.WateringFrequencyDays
}

// Normalize trims free-form text fields in place.
func (p *Plant) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Species = strings.TrimSpace(p.Species)
	p.Notes = strings.TrimSpace(p.Notes)
	p.ImagePath = strings.TrimSpace(p.ImagePath)
}

// Validate checks every field and reports all problems at once.
func (p Plant) Validate() error {
	var errs []FieldError
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	}
	if !p.Location.Valid() {
		errs = append(errs, FieldError{Field: "location", Message: "please select a location"})
	}
	if !p.LightNeeds.Valid() {
		errs = append(errs, FieldError{Field: "light_needs", Message: "please select light needs"})
	}
	if p.DateAcquired == (civil.Date{}) {
		errs = append(errs, FieldError{Field: "date_acquired", Message: "please select an acquisition date"})
	} else if !p.DateAcquired.IsValid() {
		errs = append(errs, FieldError{Field: "date_acquired", Message: "not a calendar date"})
	}
	if p.WateringFrequencyDays < 1 {
		errs = append(errs, FieldError{Field: "watering_frequency_days", Message: "must be at least 1"})
	}
	if p.FertilizingFrequencyDays < 1 {
		errs = append(errs, FieldError{Field: "fertilizing_frequency_days", Message: "must be at least 1"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
