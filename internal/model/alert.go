package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const mapsLinkTemplate = "https://www.google.com/maps?q=%s,%s"

var (
	ErrInvalidAlertProfileID   = errors.New("invalid_alert_profile_id")
	ErrInvalidAlertCoordinates = errors.New("invalid_alert_coordinates")
	ErrInvalidAlertContacts    = errors.New("invalid_alert_contacts")
)

// AlertLog records one SOS alert raised by a profile.
type AlertLog struct {
	ID               string    `gorm:"primaryKey;size:36"`
	ProfileID        string    `gorm:"not null;size:36;index"`
	Latitude         float64   `gorm:"not null"`
	Longitude        float64   `gorm:"not null"`
	ContactsNotified int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index"`
}

// AlertLogInput holds the raw values used to construct an AlertLog.
type AlertLogInput struct {
	ProfileID        string
	Latitude         float64
	Longitude        float64
	ContactsNotified int
}

// NewAlertLog constructs an AlertLog with validated coordinates.
func NewAlertLog(input AlertLogInput) (AlertLog, error) {
	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return AlertLog{}, ErrInvalidAlertProfileID
	}
	if err := ValidateCoordinates(input.Latitude, input.Longitude); err != nil {
		return AlertLog{}, err
	}
	if input.ContactsNotified < 0 {
		return AlertLog{}, fmt.Errorf("%w: negative count", ErrInvalidAlertContacts)
	}
	return AlertLog{
		ID:               uuid.NewString(),
		ProfileID:        profileID,
		Latitude:         input.Latitude,
		Longitude:        input.Longitude,
		ContactsNotified: input.ContactsNotified,
	}, nil
}

// ValidateCoordinates checks that a latitude/longitude pair lies on the globe.
func ValidateCoordinates(latitude float64, longitude float64) error {
	if math.IsNaN(latitude) || math.IsNaN(longitude) {
		return fmt.Errorf("%w: not a number", ErrInvalidAlertCoordinates)
	}
	if latitude < -90 || latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidAlertCoordinates, latitude)
	}
	if longitude < -180 || longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidAlertCoordinates, longitude)
	}
	return nil
}

// MapsLink returns the Google Maps URL for a coordinate pair.
func MapsLink(latitude float64, longitude float64) string {
	return fmt.Sprintf(mapsLinkTemplate, formatCoordinate(latitude), formatCoordinate(longitude))
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// MapsLink returns the Google Maps URL for the alert's coordinates.
func (alert AlertLog) MapsLink() string {
	return MapsLink(alert.Latitude, alert.Longitude)
}
