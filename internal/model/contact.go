package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContactCategory classifies who an emergency contact is.
type ContactCategory string

const (
	CategorySecurity       ContactCategory = "security"
	CategoryColleague      ContactCategory = "colleague"
	CategorySuperintendent ContactCategory = "superintendent"
	CategoryFamily         ContactCategory = "family"

	// MaxEmergencyContacts caps how many contacts a single profile may register.
	MaxEmergencyContacts = 4

	contactNameMaxLength  = 200
	contactPhoneMaxLength = 40
)

var (
	ErrInvalidContactProfileID = errors.New("invalid_contact_profile_id")
	ErrInvalidContactName      = errors.New("invalid_contact_name")
	ErrInvalidContactPhone     = errors.New("invalid_contact_phone")
	ErrInvalidContactCategory  = errors.New("invalid_contact_category")
)

// CategoryOption pairs a category with its display label.
type CategoryOption struct {
	Value ContactCategory
	Label string
}

var contactCategories = []CategoryOption{
	{Value: CategorySecurity, Label: "Hospital Security"},
	{Value: CategoryColleague, Label: "Colleague"},
	{Value: CategorySuperintendent, Label: "Superintendent / Duty Officer"},
	{Value: CategoryFamily, Label: "Family Member"},
}

// ContactCategories lists the supported categories in display order.
func ContactCategories() []CategoryOption {
	options := make([]CategoryOption, len(contactCategories))
	copy(options, contactCategories)
	return options
}

// Label returns the display label, using the first category's label for unknown values.
func (category ContactCategory) Label() string {
	for _, option := range contactCategories {
		if option.Value == category {
			return option.Label
		}
	}
	return contactCategories[0].Label
}

// ParseContactCategory validates a category value; empty input selects the default category.
func ParseContactCategory(rawCategory string) (ContactCategory, error) {
	normalized := ContactCategory(strings.ToLower(strings.TrimSpace(rawCategory)))
	if normalized == "" {
		return contactCategories[0].Value, nil
	}
	for _, option := range contactCategories {
		if option.Value == normalized {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidContactCategory, rawCategory)
}

// EmergencyContact is a person notified when the owning profile raises an SOS alert.
type EmergencyContact struct {
	ID        string          `gorm:"primaryKey;size:36"`
	ProfileID string          `gorm:"not null;size:36;index"`
	Name      string          `gorm:"not null;size:200"`
	Phone     string          `gorm:"not null;size:40"`
	Category  ContactCategory `gorm:"not null;size:32"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

// EmergencyContactInput holds the raw values used to construct or edit a contact.
type EmergencyContactInput struct {
	ProfileID string
	Name      string
	Phone     string
	Category  string
}

// NewEmergencyContact constructs an EmergencyContact with validated, trimmed fields.
func NewEmergencyContact(input EmergencyContactInput) (EmergencyContact, error) {
	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return EmergencyContact{}, ErrInvalidContactProfileID
	}
	fields, fieldsErr := NormalizeContactFields(input)
	if fieldsErr != nil {
		return EmergencyContact{}, fieldsErr
	}
	return EmergencyContact{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Name:      fields.Name,
		Phone:     fields.Phone,
		Category:  fields.Category,
	}, nil
}

// NormalizeContactFields validates the editable contact fields without touching ownership.
func NormalizeContactFields(input EmergencyContactInput) (EmergencyContact, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > contactNameMaxLength {
		return EmergencyContact{}, fmt.Errorf("%w: empty or too long", ErrInvalidContactName)
	}
	phone := strings.TrimSpace(input.Phone)
	if phone == "" || len(phone) > contactPhoneMaxLength {
		return EmergencyContact{}, fmt.Errorf("%w: empty or too long", ErrInvalidContactPhone)
	}
	category, categoryErr := ParseContactCategory(input.Category)
	if categoryErr != nil {
		return EmergencyContact{}, categoryErr
	}
	return EmergencyContact{Name: name, Phone: phone, Category: category}, nil
}
