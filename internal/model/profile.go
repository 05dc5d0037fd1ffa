package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProfileRole enumerates the access levels of an account.
type ProfileRole string

// ProfileStatus enumerates the approval states of an account.
type ProfileStatus string

const (
	// RoleUser grants access to the personal safety views.
	RoleUser ProfileRole = "user"
	// RoleAdmin grants access to the account approval dashboard.
	RoleAdmin ProfileRole = "admin"

	// StatusPending marks an account awaiting an administrator decision.
	StatusPending ProfileStatus = "pending"
	// StatusApproved marks an account allowed to sign in.
	StatusApproved ProfileStatus = "approved"
	// StatusRejected marks an account refused by an administrator.
	StatusRejected ProfileStatus = "rejected"

	profileEmailMaxLength      = 320
	profileFullNameMaxLength   = 200
	profilePhoneMaxLength      = 40
	profileDepartmentMaxLength = 200
)

var (
	ErrInvalidProfileEmail   = errors.New("invalid_profile_email")
	ErrInvalidProfileRole    = errors.New("invalid_profile_role")
	ErrInvalidProfileStatus  = errors.New("invalid_profile_status")
	ErrInvalidProfileDetails = errors.New("invalid_profile_details")
)

// Profile is the account record behind every signed-in user.
type Profile struct {
	ID           string        `gorm:"primaryKey;size:36"`
	Email        string        `gorm:"not null;size:320;uniqueIndex"`
	PasswordHash string        `gorm:"size:100"`
	FullName     string        `gorm:"size:200"`
	Phone        string        `gorm:"size:40"`
	Department   string        `gorm:"size:200"`
	Role         ProfileRole   `gorm:"not null;size:16;default:user"`
	Status       ProfileStatus `gorm:"not null;size:16;default:pending;index"`
	CreatedAt    time.Time     `gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime"`
}

// ProfileInput holds the raw values used to construct a Profile.
type ProfileInput struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	Department   string
	Role         string
	Status       string
}

// ProfileDetails holds the self-editable part of a profile.
type ProfileDetails struct {
	FullName   string
	Phone      string
	Department string
}

// NewProfile constructs a Profile with validated, normalized fields.
func NewProfile(input ProfileInput) (Profile, error) {
	email, emailErr := NormalizeEmail(input.Email)
	if emailErr != nil {
		return Profile{}, emailErr
	}

	role := RoleUser
	if strings.TrimSpace(input.Role) != "" {
		parsedRole, roleErr := ParseProfileRole(input.Role)
		if roleErr != nil {
			return Profile{}, roleErr
		}
		role = parsedRole
	}

	status := StatusPending
	if strings.TrimSpace(input.Status) != "" {
		parsedStatus, statusErr := ParseProfileStatus(input.Status)
		if statusErr != nil {
			return Profile{}, statusErr
		}
		status = parsedStatus
	}

	details, detailsErr := NormalizeProfileDetails(ProfileDetails{
		FullName:   input.FullName,
		Phone:      input.Phone,
		Department: input.Department,
	})
	if detailsErr != nil {
		return Profile{}, detailsErr
	}

	return Profile{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: input.PasswordHash,
		FullName:     details.FullName,
		Phone:        details.Phone,
		Department:   details.Department,
		Role:         role,
		Status:       status,
	}, nil
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(rawEmail string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if email == "" || len(email) > profileEmailMaxLength {
		return "", fmt.Errorf("%w: empty or too long", ErrInvalidProfileEmail)
	}
	parsed, parseErr := mail.ParseAddress(email)
	if parseErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProfileEmail, parseErr)
	}
	if parsed.Address != email {
		return "", fmt.Errorf("%w: display names are not accepted", ErrInvalidProfileEmail)
	}
	return email, nil
}

// NormalizeProfileDetails trims the editable profile fields and enforces their limits.
func NormalizeProfileDetails(details ProfileDetails) (ProfileDetails, error) {
	normalized := ProfileDetails{
		FullName:   strings.TrimSpace(details.FullName),
		Phone:      strings.TrimSpace(details.Phone),
		Department: strings.TrimSpace(details.Department),
	}
	if len(normalized.FullName) > profileFullNameMaxLength {
		return ProfileDetails{}, fmt.Errorf("%w: full_name too long", ErrInvalidProfileDetails)
	}
	if len(normalized.Phone) > profilePhoneMaxLength {
		return ProfileDetails{}, fmt.Errorf("%w: phone too long", ErrInvalidProfileDetails)
	}
	if len(normalized.Department) > profileDepartmentMaxLength {
		return ProfileDetails{}, fmt.Errorf("%w: department too long", ErrInvalidProfileDetails)
	}
	return normalized, nil
}

// ParseProfileRole validates a role value.
func ParseProfileRole(rawRole string) (ProfileRole, error) {
	role := ProfileRole(strings.ToLower(strings.TrimSpace(rawRole)))
	switch role {
	case RoleUser, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidProfileRole, rawRole)
	}
}

// ParseProfileStatus validates an approval status value.
func ParseProfileStatus(rawStatus string) (ProfileStatus, error) {
	status := ProfileStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidProfileStatus, rawStatus)
	}
}

// IsAdmin reports whether the profile holds the administrator role.
func (profile Profile) IsAdmin() bool {
	return profile.Role == RoleAdmin
}

// DisplayName returns the full name, falling back to the email address.
func (profile Profile) DisplayName() string {
	if profile.FullName != "" {
		return profile.FullName
	}
	return profile.Email
}
