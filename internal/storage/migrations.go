package storage

import (
	"strings"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

// NormalizeEmailList lower-cases, trims and de-duplicates email addresses, dropping blanks.
func NormalizeEmailList(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		trimmed := strings.ToLower(strings.TrimSpace(email))
		if trimmed == "" {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// PromoteBootstrapAdmins grants the admin role and approved status to existing profiles of the given emails.
func PromoteBootstrapAdmins(database *gorm.DB, adminEmails []string) error {
	normalizedEmails := NormalizeEmailList(adminEmails)
	if len(normalizedEmails) == 0 {
		return nil
	}

	assignments := map[string]any{
		"role":   model.RoleAdmin,
		"status": model.StatusApproved,
	}

	return database.Model(&model.Profile{}).
		Where("email IN ?", normalizedEmails).
		Updates(assignments).Error
}
