// Package notifications delivers SOS alerts to emergency contacts.
//
// Delivery is simulated: LogNotifier records one structured log line per contact.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	alertMessageTemplate = "ALERT SENT to %s (%s): Emergency at %s"
	logEventAlertSent    = "alert_sent"
	logFieldMessage      = "message"
	logFieldProfileID    = "profile_id"
	logFieldContactID    = "contact_id"
	logFieldCategory     = "category"
	logFieldMapsLink     = "maps_link"
)

var (
	ErrMissingRecipient = errors.New("notifications: contact phone is empty")
	ErrNotifierClosed   = errors.New("notifications: notifier not initialized")
)

// Alert is a single message to one emergency contact.
type Alert struct {
	ProfileID string
	Contact   model.EmergencyContact
	Latitude  float64
	Longitude float64
}

// MapsLink returns the location link included in the message.
func (alert Alert) MapsLink() string {
	return model.MapsLink(alert.Latitude, alert.Longitude)
}

// Message renders the text sent to the contact.
func (alert Alert) Message() string {
	return fmt.Sprintf(alertMessageTemplate, strings.TrimSpace(alert.Contact.Name), strings.TrimSpace(alert.Contact.Phone), alert.MapsLink())
}

// AlertNotifier sends one alert.
type AlertNotifier interface {
	NotifyContact(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log instead of a delivery channel.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier; a nil logger discards the alerts.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyContact logs the alert for the contact.
func (notifier *LogNotifier) NotifyContact(ctx context.Context, alert Alert) error {
	if notifier == nil || notifier.logger == nil {
		return ErrNotifierClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if strings.TrimSpace(alert.Contact.Phone) == "" {
		return ErrMissingRecipient
	}
	notifier.logger.Info(logEventAlertSent,
		zap.String(logFieldMessage, alert.Message()),
		zap.String(logFieldProfileID, alert.ProfileID),
		zap.String(logFieldContactID, alert.Contact.ID),
		zap.String(logFieldCategory, string(alert.Contact.Category)),
		zap.String(logFieldMapsLink, alert.MapsLink()),
	)
	return nil
}
