// Package alerting records SOS alerts and fans them out to the owner's emergency contacts.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/notifications"
)

const (
	loadContactsError      = "alerting: load contacts"
	createAlertLogError    = "alerting: create alert log"
	logEventDispatchAlert  = "dispatch_alert"
	logEventNotifyFailed   = "notify_contact_failed"
	logFieldProfileID      = "profile_id"
	logFieldContactID      = "contact_id"
	logFieldAlertID        = "alert_id"
	logFieldContactsCount  = "contacts_notified"
	logFieldMapsLink       = "maps_link"
	contactsOrderClause    = "created_at asc, id asc"
	contactsOwnerCondition = "profile_id = ?"
)

var ErrMissingProfile = errors.New("alerting: missing profile id")

// Dispatcher persists alert logs and notifies contacts.
type Dispatcher struct {
	database *gorm.DB
	notifier notifications.AlertNotifier
	recorder *metrics.Recorder
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher. A nil notifier selects a LogNotifier on the given logger.
func NewDispatcher(database *gorm.DB, notifier notifications.AlertNotifier, recorder *metrics.Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewLogNotifier(logger)
	}
	return &Dispatcher{
		database: database,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
	}
}

// DispatchAlert stores an alert log counting the profile's contacts, then sends one alert per contact.
// Individual send failures are logged and do not fail the dispatch.
// Once the log is stored, delivery no longer follows ctx cancellation.
func (dispatcher *Dispatcher) DispatchAlert(ctx context.Context, profileID string, latitude float64, longitude float64) (model.AlertLog, error) {
	trimmedProfileID := strings.TrimSpace(profileID)
	if trimmedProfileID == "" {
		return model.AlertLog{}, ErrMissingProfile
	}
	if coordinatesErr := model.ValidateCoordinates(latitude, longitude); coordinatesErr != nil {
		return model.AlertLog{}, coordinatesErr
	}

	var contacts []model.EmergencyContact
	if queryErr := dispatcher.database.WithContext(ctx).
		Where(contactsOwnerCondition, trimmedProfileID).
		Order(contactsOrderClause).
		Find(&contacts).Error; queryErr != nil {
		dispatcher.recorder.AlertFailed()
		return model.AlertLog{}, fmt.Errorf("%s: %w", loadContactsError, queryErr)
	}

	alertLog, alertErr := model.NewAlertLog(model.AlertLogInput{
		ProfileID:        trimmedProfileID,
		Latitude:         latitude,
		Longitude:        longitude,
		ContactsNotified: len(contacts),
	})
	if alertErr != nil {
		dispatcher.recorder.AlertFailed()
		return model.AlertLog{}, alertErr
	}
	if createErr := dispatcher.database.WithContext(ctx).Create(&alertLog).Error; createErr != nil {
		dispatcher.recorder.AlertFailed()
		return model.AlertLog{}, fmt.Errorf("%s: %w", createAlertLogError, createErr)
	}

	deliveryContext := context.WithoutCancel(ctx)
	for _, contact := range contacts {
		notifyErr := dispatcher.notifier.NotifyContact(deliveryContext, notifications.Alert{
			ProfileID: trimmedProfileID,
			Contact:   contact,
			Latitude:  latitude,
			Longitude: longitude,
		})
		if notifyErr != nil {
			dispatcher.logger.Warn(logEventNotifyFailed,
				zap.Error(notifyErr),
				zap.String(logFieldProfileID, trimmedProfileID),
				zap.String(logFieldContactID, contact.ID),
			)
		}
	}

	dispatcher.recorder.AlertDispatched(len(contacts))
	dispatcher.logger.Info(logEventDispatchAlert,
		zap.String(logFieldProfileID, trimmedProfileID),
		zap.String(logFieldAlertID, alertLog.ID),
		zap.Int(logFieldContactsCount, len(contacts)),
		zap.String(logFieldMapsLink, alertLog.MapsLink()),
	)
	return alertLog, nil
}
