package sos

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

// AlertDispatcher records and delivers an alert for a located user.
type AlertDispatcher interface {
	DispatchAlert(ctx context.Context, profileID string, latitude float64, longitude float64) (model.AlertLog, error)
}

// Service drives a Tracker and hands located flows to an AlertDispatcher.
type Service struct {
	*Tracker
	dispatcher AlertDispatcher
}

// NewService wires a tracker to a dispatcher.
func NewService(tracker *Tracker, dispatcher AlertDispatcher) *Service {
	if tracker == nil {
		tracker = NewTracker(DefaultCountdown, nil)
	}
	return &Service{Tracker: tracker, dispatcher: dispatcher}
}

// ReportLocation dispatches the alert for a locating flow and moves it to sent.
// When dispatch fails the flow stays locating so the client may report again.
func (service *Service) ReportLocation(ctx context.Context, userID string, location Coordinates) (Snapshot, error) {
	if coordinatesErr := model.ValidateCoordinates(location.Latitude, location.Longitude); coordinatesErr != nil {
		return Snapshot{}, coordinatesErr
	}
	if _, claimErr := service.BeginDispatch(userID); claimErr != nil {
		snapshot, _ := service.Snapshot(userID)
		return snapshot, claimErr
	}

	alertLog, dispatchErr := service.dispatcher.DispatchAlert(ctx, userID, location.Latitude, location.Longitude)
	if dispatchErr != nil {
		snapshot, _ := service.FailDispatch(userID)
		return snapshot, fmt.Errorf("sos: dispatch alert: %w", dispatchErr)
	}
	return service.CompleteDispatch(userID, location, alertLog.ContactsNotified)
}
