package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/sos"
)

const (
	toastTitleAlertCancelled      = "Alert Cancelled"
	alertCancelledDescription     = "Emergency alert was cancelled."
	toastTitleLocationError       = "Location Error"
	locationErrorDescription      = "Could not fetch GPS location. Please enable location services."
	toastTitleAlertFailed         = "Alert Failed"
	alertFailedDescription        = "The alert could not be recorded. Please try again."
	contactsNotifiedSingular      = "%d contact notified with your location"
	contactsNotifiedPlural        = "%d contacts notified with your location"
	coordinatesLabelPattern       = "%.6f, %.6f"
	jsonKeySOS                    = "sos"
	logEventSOSTransition         = "sos_transition"
	logEventSOSReport             = "sos_report_location"
	logFieldState                 = "state"
	logFieldAction                = "action"
	logFieldContactsNotified      = "contacts_notified"
	sosActionTrigger              = "trigger"
	sosActionCancel               = "cancel"
	sosActionLocationError        = "location_error"
	sosActionReset                = "reset"
	sosActionState                = "state"
	sosActionReportLocation       = "report_location"
	sosTransitionFailedLogMessage = "sos transition rejected"
)

// SOSHandlers drive the caller's SOS flow.
type SOSHandlers struct {
	service *sos.Service
	logger  *zap.Logger
}

func NewSOSHandlers(service *sos.Service, logger *zap.Logger) *SOSHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SOSHandlers{service: service, logger: logger}
}

type locationRequest struct {
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

type sosResponse struct {
	State            sos.State        `json:"state"`
	CountdownSeconds int              `json:"countdown_seconds"`
	CountdownTotal   int              `json:"countdown_total"`
	Location         *sos.Coordinates `json:"location"`
	CoordinatesLabel string           `json:"coordinates_label,omitempty"`
	MapsLink         string           `json:"maps_link,omitempty"`
	ContactsNotified int              `json:"contacts_notified"`
	Summary          string           `json:"summary,omitempty"`
	Toast            *toastResponse   `json:"toast,omitempty"`
}

func (handlers *SOSHandlers) State(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	snapshot, snapshotErr := handlers.service.Snapshot(currentUser.ProfileID)
	if snapshotErr != nil {
		handlers.respondTransitionError(context, sosActionState, snapshot, snapshotErr)
		return
	}
	context.JSON(http.StatusOK, handlers.toResponse(snapshot, nil))
}

func (handlers *SOSHandlers) Trigger(context *gin.Context) {
	handlers.applyTransition(context, sosActionTrigger, handlers.service.Trigger, nil)
}

func (handlers *SOSHandlers) Cancel(context *gin.Context) {
	handlers.applyTransition(context, sosActionCancel, handlers.service.Cancel, newToast(toastTitleAlertCancelled, alertCancelledDescription))
}

// LocationError records that the device could not provide a position.
func (handlers *SOSHandlers) LocationError(context *gin.Context) {
	handlers.applyTransition(context, sosActionLocationError, handlers.service.LocationFailed, newErrorToast(toastTitleLocationError, locationErrorDescription))
}

func (handlers *SOSHandlers) Reset(context *gin.Context) {
	handlers.applyTransition(context, sosActionReset, handlers.service.Reset, nil)
}

// ReportLocation delivers the alert with the device position.
func (handlers *SOSHandlers) ReportLocation(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	var request locationRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}
	if request.Latitude == nil || request.Longitude == nil {
		respondError(context, http.StatusBadRequest, errorValueMissingFields, nil)
		return
	}

	snapshot, reportErr := handlers.service.ReportLocation(context.Request.Context(), currentUser.ProfileID, sos.Coordinates{
		Latitude:  *request.Latitude,
		Longitude: *request.Longitude,
	})
	switch {
	case reportErr == nil:
		handlers.logger.Info(logEventSOSReport, zap.String(logFieldProfileID, currentUser.ProfileID), zap.Int(logFieldContactsNotified, snapshot.ContactsNotified))
		context.JSON(http.StatusOK, handlers.toResponse(snapshot, nil))
	case errors.Is(reportErr, model.ErrInvalidAlertCoordinates):
		respondError(context, http.StatusBadRequest, errorValueInvalidLocation, nil)
	case errors.Is(reportErr, sos.ErrInvalidTransition), errors.Is(reportErr, sos.ErrDispatchInProgress):
		handlers.respondTransitionError(context, sosActionReportLocation, snapshot, reportErr)
	default:
		handlers.logger.Error(logEventSOSReport, zap.String(logFieldProfileID, currentUser.ProfileID), zap.Error(reportErr))
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			jsonKeyError: errorValueDispatchFailed,
			jsonKeyToast: newErrorToast(toastTitleAlertFailed, alertFailedDescription),
			jsonKeySOS:   handlers.toResponse(snapshot, nil),
		})
	}
}

func (handlers *SOSHandlers) applyTransition(context *gin.Context, action string, transition func(string) (sos.Snapshot, error), toast *toastResponse) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	snapshot, transitionErr := transition(currentUser.ProfileID)
	if transitionErr != nil {
		handlers.respondTransitionError(context, action, snapshot, transitionErr)
		return
	}
	handlers.logger.Debug(logEventSOSTransition, zap.String(logFieldProfileID, currentUser.ProfileID), zap.String(logFieldAction, action), zap.String(logFieldState, string(snapshot.State)))
	context.JSON(http.StatusOK, handlers.toResponse(snapshot, toast))
}

// respondTransitionError answers 409 with the flow as it stands so the page can resynchronize.
func (handlers *SOSHandlers) respondTransitionError(context *gin.Context, action string, snapshot sos.Snapshot, transitionErr error) {
	switch {
	case errors.Is(transitionErr, sos.ErrMissingUser):
		context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
	case errors.Is(transitionErr, sos.ErrDispatchInProgress):
		context.AbortWithStatusJSON(http.StatusConflict, gin.H{jsonKeyError: errorValueDispatchInFlight, jsonKeySOS: handlers.toResponse(snapshot, nil)})
	default:
		handlers.logger.Debug(sosTransitionFailedLogMessage, zap.String(logFieldAction, action), zap.Error(transitionErr))
		context.AbortWithStatusJSON(http.StatusConflict, gin.H{jsonKeyError: errorValueInvalidTransition, jsonKeySOS: handlers.toResponse(snapshot, nil)})
	}
}

func (handlers *SOSHandlers) toResponse(snapshot sos.Snapshot, toast *toastResponse) sosResponse {
	response := sosResponse{
		State:            snapshot.State,
		CountdownSeconds: snapshot.CountdownSeconds,
		CountdownTotal:   int(handlers.service.Countdown().Seconds()),
		Location:         snapshot.Location,
		ContactsNotified: snapshot.ContactsNotified,
		Toast:            toast,
	}
	if snapshot.State == sos.StateSent && snapshot.Location != nil {
		response.CoordinatesLabel = fmt.Sprintf(coordinatesLabelPattern, snapshot.Location.Latitude, snapshot.Location.Longitude)
		response.MapsLink = model.MapsLink(snapshot.Location.Latitude, snapshot.Location.Longitude)
		response.Summary = contactsNotifiedSummary(snapshot.ContactsNotified)
	}
	return response
}

func contactsNotifiedSummary(count int) string {
	if count == 1 {
		return fmt.Sprintf(contactsNotifiedSingular, count)
	}
	return fmt.Sprintf(contactsNotifiedPlural, count)
}
