package httpapi

import (
	"github.com/gin-gonic/gin"
)

const (
	jsonKeyError   = "error"
	jsonKeyToast   = "toast"
	jsonKeyMessage = "message"

	apiPathPrefix = "/api/"

	errorValueInvalidJSON       = "invalid_json"
	errorValueMissingFields     = "missing_fields"
	errorValueInvalidName       = "invalid_name"
	errorValueInvalidPhone      = "invalid_phone"
	errorValueInvalidCategory   = "invalid_category"
	errorValueInvalidDetails    = "invalid_details"
	errorValueInvalidEmail      = "invalid_email"
	errorValueInvalidLocation   = "invalid_location"
	errorValueEmailTaken        = "email_taken"
	errorValuePasswordTooShort  = "password_too_short"
	errorValuePasswordTooLong   = "password_too_long"
	errorValueInvalidLogin      = "invalid_credentials"
	errorValueAccountPending    = "account_pending"
	errorValueAccountRejected   = "account_rejected"
	errorValueContactLimit      = "contact_limit_reached"
	errorValueNotFound          = "not_found"
	errorValueInvalidTransition = "invalid_transition"
	errorValueDispatchInFlight  = "dispatch_in_progress"
	errorValueDispatchFailed    = "dispatch_failed"
	errorValueUnknownAction     = "unknown_action"
	errorValueActionNotAllowed  = "action_not_allowed"
	errorValueQueryFailed       = "query_failed"
	errorValueSaveFailed        = "save_failed"
	errorValueDeleteFailed      = "delete_failed"
	errorValueSessionFailed     = "session_failed"

	toastVariantDestructive = "destructive"
	toastTitleError         = "Error"
)

type toastResponse struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Variant     string `json:"variant,omitempty"`
}

func newToast(title string, description string) *toastResponse {
	return &toastResponse{Title: title, Description: description}
}

func newErrorToast(title string, description string) *toastResponse {
	return &toastResponse{Title: title, Description: description, Variant: toastVariantDestructive}
}

// respondError writes {"error": code} and, when present, the toast the page should show.
func respondError(context *gin.Context, status int, code string, toast *toastResponse) {
	payload := gin.H{jsonKeyError: code}
	if toast != nil {
		payload[jsonKeyToast] = toast
	}
	context.AbortWithStatusJSON(status, payload)
}
