package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	adminProfileIDParam     = "id"
	adminActionParam        = "action"
	notAvailableLabel       = "N/A"
	emptyPendingText        = "No pending users."
	emptyApprovedText       = "No approved users."
	emptyRejectedText       = "No rejected users."
	logEventListProfiles    = "list_profiles"
	logEventDecideProfile   = "decide_profile"
	actionNotAllowedMessage = "This action is not allowed for this user."
	profileNotFoundMessage  = "User not found."
)

var decisionToastTitles = map[accounts.Action]string{
	accounts.ActionApprove: "User Approved",
	accounts.ActionReject:  "User Rejected",
	accounts.ActionPromote: "User Promoted",
	accounts.ActionDemote:  "User Demoted",
}

// AdminHandlers serve the account approval dashboard.
type AdminHandlers struct {
	service *accounts.Service
	logger  *zap.Logger
}

func NewAdminHandlers(service *accounts.Service, logger *zap.Logger) *AdminHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandlers{service: service, logger: logger}
}

type adminProfileResponse struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Name       string              `json:"name"`
	Phone      string              `json:"phone"`
	Department string              `json:"department"`
	Role       model.ProfileRole   `json:"role"`
	Status     model.ProfileStatus `json:"status"`
	CreatedAt  int64               `json:"created_at"`
	Actions    []accounts.Action   `json:"actions"`
}

type adminSectionResponse struct {
	Status    model.ProfileStatus    `json:"status"`
	Title     string                 `json:"title"`
	EmptyText string                 `json:"empty_text"`
	Profiles  []adminProfileResponse `json:"profiles"`
}

type adminListResponse struct {
	Pending  adminSectionResponse `json:"pending"`
	Approved adminSectionResponse `json:"approved"`
	Rejected adminSectionResponse `json:"rejected"`
}

type adminDecisionResponse struct {
	Profile adminProfileResponse `json:"profile"`
	Toast   *toastResponse       `json:"toast"`
}

// ListProfiles returns every profile newest first, split by status.
func (handlers *AdminHandlers) ListProfiles(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	sections, listErr := handlers.loadSections(context, currentUser.ProfileID)
	if listErr != nil {
		handlers.logger.Warn(logEventListProfiles, zap.Error(listErr))
		respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
		return
	}
	context.JSON(http.StatusOK, sections)
}

// Decide applies approve, reject, promote or demote. Rule violations answer 409.
func (handlers *AdminHandlers) Decide(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	action, actionErr := accounts.ParseAction(context.Param(adminActionParam))
	if actionErr != nil {
		respondError(context, http.StatusBadRequest, errorValueUnknownAction, nil)
		return
	}
	targetID := strings.TrimSpace(context.Param(adminProfileIDParam))

	updated, decideErr := handlers.service.Decide(context.Request.Context(), currentUser.ProfileID, targetID, action)
	switch {
	case decideErr == nil:
		context.JSON(http.StatusOK, adminDecisionResponse{
			Profile: toAdminProfileResponse(currentUser.ProfileID, updated),
			Toast:   newToast(decisionToastTitles[action], updated.Email),
		})
	case errors.Is(decideErr, accounts.ErrProfileNotFound):
		respondError(context, http.StatusNotFound, errorValueNotFound, newErrorToast(toastTitleError, profileNotFoundMessage))
	case errors.Is(decideErr, accounts.ErrActionNotAllowed):
		respondError(context, http.StatusConflict, errorValueActionNotAllowed, newErrorToast(toastTitleError, actionNotAllowedMessage))
	case errors.Is(decideErr, accounts.ErrUnknownAction):
		respondError(context, http.StatusBadRequest, errorValueUnknownAction, nil)
	default:
		handlers.logger.Error(logEventDecideProfile, zap.String(logFieldProfileID, targetID), zap.Error(decideErr))
		respondError(context, http.StatusInternalServerError, errorValueSaveFailed, nil)
	}
}

func (handlers *AdminHandlers) loadSections(context *gin.Context, actorID string) (adminListResponse, error) {
	profiles, listErr := handlers.service.ListProfiles(context.Request.Context())
	if listErr != nil {
		return adminListResponse{}, listErr
	}

	response := adminListResponse{
		Pending:  adminSectionResponse{Status: model.StatusPending, Title: "Pending Approval", EmptyText: emptyPendingText, Profiles: []adminProfileResponse{}},
		Approved: adminSectionResponse{Status: model.StatusApproved, Title: "Approved Users", EmptyText: emptyApprovedText, Profiles: []adminProfileResponse{}},
		Rejected: adminSectionResponse{Status: model.StatusRejected, Title: "Rejected Users", EmptyText: emptyRejectedText, Profiles: []adminProfileResponse{}},
	}
	for _, profile := range profiles {
		item := toAdminProfileResponse(actorID, profile)
		switch profile.Status {
		case model.StatusPending:
			response.Pending.Profiles = append(response.Pending.Profiles, item)
		case model.StatusApproved:
			response.Approved.Profiles = append(response.Approved.Profiles, item)
		case model.StatusRejected:
			response.Rejected.Profiles = append(response.Rejected.Profiles, item)
		}
	}
	return response, nil
}

func toAdminProfileResponse(actorID string, profile model.Profile) adminProfileResponse {
	return adminProfileResponse{
		ID:         profile.ID,
		Email:      profile.Email,
		Name:       valueOrNotAvailable(profile.FullName),
		Phone:      valueOrNotAvailable(profile.Phone),
		Department: valueOrNotAvailable(profile.Department),
		Role:       profile.Role,
		Status:     profile.Status,
		CreatedAt:  profile.CreatedAt.Unix(),
		Actions:    accounts.AllowedActions(actorID, profile),
	}
}

func valueOrNotAvailable(value string) string {
	if strings.TrimSpace(value) == "" {
		return notAvailableLabel
	}
	return value
}
