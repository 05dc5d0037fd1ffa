package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	toastTitleProfileUpdated = "Profile Updated"
	logEventLoadProfile      = "load_profile"
	logEventUpdateProfile    = "update_profile"
)

// ProfileHandlers lets a user read and edit their own details.
type ProfileHandlers struct {
	service *accounts.Service
	logger  *zap.Logger
}

func NewProfileHandlers(service *accounts.Service, logger *zap.Logger) *ProfileHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandlers{service: service, logger: logger}
}

type profileRequest struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
}

type profileResponse struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	FullName   string              `json:"full_name"`
	Phone      string              `json:"phone"`
	Department string              `json:"department"`
	Role       model.ProfileRole   `json:"role"`
	Status     model.ProfileStatus `json:"status"`
}

type profileMutationResponse struct {
	Profile profileResponse `json:"profile"`
	Toast   *toastResponse  `json:"toast"`
}

func (handlers *ProfileHandlers) GetProfile(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	profile, profileErr := handlers.service.ProfileByID(context.Request.Context(), currentUser.ProfileID)
	if profileErr != nil {
		handlers.respondLookupError(context, profileErr)
		return
	}
	context.JSON(http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile saves the trimmed name, phone and department.
func (handlers *ProfileHandlers) UpdateProfile(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	var request profileRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}

	profile, updateErr := handlers.service.UpdateDetails(context.Request.Context(), currentUser.ProfileID, model.ProfileDetails{
		FullName:   request.FullName,
		Phone:      request.Phone,
		Department: request.Department,
	})
	if updateErr != nil {
		if errors.Is(updateErr, model.ErrInvalidProfileDetails) {
			respondError(context, http.StatusBadRequest, errorValueInvalidDetails, newErrorToast(toastTitleError, invalidDetailsDescription))
			return
		}
		handlers.respondLookupError(context, updateErr)
		return
	}

	handlers.logger.Info(logEventUpdateProfile, zap.String(logFieldProfileID, profile.ID))
	context.JSON(http.StatusOK, profileMutationResponse{Profile: toProfileResponse(profile), Toast: newToast(toastTitleProfileUpdated, "")})
}

func (handlers *ProfileHandlers) respondLookupError(context *gin.Context, lookupErr error) {
	if errors.Is(lookupErr, accounts.ErrProfileNotFound) {
		respondError(context, http.StatusNotFound, errorValueNotFound, nil)
		return
	}
	handlers.logger.Warn(logEventLoadProfile, zap.Error(lookupErr))
	respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
}

func toProfileResponse(profile model.Profile) profileResponse {
	return profileResponse{
		ID:         profile.ID,
		Email:      profile.Email,
		FullName:   profile.FullName,
		Phone:      profile.Phone,
		Department: profile.Department,
		Role:       profile.Role,
		Status:     profile.Status,
	}
}
