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
	toastTitleAccountCreated  = "Account Created"
	toastTitleSignInFailed    = "Sign In Failed"
	toastTitleSignUpFailed    = "Sign Up Failed"
	invalidLoginDescription   = "Invalid email or password"
	emailTakenDescription     = "An account with this email already exists."
	passwordShortDescription  = "Password must be at least 8 characters."
	passwordLongDescription   = "Password must be at most 72 bytes."
	invalidEmailDescription   = "Enter a valid email address."
	invalidDetailsDescription = "Name, phone or department is too long."
	missingFieldsDescription  = "Email and password are required."

	logEventSignIn  = "sign_in"
	logEventSignUp  = "sign_up"
	logEventSignOut = "sign_out"
)

// AccountHandlers serves password sign-up, sign-in and sign-out.
type AccountHandlers struct {
	service     *accounts.Service
	authManager *AuthManager
	logger      *zap.Logger
}

func NewAccountHandlers(service *accounts.Service, authManager *AuthManager, logger *zap.Logger) *AccountHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandlers{service: service, authManager: authManager, logger: logger}
}

type signUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	Status   model.ProfileStatus `json:"status"`
	Role     model.ProfileRole   `json:"role"`
	Redirect string              `json:"redirect"`
	Notice   string              `json:"notice,omitempty"`
	Toast    *toastResponse      `json:"toast,omitempty"`
}

type currentUserResponse struct {
	ID     string              `json:"id"`
	Email  string              `json:"email"`
	Name   string              `json:"name"`
	Role   model.ProfileRole   `json:"role"`
	Status model.ProfileStatus `json:"status"`
}

// SignUp registers a password account. Only accounts approved on creation are signed in;
// the rest are told they await approval.
func (handlers *AccountHandlers) SignUp(context *gin.Context) {
	var request signUpRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}
	if strings.TrimSpace(request.Email) == "" || request.Password == "" {
		respondError(context, http.StatusBadRequest, errorValueMissingFields, newErrorToast(toastTitleSignUpFailed, missingFieldsDescription))
		return
	}

	profile, registerErr := handlers.service.Register(context.Request.Context(), accounts.RegistrationInput{
		Email:      request.Email,
		Password:   request.Password,
		FullName:   request.FullName,
		Phone:      request.Phone,
		Department: request.Department,
	})
	if registerErr != nil {
		handlers.respondRegisterError(context, registerErr)
		return
	}

	response := accountResponse{Status: profile.Status, Role: profile.Role}
	if notice, admitted := admissionNotice(profile.Status); admitted {
		if sessionErr := handlers.authManager.StartSession(context, profile); sessionErr != nil {
			handlers.logger.Error(logEventSignUp, zap.Error(sessionErr))
			respondError(context, http.StatusInternalServerError, errorValueSessionFailed, nil)
			return
		}
		response.Redirect = homePathForRole(profile.Role)
		response.Toast = newToast(toastTitleAccountCreated, "")
	} else {
		response.Redirect = PathAuth
		response.Notice = notice
		response.Toast = newToast(toastTitleAccountCreated, notice)
	}
	handlers.logger.Info(logEventSignUp, zap.String(logFieldEmail, profile.Email), zap.String(logFieldStatus, string(profile.Status)))
	context.JSON(http.StatusCreated, response)
}

// SignIn verifies a password and opens a session for approved accounts.
func (handlers *AccountHandlers) SignIn(context *gin.Context) {
	var request signInRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}
	if strings.TrimSpace(request.Email) == "" || request.Password == "" {
		respondError(context, http.StatusBadRequest, errorValueMissingFields, newErrorToast(toastTitleSignInFailed, missingFieldsDescription))
		return
	}

	profile, authErr := handlers.service.Authenticate(context.Request.Context(), request.Email, request.Password)
	if authErr != nil {
		if errors.Is(authErr, accounts.ErrInvalidCredentials) {
			respondError(context, http.StatusUnauthorized, errorValueInvalidLogin, newErrorToast(toastTitleSignInFailed, invalidLoginDescription))
			return
		}
		handlers.logger.Error(logEventSignIn, zap.Error(authErr))
		respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
		return
	}

	if notice, admitted := admissionNotice(profile.Status); !admitted {
		errorCode := errorValueAccountPending
		if profile.Status == model.StatusRejected {
			errorCode = errorValueAccountRejected
		}
		respondError(context, http.StatusForbidden, errorCode, newErrorToast(toastTitleSignInFailed, notice))
		return
	}

	if sessionErr := handlers.authManager.StartSession(context, profile); sessionErr != nil {
		handlers.logger.Error(logEventSignIn, zap.Error(sessionErr))
		respondError(context, http.StatusInternalServerError, errorValueSessionFailed, nil)
		return
	}
	handlers.logger.Info(logEventSignIn, zap.String(logFieldEmail, profile.Email))
	context.JSON(http.StatusOK, accountResponse{Status: profile.Status, Role: profile.Role, Redirect: homePathForRole(profile.Role)})
}

// SignOut clears the session and returns to the auth page. It answers JSON for API callers.
func (handlers *AccountHandlers) SignOut(context *gin.Context) {
	if endErr := handlers.authManager.EndSession(context, ""); endErr != nil {
		handlers.logger.Warn(logEventSignOut, zap.Error(endErr))
	}
	if strings.HasPrefix(context.Request.URL.Path, apiPathPrefix) {
		context.JSON(http.StatusOK, gin.H{"redirect": PathAuth})
		return
	}
	context.Redirect(http.StatusSeeOther, PathAuth)
}

// CurrentUser describes the signed-in profile.
func (handlers *AccountHandlers) CurrentUser(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	context.JSON(http.StatusOK, currentUserResponse{
		ID:     currentUser.ProfileID,
		Email:  currentUser.Email,
		Name:   currentUser.Name,
		Role:   currentUser.Role,
		Status: currentUser.Status,
	})
}

func (handlers *AccountHandlers) respondRegisterError(context *gin.Context, registerErr error) {
	switch {
	case errors.Is(registerErr, accounts.ErrEmailTaken):
		respondError(context, http.StatusConflict, errorValueEmailTaken, newErrorToast(toastTitleSignUpFailed, emailTakenDescription))
	case errors.Is(registerErr, accounts.ErrPasswordTooShort):
		respondError(context, http.StatusBadRequest, errorValuePasswordTooShort, newErrorToast(toastTitleSignUpFailed, passwordShortDescription))
	case errors.Is(registerErr, accounts.ErrPasswordTooLong):
		respondError(context, http.StatusBadRequest, errorValuePasswordTooLong, newErrorToast(toastTitleSignUpFailed, passwordLongDescription))
	case errors.Is(registerErr, model.ErrInvalidProfileEmail):
		respondError(context, http.StatusBadRequest, errorValueInvalidEmail, newErrorToast(toastTitleSignUpFailed, invalidEmailDescription))
	case errors.Is(registerErr, model.ErrInvalidProfileDetails):
		respondError(context, http.StatusBadRequest, errorValueInvalidDetails, newErrorToast(toastTitleSignUpFailed, invalidDetailsDescription))
	default:
		handlers.logger.Error(logEventSignUp, zap.Error(registerErr))
		respondError(context, http.StatusInternalServerError, errorValueSaveFailed, nil)
	}
}
