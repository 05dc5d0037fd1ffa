package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/session"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	contextKeyCurrentUser = "httpapi_current_user"
	authErrorUnauthorized = "unauthorized"
	authErrorForbidden    = "forbidden"

	logEventLoadSession           = "load_session"
	logEventSaveSession           = "save_session"
	logEventResolveProfile        = "resolve_profile"
	logEventCreateExternalProfile = "create_external_profile"
	logFieldEmail                 = "email"
	logFieldStatus                = "status"

	sessionFlashKeyNotice = "safecall_notice"

	// NoticePendingApproval is shown on the auth page after a pending account was signed out.
	NoticePendingApproval = "Your account is awaiting admin approval."
	// NoticeRejected is shown on the auth page after a rejected account was signed out.
	NoticeRejected = "Your account has been rejected. Please contact support."

	accessDeniedMessage = "Access Denied"

	PathAuth     = "/auth"
	PathHome     = "/"
	PathContacts = "/contacts"
	PathProfile  = "/profile"
	PathAdmin    = "/admin"
	PathSignOut  = constants.LogoutPath
)

// ProfileDirectory resolves session emails to profiles.
type ProfileDirectory interface {
	ProfileByEmail(ctx context.Context, email string) (model.Profile, error)
	EnsureExternalProfile(ctx context.Context, email string, fullName string) (model.Profile, bool, error)
}

// CurrentUser is the approved profile behind the request.
type CurrentUser struct {
	ProfileID string
	Email     string
	Name      string
	Role      model.ProfileRole
	Status    model.ProfileStatus
}

// IsAdmin reports whether the user holds the administrator role.
func (currentUser *CurrentUser) IsAdmin() bool {
	return currentUser != nil && currentUser.Role == model.RoleAdmin
}

func newCurrentUser(profile model.Profile) *CurrentUser {
	return &CurrentUser{
		ProfileID: profile.ID,
		Email:     profile.Email,
		Name:      profile.DisplayName(),
		Role:      profile.Role,
		Status:    profile.Status,
	}
}

// AuthManager loads the signed-in profile from the session cookie and gates access by approval status and role.
type AuthManager struct {
	logger       *zap.Logger
	sessionStore *sessions.CookieStore
	profiles     ProfileDirectory
}

func NewAuthManager(profiles ProfileDirectory, logger *zap.Logger) *AuthManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		logger:       logger,
		sessionStore: session.Store(),
		profiles:     profiles,
	}
}

// ProtectedWeb sends anonymous visitors to the auth page. When allowedRole is set,
// users holding another role are sent to their own home page.
func (authManager *AuthManager) ProtectedWeb(allowedRole model.ProfileRole) gin.HandlerFunc {
	return func(context *gin.Context) {
		currentUser, ok := authManager.ensureUser(context)
		if !ok {
			context.Redirect(http.StatusFound, PathAuth)
			context.Abort()
			return
		}
		if allowedRole != "" && currentUser.Role != allowedRole {
			context.Redirect(http.StatusFound, homePathForRole(currentUser.Role))
			context.Abort()
			return
		}
		context.Next()
	}
}

// PublicOnlyWeb lets only anonymous visitors through; signed-in users go home.
func (authManager *AuthManager) PublicOnlyWeb() gin.HandlerFunc {
	return func(context *gin.Context) {
		if currentUser, ok := authManager.ensureUser(context); ok {
			context.Redirect(http.StatusFound, homePathForRole(currentUser.Role))
			context.Abort()
			return
		}
		context.Next()
	}
}

func (authManager *AuthManager) RequireAuthenticatedJSON() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureUser(context); !ok {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
			return
		}
		context.Next()
	}
}

func (authManager *AuthManager) RequireRoleJSON(role model.ProfileRole) gin.HandlerFunc {
	return func(context *gin.Context) {
		currentUser, ok := authManager.ensureUser(context)
		if !ok {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
			return
		}
		if currentUser.Role != role {
			context.AbortWithStatusJSON(http.StatusForbidden, gin.H{jsonKeyError: authErrorForbidden, jsonKeyMessage: accessDeniedMessage})
			return
		}
		context.Next()
	}
}

// StartSession signs the profile in on this browser.
func (authManager *AuthManager) StartSession(context *gin.Context, profile model.Profile) error {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, constants.SessionName)
	if sessionErr != nil && sessionInstance == nil {
		return sessionErr
	}
	sessionInstance.Values[constants.SessionKeyUserEmail] = profile.Email
	sessionInstance.Values[constants.SessionKeyUserName] = profile.DisplayName()
	return sessionInstance.Save(context.Request, context.Writer)
}

// EndSession signs the browser out, optionally leaving a notice for the auth page.
func (authManager *AuthManager) EndSession(context *gin.Context, notice string) error {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, constants.SessionName)
	if sessionErr != nil && sessionInstance == nil {
		return sessionErr
	}
	return authManager.clearSession(context, sessionInstance, notice)
}

// TakeNotice returns and consumes the pending auth page notice.
func (authManager *AuthManager) TakeNotice(context *gin.Context) string {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, constants.SessionName)
	if sessionErr != nil && sessionInstance == nil {
		return ""
	}
	flashes := sessionInstance.Flashes(sessionFlashKeyNotice)
	if len(flashes) == 0 {
		return ""
	}
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Warn(logEventSaveSession, zap.Error(saveErr))
	}
	return extractString(flashes[len(flashes)-1])
}

func CurrentUserFromContext(context *gin.Context) (*CurrentUser, bool) {
	value, exists := context.Get(contextKeyCurrentUser)
	if !exists {
		return nil, false
	}
	currentUser, ok := value.(*CurrentUser)
	return currentUser, ok
}

func (authManager *AuthManager) ensureUser(context *gin.Context) (*CurrentUser, bool) {
	if currentUser, exists := CurrentUserFromContext(context); exists {
		return currentUser, true
	}

	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, constants.SessionName)
	if sessionErr != nil {
		authManager.logger.Warn(logEventLoadSession, zap.Error(sessionErr))
		return nil, false
	}

	email := extractString(sessionInstance.Values[constants.SessionKeyUserEmail])
	if email == "" {
		return nil, false
	}

	profile, profileErr := authManager.resolveProfile(context.Request.Context(), sessionInstance, email)
	if profileErr != nil {
		if errors.Is(profileErr, accounts.ErrProfileNotFound) || errors.Is(profileErr, model.ErrInvalidProfileEmail) {
			authManager.endSessionQuietly(context, sessionInstance, "")
			return nil, false
		}
		authManager.logger.Warn(logEventResolveProfile, zap.String(logFieldEmail, email), zap.Error(profileErr))
		return nil, false
	}

	if notice, admitted := admissionNotice(profile.Status); !admitted {
		authManager.logger.Info(logEventResolveProfile, zap.String(logFieldEmail, email), zap.String(logFieldStatus, string(profile.Status)))
		authManager.endSessionQuietly(context, sessionInstance, notice)
		return nil, false
	}

	currentUser := newCurrentUser(profile)
	context.Set(contextKeyCurrentUser, currentUser)
	return currentUser, true
}

// resolveProfile looks the session email up. A Google sign-in without a profile
// registers one, so it enters the approval queue like any other sign-up.
func (authManager *AuthManager) resolveProfile(ctx context.Context, sessionInstance *sessions.Session, email string) (model.Profile, error) {
	profile, profileErr := authManager.profiles.ProfileByEmail(ctx, email)
	if profileErr == nil || !errors.Is(profileErr, accounts.ErrProfileNotFound) {
		return profile, profileErr
	}
	if _, hasToken := sessionInstance.Values[constants.SessionKeyOAuthToken]; !hasToken {
		return model.Profile{}, profileErr
	}
	name := extractString(sessionInstance.Values[constants.SessionKeyUserName])
	created, createdNow, createErr := authManager.profiles.EnsureExternalProfile(ctx, email, name)
	if createErr != nil {
		return model.Profile{}, createErr
	}
	if createdNow {
		authManager.logger.Info(logEventCreateExternalProfile, zap.String(logFieldEmail, created.Email), zap.String(logFieldStatus, string(created.Status)))
	}
	return created, nil
}

func (authManager *AuthManager) endSessionQuietly(context *gin.Context, sessionInstance *sessions.Session, notice string) {
	if clearErr := authManager.clearSession(context, sessionInstance, notice); clearErr != nil {
		authManager.logger.Warn(logEventSaveSession, zap.Error(clearErr))
	}
}

func (authManager *AuthManager) clearSession(context *gin.Context, sessionInstance *sessions.Session, notice string) error {
	delete(sessionInstance.Values, constants.SessionKeyUserEmail)
	delete(sessionInstance.Values, constants.SessionKeyUserName)
	delete(sessionInstance.Values, constants.SessionKeyUserPicture)
	delete(sessionInstance.Values, constants.SessionKeyOAuthToken)
	if notice != "" {
		sessionInstance.AddFlash(notice, sessionFlashKeyNotice)
	}
	return sessionInstance.Save(context.Request, context.Writer)
}

// admissionNotice reports whether a status may hold a session and, if not, what to tell the user.
func admissionNotice(status model.ProfileStatus) (string, bool) {
	switch status {
	case model.StatusApproved:
		return "", true
	case model.StatusPending:
		return NoticePendingApproval, false
	case model.StatusRejected:
		return NoticeRejected, false
	default:
		return "", false
	}
}

func homePathForRole(role model.ProfileRole) string {
	if role == model.RoleAdmin {
		return PathAdmin
	}
	return PathHome
}

func extractString(value interface{}) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
