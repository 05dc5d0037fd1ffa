package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/auth"
	"github.com/MarkoPoloResearchLab/safecall/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	apiRoutePrefix           = "/api"
	apiRoutePreflight        = "/api/*path"
	apiRouteSignUp           = "/auth/signup"
	apiRouteSignIn           = "/auth/signin"
	apiRouteSignOut          = "/auth/signout"
	apiRouteMe               = "/me"
	apiRouteProfile          = "/profile"
	apiRouteDashboard        = "/dashboard"
	apiRouteContacts         = "/contacts"
	apiRouteContact          = "/contacts/:id"
	apiRouteSOS              = "/sos"
	apiRouteSOSTrigger       = "/sos/trigger"
	apiRouteSOSCancel        = "/sos/cancel"
	apiRouteSOSLocation      = "/sos/location"
	apiRouteSOSLocationError = "/sos/location-error"
	apiRouteSOSReset         = "/sos/reset"
	apiRouteAdminProfiles    = "/admin/profiles"
	apiRouteAdminDecision    = "/admin/profiles/:id/:action"
	metricsRoute             = "/metrics"
	corsPreflightEmptyStatus = http.StatusNoContent
)

// anyRole admits every approved profile.
const anyRole model.ProfileRole = ""

// routeHandlers bundles the handlers the router mounts. googleAuth and apiCORS are optional.
type routeHandlers struct {
	authManager *httpapi.AuthManager
	web         *httpapi.WebHandlers
	accounts    *httpapi.AccountHandlers
	contacts    *httpapi.ContactHandlers
	profiles    *httpapi.ProfileHandlers
	dashboard   *httpapi.DashboardHandlers
	sos         *httpapi.SOSHandlers
	admin       *httpapi.AdminHandlers
	googleAuth  *auth.Handlers
	metrics     gin.HandlerFunc
	apiCORS     gin.HandlerFunc
}

func newRouter(logger *zap.Logger, handlers routeHandlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))
	router.Use(httpapi.SecurityHeaders())

	registerFrontendRoutes(router, handlers)
	registerBackendRoutes(router, handlers)
	if handlers.apiCORS != nil {
		registerAPIPreflightRoutes(router, handlers.apiCORS)
	}
	if handlers.googleAuth != nil {
		handlers.googleAuth.RegisterRoutes(router)
	}
	if handlers.metrics != nil {
		router.GET(metricsRoute, handlers.metrics)
	}
	router.NoRoute(handlers.web.RenderNotFound)

	return router
}

func registerFrontendRoutes(router *gin.Engine, handlers routeHandlers) {
	authManager := handlers.authManager

	router.GET(httpapi.PathAuth, authManager.PublicOnlyWeb(), handlers.web.RenderAuth)
	router.GET(httpapi.PathHome, authManager.ProtectedWeb(model.RoleUser), handlers.web.RenderDashboard)
	router.GET(httpapi.PathContacts, authManager.ProtectedWeb(model.RoleUser), handlers.web.RenderContacts)
	router.GET(httpapi.PathProfile, authManager.ProtectedWeb(anyRole), handlers.web.RenderProfile)
	router.GET(httpapi.PathAdmin, authManager.ProtectedWeb(model.RoleAdmin), handlers.web.RenderAdmin)
	router.GET(httpapi.PathSignOut, handlers.accounts.SignOut)
	router.POST(httpapi.PathSignOut, handlers.accounts.SignOut)
}

func registerBackendRoutes(router *gin.Engine, handlers routeHandlers) {
	authManager := handlers.authManager

	apiGroup := router.Group(apiRoutePrefix)
	if handlers.apiCORS != nil {
		apiGroup.Use(handlers.apiCORS)
	}
	apiGroup.POST(apiRouteSignUp, handlers.accounts.SignUp)
	apiGroup.POST(apiRouteSignIn, handlers.accounts.SignIn)
	apiGroup.POST(apiRouteSignOut, handlers.accounts.SignOut)

	signedIn := apiGroup.Group("")
	signedIn.Use(authManager.RequireAuthenticatedJSON())
	signedIn.GET(apiRouteMe, handlers.accounts.CurrentUser)
	signedIn.GET(apiRouteProfile, handlers.profiles.GetProfile)
	signedIn.PUT(apiRouteProfile, handlers.profiles.UpdateProfile)

	userGroup := apiGroup.Group("")
	userGroup.Use(authManager.RequireRoleJSON(model.RoleUser))
	userGroup.GET(apiRouteDashboard, handlers.dashboard.Summary)
	userGroup.GET(apiRouteContacts, handlers.contacts.ListContacts)
	userGroup.POST(apiRouteContacts, handlers.contacts.CreateContact)
	userGroup.PUT(apiRouteContact, handlers.contacts.UpdateContact)
	userGroup.DELETE(apiRouteContact, handlers.contacts.DeleteContact)
	userGroup.GET(apiRouteSOS, handlers.sos.State)
	userGroup.POST(apiRouteSOSTrigger, handlers.sos.Trigger)
	userGroup.POST(apiRouteSOSCancel, handlers.sos.Cancel)
	userGroup.POST(apiRouteSOSLocation, handlers.sos.ReportLocation)
	userGroup.POST(apiRouteSOSLocationError, handlers.sos.LocationError)
	userGroup.POST(apiRouteSOSReset, handlers.sos.Reset)

	adminGroup := apiGroup.Group("")
	adminGroup.Use(authManager.RequireRoleJSON(model.RoleAdmin))
	adminGroup.GET(apiRouteAdminProfiles, handlers.admin.ListProfiles)
	adminGroup.POST(apiRouteAdminDecision, handlers.admin.Decide)
}

// registerAPIPreflightRoutes answers CORS preflight for every API path, since
// group middleware only runs for routes that match.
func registerAPIPreflightRoutes(router *gin.Engine, apiCORS gin.HandlerFunc) {
	router.OPTIONS(apiRoutePreflight, apiCORS, func(context *gin.Context) {
		context.Status(corsPreflightEmptyStatus)
	})
}
