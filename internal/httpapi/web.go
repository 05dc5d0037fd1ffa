package httpapi

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/temirov/GAuss/pkg/constants"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	htmlContentType = "text/html; charset=utf-8"

	authTemplateName      = "auth"
	dashboardTemplateName = "dashboard"
	contactsTemplateName  = "contacts"
	profileTemplateName   = "profile"
	adminTemplateName     = "admin"
	notFoundTemplateName  = "not_found"

	appTitle              = "Emergency Alert"
	appSubtitle           = "Doctor Safety System"
	safeBadgeLabel        = "SAFE"
	contactsHeading       = "Emergency Contacts"
	profileHeading        = "Profile"
	adminHeading          = "Administration"
	notFoundTitle         = "Page Not Found"
	prototypeNoticeText   = "Prototype Demo — Alerts are simulated"
	navLabelHome          = "Home"
	navLabelContacts      = "Contacts"
	navLabelProfile       = "Profile"
	navLabelAdmin         = "Admin"
	navIconHome           = "bi-house"
	navIconContacts       = "bi-people"
	navIconProfile        = "bi-person"
	navIconAdmin          = "bi-shield-lock"
	headerIconShield      = "bi-shield-check"
	sosPollInterval       = 250 * time.Millisecond
	geolocationTimeout    = 10 * time.Second
	dispatchAttempts      = 3
	dispatchRetryDelay    = 2 * time.Second
	logEventRenderPage    = "render_page"
	logEventLoadPageData  = "load_page_data"
	logFieldTemplate      = "template"
	renderFailedBody      = "Something went wrong."
	apiSignInPath         = "/api/auth/signin"
	apiSignUpPath         = "/api/auth/signup"
	apiProfilePath        = "/api/profile"
	apiContactsPath       = "/api/contacts"
	apiSOSPath            = "/api/sos"
	apiSOSTriggerPath     = "/api/sos/trigger"
	apiSOSCancelPath      = "/api/sos/cancel"
	apiSOSLocationPath    = "/api/sos/location"
	apiSOSLocationErrPath = "/api/sos/location-error"
	apiSOSResetPath       = "/api/sos/reset"
	apiAdminProfilesPath  = "/api/admin/profiles"
)

// WebConfig wires the page handlers to the JSON handlers whose loaders they reuse.
type WebConfig struct {
	AuthManager         *AuthManager
	Dashboard           *DashboardHandlers
	Contacts            *ContactHandlers
	Profiles            *ProfileHandlers
	Admin               *AdminHandlers
	SOS                 *SOSHandlers
	GoogleSignInEnabled bool
	Logger              *zap.Logger
}

// WebHandlers render the server-side pages.
type WebHandlers struct {
	config    WebConfig
	templates map[string]*template.Template
	logger    *zap.Logger
}

type navTab struct {
	Path   string
	Label  string
	Icon   string
	Active bool
}

type pageData struct {
	Title             string
	Heading           string
	Subheading        string
	HeaderIcon        string
	HeaderBadge       string
	User              *CurrentUser
	NavTabs           []navTab
	SignOutPath       string
	HomePath          string
	ProfilePath       string
	ClientConfigJSON  template.JS
	Notice            string
	GoogleSignInPath  string
	MinPasswordLength int
	PrototypeNotice   string
	Summary           dashboardSummary
	LastAlertUnix     int64
	SOS               sosResponse
	Contacts          []contactResponse
	CountLabel        string
	ContactLimit      int
	Categories        []categoryResponse
	Profile           profileResponse
	AdminSections     []adminSectionResponse
}

func NewWebHandlers(config WebConfig) *WebHandlers {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := map[string]string{
		authTemplateName:      authTemplateHTML,
		dashboardTemplateName: dashboardTemplateHTML,
		contactsTemplateName:  contactsTemplateHTML,
		profileTemplateName:   profileTemplateHTML,
		adminTemplateName:     adminTemplateHTML,
		notFoundTemplateName:  notFoundTemplateHTML,
	}
	compiled := make(map[string]*template.Template, len(sources))
	for name, source := range sources {
		compiled[name] = template.Must(template.Must(template.New(name).Parse(partialsTemplateHTML)).Parse(source))
	}
	return &WebHandlers{config: config, templates: compiled, logger: logger}
}

// RenderAuth shows the sign-in and sign-up forms with any pending notice.
func (handlers *WebHandlers) RenderAuth(context *gin.Context) {
	data := handlers.basePage(context, appTitle, "")
	data.Notice = handlers.config.AuthManager.TakeNotice(context)
	data.MinPasswordLength = accounts.MinPasswordLength
	if handlers.config.GoogleSignInEnabled {
		data.GoogleSignInPath = constants.GoogleAuthPath
	}
	handlers.render(context, http.StatusOK, authTemplateName, data, map[string]any{
		"authPath":               PathAuth,
		"redirectOnUnauthorized": false,
		"signInPath":             apiSignInPath,
		"signUpPath":             apiSignUpPath,
	})
}

func (handlers *WebHandlers) RenderDashboard(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.Redirect(http.StatusFound, PathAuth)
		return
	}
	summary, summaryErr := handlers.config.Dashboard.loadSummary(context.Request.Context(), currentUser.ProfileID)
	if summaryErr != nil {
		handlers.failPage(context, dashboardTemplateName, summaryErr)
		return
	}
	snapshot, snapshotErr := handlers.config.SOS.service.Snapshot(currentUser.ProfileID)
	if snapshotErr != nil {
		handlers.failPage(context, dashboardTemplateName, snapshotErr)
		return
	}
	sosState := handlers.config.SOS.toResponse(snapshot, nil)

	data := handlers.basePage(context, appTitle, PathHome)
	data.Heading = appTitle
	data.Subheading = appSubtitle
	data.HeaderBadge = safeBadgeLabel
	data.PrototypeNotice = prototypeNoticeText
	data.Summary = summary
	if summary.LastAlertAt != nil {
		data.LastAlertUnix = *summary.LastAlertAt
	}
	data.SOS = sosState
	handlers.render(context, http.StatusOK, dashboardTemplateName, data, map[string]any{
		"sos":                  sosState,
		"sosStatePath":         apiSOSPath,
		"sosTriggerPath":       apiSOSTriggerPath,
		"sosCancelPath":        apiSOSCancelPath,
		"sosLocationPath":      apiSOSLocationPath,
		"sosLocationErrorPath": apiSOSLocationErrPath,
		"sosResetPath":         apiSOSResetPath,
		"pollIntervalMs":       sosPollInterval.Milliseconds(),
		"geolocationTimeoutMs": geolocationTimeout.Milliseconds(),
		"dispatchAttempts":     dispatchAttempts,
		"dispatchRetryDelayMs": dispatchRetryDelay.Milliseconds(),
	})
}

func (handlers *WebHandlers) RenderContacts(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.Redirect(http.StatusFound, PathAuth)
		return
	}
	contacts, listErr := handlers.config.Contacts.loadContacts(context, currentUser.ProfileID)
	if listErr != nil {
		handlers.failPage(context, contactsTemplateName, listErr)
		return
	}

	data := handlers.basePage(context, contactsHeading, PathContacts)
	data.Heading = contactsHeading
	data.Contacts = make([]contactResponse, 0, len(contacts))
	for _, contact := range contacts {
		data.Contacts = append(data.Contacts, toContactResponse(contact))
	}
	data.CountLabel = contactCountLabel(len(contacts))
	data.ContactLimit = model.MaxEmergencyContacts
	data.Categories = categoryResponses()
	handlers.render(context, http.StatusOK, contactsTemplateName, data, map[string]any{
		"contactsPath": apiContactsPath,
		"categories":   data.Categories,
	})
}

func (handlers *WebHandlers) RenderProfile(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.Redirect(http.StatusFound, PathAuth)
		return
	}
	profile, profileErr := handlers.config.Profiles.service.ProfileByID(context.Request.Context(), currentUser.ProfileID)
	if profileErr != nil {
		handlers.failPage(context, profileTemplateName, profileErr)
		return
	}

	data := handlers.basePage(context, profileHeading, PathProfile)
	data.Heading = profileHeading
	data.Profile = toProfileResponse(profile)
	handlers.render(context, http.StatusOK, profileTemplateName, data, map[string]any{
		"profilePath": apiProfilePath,
	})
}

func (handlers *WebHandlers) RenderAdmin(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.Redirect(http.StatusFound, PathAuth)
		return
	}
	sections, listErr := handlers.config.Admin.loadSections(context, currentUser.ProfileID)
	if listErr != nil {
		handlers.failPage(context, adminTemplateName, listErr)
		return
	}

	data := handlers.basePage(context, adminHeading, PathAdmin)
	data.Heading = adminHeading
	data.Subheading = appTitle
	data.AdminSections = []adminSectionResponse{sections.Pending, sections.Approved, sections.Rejected}
	handlers.render(context, http.StatusOK, adminTemplateName, data, map[string]any{
		"adminProfilesPath": apiAdminProfilesPath,
	})
}

// RenderNotFound answers unknown paths: JSON under /api/, the 404 page elsewhere.
func (handlers *WebHandlers) RenderNotFound(context *gin.Context) {
	if strings.HasPrefix(context.Request.URL.Path, apiPathPrefix) {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueNotFound})
		return
	}
	data := pageData{Title: notFoundTitle, HomePath: PathHome}
	handlers.render(context, http.StatusNotFound, notFoundTemplateName, data, map[string]any{})
}

// basePage fills the fields every page shares. Navigation depends on the signed-in role.
func (handlers *WebHandlers) basePage(context *gin.Context, title string, activePath string) pageData {
	currentUser, _ := CurrentUserFromContext(context)
	return pageData{
		Title:       title,
		HeaderIcon:  headerIconShield,
		User:        currentUser,
		NavTabs:     navTabsFor(currentUser, activePath),
		SignOutPath: PathSignOut,
		HomePath:    PathHome,
		ProfilePath: PathProfile,
	}
}

func navTabsFor(currentUser *CurrentUser, activePath string) []navTab {
	if currentUser == nil {
		return nil
	}
	var tabs []navTab
	if currentUser.IsAdmin() {
		tabs = []navTab{
			{Path: PathAdmin, Label: navLabelAdmin, Icon: navIconAdmin},
			{Path: PathProfile, Label: navLabelProfile, Icon: navIconProfile},
		}
	} else {
		tabs = []navTab{
			{Path: PathHome, Label: navLabelHome, Icon: navIconHome},
			{Path: PathContacts, Label: navLabelContacts, Icon: navIconContacts},
			{Path: PathProfile, Label: navLabelProfile, Icon: navIconProfile},
		}
	}
	for index := range tabs {
		tabs[index].Active = tabs[index].Path == activePath
	}
	return tabs
}

func (handlers *WebHandlers) render(context *gin.Context, status int, templateName string, data pageData, clientConfig map[string]any) {
	if _, exists := clientConfig["authPath"]; !exists {
		clientConfig["authPath"] = PathAuth
	}
	if _, exists := clientConfig["redirectOnUnauthorized"]; !exists {
		clientConfig["redirectOnUnauthorized"] = true
	}
	configPayload, marshalErr := json.Marshal(clientConfig)
	if marshalErr != nil {
		handlers.logger.Error(logEventRenderPage, zap.String(logFieldTemplate, templateName), zap.Error(marshalErr))
		context.String(http.StatusInternalServerError, renderFailedBody)
		return
	}
	data.ClientConfigJSON = template.JS(configPayload)

	var buffer bytes.Buffer
	if executeErr := handlers.templates[templateName].Execute(&buffer, data); executeErr != nil {
		handlers.logger.Error(logEventRenderPage, zap.String(logFieldTemplate, templateName), zap.Error(executeErr))
		context.String(http.StatusInternalServerError, renderFailedBody)
		return
	}
	context.Data(status, htmlContentType, buffer.Bytes())
}

func (handlers *WebHandlers) failPage(context *gin.Context, templateName string, loadErr error) {
	handlers.logger.Warn(logEventLoadPageData, zap.String(logFieldTemplate, templateName), zap.Error(loadErr))
	context.String(http.StatusInternalServerError, renderFailedBody)
}
