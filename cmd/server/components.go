package main

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/temirov/GAuss/pkg/gauss"
	"github.com/temirov/GAuss/pkg/session"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/accounts"
	"github.com/MarkoPoloResearchLab/safecall/internal/alerting"
	"github.com/MarkoPoloResearchLab/safecall/internal/approval"
	"github.com/MarkoPoloResearchLab/safecall/internal/auth"
	"github.com/MarkoPoloResearchLab/safecall/internal/httpapi"
	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
	"github.com/MarkoPoloResearchLab/safecall/internal/notifications"
	"github.com/MarkoPoloResearchLab/safecall/internal/sos"
	"github.com/MarkoPoloResearchLab/safecall/internal/storage"
	"github.com/MarkoPoloResearchLab/safecall/internal/task"
)

const (
	promoteAdminsErrorMessage = "promote bootstrap admins"
	approvalRuleErrorMessage  = "approval rule"
	accountsErrorMessage      = "accounts service"
	googleSignInErrorMessage  = "google sign-in"

	logEventApprovalRule = "approval_rule"
	logFieldExpression   = "expression"

	httpMethodGet     = "GET"
	httpMethodPost    = "POST"
	httpMethodPut     = "PUT"
	httpMethodDelete  = "DELETE"
	httpMethodOptions = "OPTIONS"

	corsHeaderContentType = "Content-Type"
	corsHeaderOrigin      = "Origin"
	corsMaxAge            = 12 * time.Hour
)

var (
	corsAllowedMethods = []string{httpMethodGet, httpMethodPost, httpMethodPut, httpMethodDelete, httpMethodOptions}
	corsAllowedHeaders = []string{corsHeaderOrigin, corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType}
)

// serverComponents holds everything the HTTP server and background loop need.
type serverComponents struct {
	routes    routeHandlers
	scheduler *task.Scheduler
}

func assembleComponents(serverConfig ServerConfig, database *gorm.DB, logger *zap.Logger) (*serverComponents, error) {
	if promoteErr := storage.PromoteBootstrapAdmins(database, serverConfig.AdminEmails); promoteErr != nil {
		return nil, fmt.Errorf("%s: %w", promoteAdminsErrorMessage, promoteErr)
	}

	session.NewSession([]byte(serverConfig.SessionSecret))

	policy, policyErr := approval.NewPolicy(serverConfig.ApprovalRule)
	if policyErr != nil {
		return nil, fmt.Errorf("%s: %w", approvalRuleErrorMessage, policyErr)
	}
	if expression := policy.Expression(); expression != "" {
		logger.Info(logEventApprovalRule, zap.String(logFieldExpression, expression))
	}

	recorder := metrics.NewRecorder()
	accountService, accountsErr := accounts.NewService(accounts.Config{
		Database:        database,
		Policy:          policy,
		BootstrapAdmins: serverConfig.AdminEmails,
		Recorder:        recorder,
		Logger:          logger,
	})
	if accountsErr != nil {
		return nil, fmt.Errorf("%s: %w", accountsErrorMessage, accountsErr)
	}

	tracker := sos.NewTracker(serverConfig.SOSCountdown, nil)
	dispatcher := alerting.NewDispatcher(database, notifications.NewLogNotifier(logger), recorder, logger)
	sosService := sos.NewService(tracker, dispatcher)

	maintenance := task.NewMaintenance(task.MaintenanceConfig{
		Retention: task.NewAlertRetentionJob(database, logger, task.AlertRetentionConfig{RetentionDays: serverConfig.AlertRetentionDays}),
		Flows:     tracker,
		Recorder:  recorder,
		Logger:    logger,
	})

	var googleHandlers *auth.Handlers
	if serverConfig.GoogleSignInEnabled() {
		handlers, googleErr := auth.NewHandlers(auth.Config{
			GoogleClientID:     serverConfig.GoogleClientID,
			GoogleClientSecret: serverConfig.GoogleClientSecret,
			PublicBaseURL:      serverConfig.PublicBaseURL,
			LocalRedirectPath:  httpapi.PathHome,
			Scopes:             gauss.ScopeStrings(gauss.DefaultScopes),
			Logger:             logger,
		})
		if googleErr != nil {
			return nil, fmt.Errorf("%s: %w", googleSignInErrorMessage, googleErr)
		}
		googleHandlers = handlers
	}

	return &serverComponents{
		routes:    newRouteHandlers(database, accountService, sosService, recorder, googleHandlers, serverConfig.AllowedOrigins, logger),
		scheduler: task.NewScheduler(serverConfig.MaintenanceInterval, maintenance.Runner()),
	}, nil
}

func newRouteHandlers(
	database *gorm.DB,
	accountService *accounts.Service,
	sosService *sos.Service,
	recorder *metrics.Recorder,
	googleHandlers *auth.Handlers,
	allowedOrigins []string,
	logger *zap.Logger,
) routeHandlers {
	authManager := httpapi.NewAuthManager(accountService, logger)
	dashboardHandlers := httpapi.NewDashboardHandlers(database, logger)
	contactHandlers := httpapi.NewContactHandlers(database, logger)
	profileHandlers := httpapi.NewProfileHandlers(accountService, logger)
	adminHandlers := httpapi.NewAdminHandlers(accountService, logger)
	sosHandlers := httpapi.NewSOSHandlers(sosService, logger)

	return routeHandlers{
		authManager: authManager,
		web: httpapi.NewWebHandlers(httpapi.WebConfig{
			AuthManager:         authManager,
			Dashboard:           dashboardHandlers,
			Contacts:            contactHandlers,
			Profiles:            profileHandlers,
			Admin:               adminHandlers,
			SOS:                 sosHandlers,
			GoogleSignInEnabled: googleHandlers != nil,
			Logger:              logger,
		}),
		accounts:   httpapi.NewAccountHandlers(accountService, authManager, logger),
		contacts:   contactHandlers,
		profiles:   profileHandlers,
		dashboard:  dashboardHandlers,
		sos:        sosHandlers,
		admin:      adminHandlers,
		googleAuth: googleHandlers,
		metrics:    gin.WrapH(recorder.Handler()),
		apiCORS:    newAPICORS(allowedOrigins),
	}
}

// newAPICORS allows credentialed API calls from the configured origins. Without origins the API is same-origin only.
func newAPICORS(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		return nil
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
