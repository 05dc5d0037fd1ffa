package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	noAlertsLabel         = "No alerts"
	lastAlertLabelLayout  = "Jan 2, 2006 15:04 MST"
	alertOwnerCondition   = "profile_id = ?"
	latestAlertOrder      = "created_at desc, id desc"
	logEventLoadDashboard = "load_dashboard"
	dashboardSummaryError = "load dashboard summary"
)

// DashboardHandlers reports the caller's contact count and most recent alert.
type DashboardHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

func NewDashboardHandlers(database *gorm.DB, logger *zap.Logger) *DashboardHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandlers{database: database, logger: logger}
}

type dashboardSummary struct {
	ContactCount   int64  `json:"contact_count"`
	ContactLimit   int    `json:"contact_limit"`
	LastAlertAt    *int64 `json:"last_alert_at"`
	LastAlertLabel string `json:"last_alert_label"`
}

func (handlers *DashboardHandlers) Summary(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	summary, summaryErr := handlers.loadSummary(context.Request.Context(), currentUser.ProfileID)
	if summaryErr != nil {
		handlers.logger.Warn(logEventLoadDashboard, zap.String(logFieldProfileID, currentUser.ProfileID), zap.Error(summaryErr))
		respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
		return
	}
	context.JSON(http.StatusOK, summary)
}

func (handlers *DashboardHandlers) loadSummary(ctx context.Context, profileID string) (dashboardSummary, error) {
	summary := dashboardSummary{ContactLimit: model.MaxEmergencyContacts, LastAlertLabel: noAlertsLabel}

	database := handlers.database.WithContext(ctx)
	if countErr := database.Model(&model.EmergencyContact{}).Where(contactOwnerCondition, profileID).Count(&summary.ContactCount).Error; countErr != nil {
		return dashboardSummary{}, fmt.Errorf("%s: %w", dashboardSummaryError, countErr)
	}

	var latest model.AlertLog
	latestErr := database.Where(alertOwnerCondition, profileID).Order(latestAlertOrder).First(&latest).Error
	if errors.Is(latestErr, gorm.ErrRecordNotFound) {
		return summary, nil
	}
	if latestErr != nil {
		return dashboardSummary{}, fmt.Errorf("%s: %w", dashboardSummaryError, latestErr)
	}
	createdAt := latest.CreatedAt.Unix()
	summary.LastAlertAt = &createdAt
	summary.LastAlertLabel = formatAlertTime(latest.CreatedAt)
	return summary, nil
}

// formatAlertTime renders the server-side fallback; pages localize it in the browser.
func formatAlertTime(moment time.Time) string {
	return moment.UTC().Format(lastAlertLabelLayout)
}
