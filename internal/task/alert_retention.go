package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	pruneAlertLogsError      = "task: prune alert logs"
	alertLogsCutoffCondition = "created_at < ?"
)

// AlertRetentionConfig defines how long alert logs are kept.
type AlertRetentionConfig struct {
	RetentionDays int
}

// AlertRetentionJob deletes alert logs older than the retention window.
type AlertRetentionJob struct {
	database *gorm.DB
	logger   *zap.Logger
	config   AlertRetentionConfig
	clock    func() time.Time
}

// NewAlertRetentionJob builds an AlertRetentionJob.
func NewAlertRetentionJob(database *gorm.DB, logger *zap.Logger, config AlertRetentionConfig) *AlertRetentionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertRetentionJob{
		database: database,
		logger:   logger,
		config:   config,
		clock:    time.Now,
	}
}

// Enabled reports whether the job prunes anything.
func (job *AlertRetentionJob) Enabled() bool {
	return job != nil && job.config.RetentionDays > 0
}

// Cutoff returns the instant before which alert logs are removed.
func (job *AlertRetentionJob) Cutoff() time.Time {
	return job.clock().UTC().AddDate(0, 0, -job.config.RetentionDays)
}

// Run deletes expired alert logs and reports how many rows were removed.
func (job *AlertRetentionJob) Run(ctx context.Context) (int64, error) {
	if !job.Enabled() {
		return 0, nil
	}
	result := job.database.WithContext(ctx).
		Where(alertLogsCutoffCondition, job.Cutoff()).
		Delete(&model.AlertLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("%s: %w", pruneAlertLogsError, result.Error)
	}
	return result.RowsAffected, nil
}
