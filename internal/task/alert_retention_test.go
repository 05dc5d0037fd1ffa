package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	dbtestutil "github.com/MarkoPoloResearchLab/safecall/internal/testutil"
)

const testRetentionProfileID = "retention-profile"

func createAlertLogAt(testingT *testing.T, database *gorm.DB, createdAt time.Time) model.AlertLog {
	testingT.Helper()
	alertLog, err := model.NewAlertLog(model.AlertLogInput{ProfileID: testRetentionProfileID, Latitude: 1, Longitude: 2})
	require.NoError(testingT, err)
	alertLog.CreatedAt = createdAt
	require.NoError(testingT, database.Create(&alertLog).Error)
	return alertLog
}

func TestAlertRetentionJobPrunesExpiredLogs(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	now := time.Now().UTC()
	createAlertLogAt(t, database, now.Add(-72*time.Hour))
	createAlertLogAt(t, database, now.Add(-49*time.Hour))
	recent := createAlertLogAt(t, database, now.Add(-time.Hour))

	job := NewAlertRetentionJob(database, nil, AlertRetentionConfig{RetentionDays: 2})
	removed, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	var remaining []model.AlertLog
	require.NoError(t, database.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, recent.ID, remaining[0].ID)
}

func TestAlertRetentionJobDisabledKeepsEverything(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	createAlertLogAt(t, database, time.Now().UTC().Add(-365*24*time.Hour))

	job := NewAlertRetentionJob(database, nil, AlertRetentionConfig{})
	require.False(t, job.Enabled())
	removed, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	var nilJob *AlertRetentionJob
	require.False(t, nilJob.Enabled())
}

func TestAlertRetentionJobCutoffUsesClock(t *testing.T) {
	job := NewAlertRetentionJob(nil, nil, AlertRetentionConfig{RetentionDays: 3})
	fixedNow := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixedNow }
	require.Equal(t, fixedNow.Add(-72*time.Hour), job.Cutoff())
}

func TestAlertRetentionJobLongWindowKeepsRecentLogs(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	now := time.Now().UTC()
	createAlertLogAt(t, database, now.Add(-time.Hour))
	createAlertLogAt(t, database, now.AddDate(-5, 0, 0))

	job := NewAlertRetentionJob(database, nil, AlertRetentionConfig{RetentionDays: 200000})
	require.True(t, job.Cutoff().Before(now))

	removed, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	var count int64
	require.NoError(t, database.Model(&model.AlertLog{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestAlertRetentionJobReportsDatabaseErrors(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	sqlDatabase, err := database.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDatabase.Close())

	job := NewAlertRetentionJob(database, zap.NewNop(), AlertRetentionConfig{RetentionDays: 1})
	_, runErr := job.Run(context.Background())
	require.Error(t, runErr)
}

type countingSweeper struct {
	maxAges []time.Duration
	result  int
	active  int
}

func (sweeper *countingSweeper) Len() int {
	return sweeper.active
}

func (sweeper *countingSweeper) SweepIdle(maxAge time.Duration) int {
	sweeper.maxAges = append(sweeper.maxAges, maxAge)
	return sweeper.result
}

func TestMaintenanceRunsRetentionAndSweep(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	createAlertLogAt(t, database, time.Now().UTC().Add(-10*24*time.Hour))

	recorder := metrics.NewRecorder()
	sweeper := &countingSweeper{result: 4, active: 2}
	maintenance := NewMaintenance(MaintenanceConfig{
		Retention: NewAlertRetentionJob(database, nil, AlertRetentionConfig{RetentionDays: 7}),
		Flows:     sweeper,
		Recorder:  recorder,
	})

	maintenance.Runner()(context.Background())

	require.Equal(t, []time.Duration{DefaultFlowIdleAge}, sweeper.maxAges)

	expected := `
# HELP safecall_alert_logs_pruned_total Alert log rows removed by the retention job.
# TYPE safecall_alert_logs_pruned_total counter
safecall_alert_logs_pruned_total 1
# HELP safecall_sos_flows_active SOS flows held in memory after the last sweep.
# TYPE safecall_sos_flows_active gauge
safecall_sos_flows_active 2
# HELP safecall_sos_flows_swept_total Idle SOS flows removed from memory.
# TYPE safecall_sos_flows_swept_total counter
safecall_sos_flows_swept_total 4
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "safecall_alert_logs_pruned_total", "safecall_sos_flows_active", "safecall_sos_flows_swept_total"))
}

func TestMaintenanceWithoutJobsIsNoop(t *testing.T) {
	maintenance := NewMaintenance(MaintenanceConfig{})
	maintenance.Run(context.Background())
}
