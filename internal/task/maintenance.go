package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
)

const (
	logEventPruneAlertLogs = "prune_alert_logs"
	logEventSweepFlows     = "sweep_sos_flows"
	logFieldRemoved        = "removed"

	// DefaultFlowIdleAge is how long an idle SOS flow stays in memory.
	DefaultFlowIdleAge = 30 * time.Minute
)

// FlowSweeper forgets idle SOS flows.
type FlowSweeper interface {
	SweepIdle(maxAge time.Duration) int
	Len() int
}

// MaintenanceConfig lists the work done on each maintenance pass.
type MaintenanceConfig struct {
	Retention   *AlertRetentionJob
	Flows       FlowSweeper
	FlowIdleAge time.Duration
	Recorder    *metrics.Recorder
	Logger      *zap.Logger
}

// Maintenance prunes expired alert logs and sweeps idle SOS flows.
type Maintenance struct {
	config MaintenanceConfig
}

// NewMaintenance builds a Maintenance pass.
func NewMaintenance(config MaintenanceConfig) *Maintenance {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.FlowIdleAge <= 0 {
		config.FlowIdleAge = DefaultFlowIdleAge
	}
	return &Maintenance{config: config}
}

// Run performs one pass. Failures are logged so the scheduler keeps running.
func (maintenance *Maintenance) Run(ctx context.Context) {
	if maintenance.config.Retention.Enabled() {
		removed, pruneErr := maintenance.config.Retention.Run(ctx)
		if pruneErr != nil {
			maintenance.config.Logger.Warn(logEventPruneAlertLogs, zap.Error(pruneErr))
		} else {
			maintenance.config.Recorder.AlertLogsPruned(removed)
			if removed > 0 {
				maintenance.config.Logger.Info(logEventPruneAlertLogs, zap.Int64(logFieldRemoved, removed))
			}
		}
	}

	if maintenance.config.Flows != nil {
		swept := maintenance.config.Flows.SweepIdle(maintenance.config.FlowIdleAge)
		maintenance.config.Recorder.FlowsSwept(swept)
		maintenance.config.Recorder.FlowsActive(maintenance.config.Flows.Len())
		if swept > 0 {
			maintenance.config.Logger.Debug(logEventSweepFlows, zap.Int(logFieldRemoved, swept))
		}
	}
}

// Runner adapts the pass for a Scheduler.
func (maintenance *Maintenance) Runner() RunnerFunc {
	return maintenance.Run
}
