package goToken

import (
	"time"

	internalmetrics "github.com/MrEthical07/goToken/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricIssueSuccess         = MetricID(internalmetrics.MetricIssueSuccess)
	MetricIssueFailure         = MetricID(internalmetrics.MetricIssueFailure)
	MetricIssuePairReused      = MetricID(internalmetrics.MetricIssuePairReused)
	MetricRefreshSuccess       = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshInvalid       = MetricID(internalmetrics.MetricRefreshInvalid)
	MetricRefreshReuseDetected = MetricID(internalmetrics.MetricRefreshReuseDetected)
	MetricRefreshUserNotFound  = MetricID(internalmetrics.MetricRefreshUserNotFound)
	MetricRefreshFailure       = MetricID(internalmetrics.MetricRefreshFailure)
	MetricValidateSuccess      = MetricID(internalmetrics.MetricValidateSuccess)
	MetricValidateFailure      = MetricID(internalmetrics.MetricValidateFailure)
	MetricValidateStoreError   = MetricID(internalmetrics.MetricValidateStoreError)
	MetricBlacklisted          = MetricID(internalmetrics.MetricBlacklisted)
	MetricSessionInvalidated   = MetricID(internalmetrics.MetricSessionInvalidated)
	MetricGlobalInvalidation   = MetricID(internalmetrics.MetricGlobalInvalidation)
	MetricUserInvalidation     = MetricID(internalmetrics.MetricUserInvalidation)
	MetricLogout               = MetricID(internalmetrics.MetricLogout)
	MetricLogoutAll            = MetricID(internalmetrics.MetricLogoutAll)
	MetricKeyRotation          = MetricID(internalmetrics.MetricKeyRotation)
	MetricKeyRotationFailure   = MetricID(internalmetrics.MetricKeyRotationFailure)
	MetricKeyringDegraded      = MetricID(internalmetrics.MetricKeyringDegraded)
	// MetricValidateLatency and MetricRefreshLatency are histograms.
	MetricValidateLatency = MetricID(internalmetrics.MetricValidateLatency)
	MetricRefreshLatency  = MetricID(internalmetrics.MetricRefreshLatency)
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
