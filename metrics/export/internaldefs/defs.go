package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricIssueSuccess, Name: "gotoken_issue_success_total", Help: "Token pairs issued."},
	{ID: goToken.MetricIssueFailure, Name: "gotoken_issue_failure_total", Help: "Failed token pair issues."},
	{ID: goToken.MetricIssuePairReused, Name: "gotoken_issue_pair_reused_total", Help: "Cached token pairs returned by IssueOrReuse."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goToken.MetricRefreshInvalid, Name: "gotoken_refresh_invalid_total", Help: "Refresh tokens rejected as unknown, malformed or expired."},
	{ID: goToken.MetricRefreshReuseDetected, Name: "gotoken_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: goToken.MetricRefreshUserNotFound, Name: "gotoken_refresh_user_not_found_total", Help: "Refreshes for users that no longer exist."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Refreshes that failed on a store or signing error."},
	{ID: goToken.MetricValidateSuccess, Name: "gotoken_validate_success_total", Help: "Accepted access tokens."},
	{ID: goToken.MetricValidateFailure, Name: "gotoken_validate_failure_total", Help: "Rejected access tokens."},
	{ID: goToken.MetricValidateStoreError, Name: "gotoken_validate_store_error_total", Help: "Validations that failed closed on a store error."},
	{ID: goToken.MetricBlacklisted, Name: "gotoken_blacklisted_total", Help: "Blacklisted access tokens."},
	{ID: goToken.MetricSessionInvalidated, Name: "gotoken_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: goToken.MetricGlobalInvalidation, Name: "gotoken_global_invalidation_total", Help: "Global access token invalidations."},
	{ID: goToken.MetricUserInvalidation, Name: "gotoken_user_invalidation_total", Help: "Per-user access token invalidations."},
	{ID: goToken.MetricLogout, Name: "gotoken_logout_total", Help: "Single-session logout operations."},
	{ID: goToken.MetricLogoutAll, Name: "gotoken_logout_all_total", Help: "Logout-all operations."},
	{ID: goToken.MetricKeyRotation, Name: "gotoken_key_rotation_total", Help: "Signing key rotations performed by this instance."},
	{ID: goToken.MetricKeyRotationFailure, Name: "gotoken_key_rotation_failure_total", Help: "Failed signing key rotations."},
	{ID: goToken.MetricKeyringDegraded, Name: "gotoken_keyring_degraded_total", Help: "Transitions into static key mode."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricValidateLatency, Name: "gotoken_validate_latency_seconds", Help: "Validate latency histogram."},
	{ID: goToken.MetricRefreshLatency, Name: "gotoken_refresh_latency_seconds", Help: "Refresh rotation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters that flatten buckets
// into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
