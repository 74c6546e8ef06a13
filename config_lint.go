package goToken

import "time"

// LintWarning is a configuration choice that is valid but risky.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports valid but risky settings. It never fails; run Validate first.
func (c Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT Leeway above 1m widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "JWT AccessTTL above 15m delays blacklist-free revocation")
	}
	if c.Refresh.TTL > 14*24*time.Hour {
		add("refresh_ttl_long", "Refresh TTL above 14d")
	}
	if !c.Keys.RotationEnabled {
		add("rotation_disabled", "signing key rotation is disabled; every token is signed with the static key")
	}
	if c.Keys.RotationEnabled && c.Keys.FailOpen {
		add("rotation_fail_open", "a keyring store outage falls back to the static key")
	}
	if c.Keys.RotationEnabled && c.Keys.Overlap < c.JWT.AccessTTL {
		add("overlap_shorter_than_access", "tokens signed just before a rotation stop verifying before they expire")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "reuse detection and invalidations are not audited")
	}
	if c.Refresh.MaxActivePerUser == 0 {
		add("session_limit_disabled", "no cap on concurrent refresh families per user")
	}
	return ws
}
