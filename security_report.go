package goToken

import "time"

type SecurityReport struct {
	SigningAlgorithm      string
	RotationEnabled       bool
	RotationInterval      time.Duration
	VerificationOverlap   time.Duration
	FailOpen              bool
	AccessTTL             time.Duration
	Leeway                time.Duration
	RefreshTTL            time.Duration
	FamilyLifetime        time.Duration
	ReuseDetectionEnabled bool
	SessionLimit          int
	AuditEnabled          bool
	Warnings              []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:      "HS256",
		RotationEnabled:       e.config.Keys.RotationEnabled,
		RotationInterval:      e.config.Keys.Interval,
		VerificationOverlap:   e.config.Keys.Overlap,
		FailOpen:              e.config.Keys.FailOpen,
		AccessTTL:             e.config.JWT.AccessTTL,
		Leeway:                e.config.JWT.Leeway,
		RefreshTTL:            e.config.Refresh.TTL,
		FamilyLifetime:        e.config.Refresh.FamilyLifetime,
		ReuseDetectionEnabled: true,
		SessionLimit:          e.config.Refresh.MaxActivePerUser,
		AuditEnabled:          e.config.Audit.Enabled,
		Warnings:              e.config.Lint().Codes(),
	}
}
