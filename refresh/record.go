package refresh

import (
	"strconv"
	"time"
)

// Record is the persisted state of one refresh token.
type Record struct {
	TokenHash       string
	UserID          string
	FamilyID        string
	SessionID       string
	FamilyExpiresAt time.Time
	IssuedAt        time.Time
	ExpiresAt       time.Time
	Revoked         bool
	ReplacedBy      string
	ClientIP        string
	UserAgent       string
}

// Valid reports whether the token may still be exchanged at now.
func (r *Record) Valid(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}

// WasRotated reports whether the token already has a successor.
func (r *Record) WasRotated() bool {
	return r != nil && r.ReplacedBy != ""
}

func (r *Record) fields() []interface{} {
	return []interface{}{
		"user_id", r.UserID,
		"family_id", r.FamilyID,
		"session_id", r.SessionID,
		"family_expires_at", formatMillis(r.FamilyExpiresAt),
		"issued_at", formatMillis(r.IssuedAt),
		"expires_at", formatMillis(r.ExpiresAt),
		"revoked", formatBool(r.Revoked),
		"replaced_by", r.ReplacedBy,
		"client_ip", r.ClientIP,
		"user_agent", r.UserAgent,
	}
}

func recordFromHash(hash string, m map[string]string) (*Record, error) {
	rec := &Record{
		TokenHash:  hash,
		UserID:     m["user_id"],
		FamilyID:   m["family_id"],
		SessionID:  m["session_id"],
		Revoked:    m["revoked"] == "1",
		ReplacedBy: m["replaced_by"],
		ClientIP:   m["client_ip"],
		UserAgent:  m["user_agent"],
	}
	if rec.UserID == "" || rec.FamilyID == "" {
		return nil, ErrRecordCorrupt
	}

	var err error
	if rec.FamilyExpiresAt, err = parseMillis(m["family_expires_at"]); err != nil {
		return nil, err
	}
	if rec.IssuedAt, err = parseMillis(m["issued_at"]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseMillis(m["expires_at"]); err != nil {
		return nil, err
	}
	return rec, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, ErrRecordCorrupt
	}
	return time.UnixMilli(ms), nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
