package session

import "time"

// Session is one logical client session bound to a refresh-token family.
type Session struct {
	SessionID string
	UserID    string
	FamilyID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Pair is a cached token pair. UserID and FamilyID are kept so a cache hit can
// be checked against the caller.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"user_id"`
	FamilyID     string `json:"family_id,omitempty"`
}
