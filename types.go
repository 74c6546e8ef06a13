package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/internal"
	"github.com/MrEthical07/goToken/keyring"
)

// NewSessionID returns a random 128-bit session id, base64url encoded.
func NewSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

// User is what the engine needs to know about a token subject.
type User struct {
	ID   string
	Role string
}

// UserProvider looks users up by id. Implementations return an error
// matching ErrUserNotFound for unknown or inactive users.
type UserProvider interface {
	FindByID(ctx context.Context, userID string) (User, error)
}

// UserProviderFunc adapts a function to [UserProvider].
type UserProviderFunc func(ctx context.Context, userID string) (User, error)

func (f UserProviderFunc) FindByID(ctx context.Context, userID string) (User, error) {
	return f(ctx, userID)
}

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access-token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Claims is the validated content of an access token.
type Claims struct {
	UserID    string
	Role      string
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RotationStatus is the public view of the signing-key rotation state.
type RotationStatus struct {
	Enabled       bool          `json:"enabled"`
	Interval      time.Duration `json:"interval"`
	Overlap       time.Duration `json:"overlap"`
	CurrentKeyID  string        `json:"current_key_id"`
	NextRotation  time.Time     `json:"next_rotation,omitempty"`
	ValidKeyCount int           `json:"valid_key_count"`
	State         string        `json:"state"`
}

// RefreshTokenInfo describes one stored refresh token. The token value is
// never returned; TokenHash identifies it.
type RefreshTokenInfo struct {
	TokenHash string
	FamilyID  string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	Rotated   bool
	ClientIP  string
	UserAgent string
}

// HealthStatus is returned by [Engine.Health].
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	KeyringState   string
	AuditDropped   uint64
	AuditFailed    uint64
}

func rotationStatusFrom(s keyring.Status) RotationStatus {
	return RotationStatus{
		Enabled:       s.Enabled,
		Interval:      s.Interval,
		Overlap:       s.Overlap,
		CurrentKeyID:  s.CurrentKeyID,
		NextRotation:  s.NextRotation,
		ValidKeyCount: s.ValidKeyCount,
		State:         s.State.String(),
	}
}
