package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StaticKeyID is the kid stamped on tokens signed with the statically configured secret.
const StaticKeyID = "static"

const minSecretSize = 32

var (
	ErrNoVerificationKeys = errors.New("no verification keys")
	ErrUnknownKeyID       = errors.New("unknown kid")
	ErrIATInFuture        = errors.New("token iat too far in the future")
)

// Key is one symmetric HS256 secret and the id it is published under.
type Key struct {
	ID     string
	Secret []byte
}

// Config controls access-token lifetimes and claim validation.
type Config struct {
	AccessTTL    time.Duration
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Manager mints and parses access tokens. It is safe for concurrent use.
type Manager struct {
	config Config
}

// Subject carries the identity data embedded in an access token.
type Subject struct {
	UserID    string
	Role      string
	SessionID string
}

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Role       string `json:"role,omitempty"`
	SID        string `json:"sid"`
	IssuedAtMs int64  `json:"iat_ms"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// Leeway returns the configured expiry leeway.
func (j *Manager) Leeway() time.Duration {
	return j.config.Leeway
}

// CreateAccess signs a new access token for sub with key. The returned claims
// are exactly what was signed.
func (j *Manager) CreateAccess(sub Subject, key Key) (string, *AccessClaims, error) {
	if err := checkKey(key); err != nil {
		return "", nil, err
	}
	if sub.UserID == "" {
		return "", nil, errors.New("empty subject")
	}

	now := j.config.Now()
	claims := &AccessClaims{
		Role:       sub.Role,
		SID:        sub.SessionID,
		IssuedAtMs: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID

	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies tokenStr against keys and validates its registered claims.
//
// The kid header selects the key. Tokens without a kid are tried against every
// key in order. A kid that matches none of keys is rejected, which is how a
// key that left the overlap window stops verifying.
func (j *Manager) ParseAccess(tokenStr string, keys []Key) (*AccessClaims, error) {
	if len(keys) == 0 {
		return nil, ErrNoVerificationKeys
	}

	parser := jwt.NewParser(j.parserOptions()...)
	kid := headerKeyID(tokenStr)

	var (
		token *jwt.Token
		err   error
	)
	if kid != "" {
		key, ok := findKey(keys, kid)
		if !ok {
			return nil, ErrUnknownKeyID
		}
		token, err = parser.ParseWithClaims(tokenStr, &AccessClaims{}, keyFunc(key))
	} else {
		for _, key := range keys {
			token, err = parser.ParseWithClaims(tokenStr, &AccessClaims{}, keyFunc(key))
			if err == nil || !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, ErrIATInFuture
		}
	}
	if claims.IssuedAtMs == 0 && claims.IssuedAt != nil {
		claims.IssuedAtMs = claims.IssuedAt.Time.UnixMilli()
	}

	return claims, nil
}

// ParseUnverified decodes claims without checking the signature or expiry.
// It is only suitable for deny-list decisions, never for authentication.
func (j *Manager) ParseUnverified(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *Manager) parserOptions() []jwt.ParserOption {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	return options
}

func keyFunc(key Key) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key.Secret, nil
	}
}

func headerKeyID(tokenStr string) string {
	token, _, err := jwt.NewParser().ParseUnverified(tokenStr, &jwt.RegisteredClaims{})
	if err != nil || token == nil {
		return ""
	}
	kid, _ := token.Header["kid"].(string)
	return kid
}

func findKey(keys []Key, kid string) (Key, bool) {
	for _, k := range keys {
		if k.ID == kid {
			return k, true
		}
	}
	return Key{}, false
}

func checkKey(key Key) error {
	if strings.TrimSpace(key.ID) == "" {
		return errors.New("signing key has empty id")
	}
	if len(key.Secret) < minSecretSize {
		return errors.New("signing key secret too short")
	}
	return nil
}
