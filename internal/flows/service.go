package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/refresh"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Issue.Keys != nil
}

func (s Service) Issue(ctx context.Context, req IssueRequest) IssueResult {
	return RunIssue(ctx, req, s.deps.Issue)
}

func (s Service) IssueOrReuse(ctx context.Context, req IssueRequest) IssueResult {
	return RunIssueOrReuse(ctx, req, s.deps.Issue)
}

func (s Service) RotateRefresh(ctx context.Context, req RefreshRequest) RefreshResult {
	return RunRotateRefresh(ctx, req, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Verify(ctx context.Context, tokenStr string) (*jwt.AccessClaims, ValidateResult) {
	return RunVerify(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, sessionID string) LogoutResult {
	return RunLogout(ctx, sessionID, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	return RunLogoutAll(ctx, userID, s.deps.Logout)
}

func (s Service) ListRefreshTokens(ctx context.Context, userID string) ([]*refresh.Record, error) {
	return RunListRefreshTokens(ctx, userID, s.deps.Introspection)
}

func (s Service) CountActiveRefreshTokens(ctx context.Context, userID string) (int, error) {
	return RunCountActiveRefreshTokens(ctx, userID, s.deps.Introspection)
}

func (s Service) Health(ctx context.Context) (bool, time.Duration) {
	return RunHealth(ctx, s.deps.Introspection)
}
