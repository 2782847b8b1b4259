package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/classward/authkit"
	"github.com/classward/authkit/middleware"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = authkit.New

	var _ *authkit.Engine
	var _ authkit.Config
	var _ authkit.RegisterInput
	var _ authkit.LoginResult
	var _ authkit.RefreshResult
	var _ authkit.TokenPair
	var _ authkit.Profile
	var _ authkit.UserRecord
	var _ authkit.CredentialStore
	var _ authkit.PasswordHasher
	var _ authkit.NotificationSender
	var _ authkit.AuditSink
	var _ authkit.AuditEvent

	var _ error = authkit.ErrValidation
	var _ error = authkit.ErrEmailExists
	var _ error = authkit.ErrUsernameExists
	var _ error = authkit.ErrInvalidCredentials
	var _ error = authkit.ErrAccountDisabled
	var _ error = authkit.ErrAccountUnverified
	var _ error = authkit.ErrUserNotFound
	var _ error = authkit.ErrTokenInvalid
	var _ error = authkit.ErrTokenExpired
	var _ error = authkit.ErrTokenAlreadyInvalidated
	var _ error = authkit.ErrOTPExpired
	var _ error = authkit.ErrOTPMismatch
	var _ error = authkit.ErrOTPExhausted
	var _ error = authkit.ErrOTPAlreadyConsumed
	var _ error = authkit.ErrLoginRateLimited
	var _ error = authkit.ErrOTPRateLimited
	var _ error = authkit.ErrSessionInvalidationFailed
	var _ error = authkit.ErrUnavailable

	var _ func(*authkit.Engine) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*authkit.Engine, ...authkit.Role) func(http.Handler) http.Handler = middleware.RequireRole

	var _ func(*authkit.Engine, context.Context, authkit.RegisterInput) (*authkit.Profile, error) = (*authkit.Engine).Register
	var _ func(*authkit.Engine, context.Context, string, string) (*authkit.LoginResult, error) = (*authkit.Engine).Login
	var _ func(*authkit.Engine, context.Context, string) (*authkit.RefreshResult, error) = (*authkit.Engine).Refresh
	var _ func(*authkit.Engine, context.Context, authkit.LogoutCredential) error = (*authkit.Engine).Logout
	var _ func(*authkit.Engine, context.Context, string) error = (*authkit.Engine).RequestLoginOTP
	var _ func(*authkit.Engine, context.Context, string, string) (*authkit.LoginResult, error) = (*authkit.Engine).ConfirmLoginOTP
	var _ func(*authkit.Engine, context.Context, string) error = (*authkit.Engine).RequestPasswordReset
	var _ func(*authkit.Engine, context.Context, string, string, string) error = (*authkit.Engine).ConfirmPasswordReset
	var _ func(*authkit.Engine, context.Context, string) error = (*authkit.Engine).RequestVerification
	var _ func(*authkit.Engine, context.Context, string, string) (*authkit.Profile, error) = (*authkit.Engine).ConfirmVerification
}
