package authkit

import "errors"

var (
	// ErrValidation covers malformed or policy-violating input: bad email
	// shape, weak password, unknown role, empty identifier.
	ErrValidation = errors.New("validation failed")

	// ErrEmailExists is returned by Register when the email is taken.
	ErrEmailExists = errors.New("email already registered")

	// ErrUsernameExists is returned by Register when the username is taken.
	ErrUsernameExists = errors.New("username already registered")

	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password, deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled means the account exists but sign-in is blocked.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountUnverified means the account has not completed verification
	// and the deployment requires it.
	ErrAccountUnverified = errors.New("account unverified")

	// ErrUserNotFound is returned by non-login lookups that may reveal
	// account existence.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenInvalid covers malformed tokens, bad signatures, and tokens
	// presented for the wrong use.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired means the token was valid but is past its lifetime.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenAlreadyInvalidated is returned by Logout for a token that was
	// already revoked.
	ErrTokenAlreadyInvalidated = errors.New("token already invalidated")

	// ErrOTPExpired means no live code exists for the destination.
	ErrOTPExpired = errors.New("otp expired")

	// ErrOTPMismatch means the supplied code was wrong; the attempt counted.
	ErrOTPMismatch = errors.New("otp mismatch")

	// ErrOTPExhausted means the attempt budget is spent and the code is
	// locked until it expires.
	ErrOTPExhausted = errors.New("otp attempts exhausted")

	// ErrOTPAlreadyConsumed means the code verified once already.
	ErrOTPAlreadyConsumed = errors.New("otp already consumed")

	// ErrLoginRateLimited throttles repeated failed logins.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrOTPRateLimited throttles repeated code requests per destination.
	ErrOTPRateLimited = errors.New("otp rate limited")

	// ErrUnavailable wraps downstream failures: Redis, the credential
	// store, or the notification sender.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout means a notification send exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInternal covers unexpected failures that carry no caller-actionable
	// detail.
	ErrInternal = errors.New("internal error")

	// ErrEngineNotReady is returned when the engine is nil or was not built.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrSessionInvalidationFailed means a revocation write failed and the
	// caller should retry.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
)

// ErrorCode maps an engine error to a stable machine-readable code for
// transport layers. Unknown errors map to "internal_error" so internal
// detail is never surfaced verbatim.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrEmailExists):
		return "email_exists"
	case errors.Is(err, ErrUsernameExists):
		return "username_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrAccountUnverified):
		return "account_unverified"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenAlreadyInvalidated):
		return "token_already_invalidated"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrOTPExpired):
		return "otp_expired"
	case errors.Is(err, ErrOTPMismatch):
		return "otp_mismatch"
	case errors.Is(err, ErrOTPExhausted):
		return "otp_exhausted"
	case errors.Is(err, ErrOTPAlreadyConsumed):
		return "otp_already_consumed"
	case errors.Is(err, ErrLoginRateLimited):
		return "login_rate_limited"
	case errors.Is(err, ErrOTPRateLimited):
		return "otp_rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready"
	case errors.Is(err, ErrSessionInvalidationFailed):
		return "session_invalidation_failed"
	default:
		return "internal_error"
	}
}
