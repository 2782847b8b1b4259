package internaldefs

import (
	authkit "github.com/classward/authkit"
)

// CounterDef binds a MetricID to its exported name, shared by every
// exporter so Prometheus and OTel stay in lockstep.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authkit.MetricRegisterSuccess, Name: "authkit_register_success_total", Help: "Successful account registrations."},
	{ID: authkit.MetricRegisterDuplicate, Name: "authkit_register_duplicate_total", Help: "Registrations rejected for duplicate email or username."},
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful password logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed password logins."},
	{ID: authkit.MetricLoginRateLimited, Name: "authkit_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkit.MetricOTPIssued, Name: "authkit_otp_issued_total", Help: "One-time codes issued and delivered."},
	{ID: authkit.MetricOTPSendFailure, Name: "authkit_otp_send_failure_total", Help: "One-time code deliveries that failed."},
	{ID: authkit.MetricOTPRateLimited, Name: "authkit_otp_rate_limited_total", Help: "Rate-limited code requests."},
	{ID: authkit.MetricOTPLoginSuccess, Name: "authkit_otp_login_success_total", Help: "Successful OTP logins."},
	{ID: authkit.MetricOTPLoginFailure, Name: "authkit_otp_login_failure_total", Help: "Failed OTP logins."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful token refreshes."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: authkit.MetricLogoutSuccess, Name: "authkit_logout_success_total", Help: "Successful logouts."},
	{ID: authkit.MetricLogoutReplay, Name: "authkit_logout_replay_total", Help: "Logouts of already-invalidated tokens."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Session records created."},
	{ID: authkit.MetricSessionInvalidated, Name: "authkit_session_invalidated_total", Help: "Session invalidation operations."},
	{ID: authkit.MetricPasswordResetRequest, Name: "authkit_password_reset_request_total", Help: "Password reset requests."},
	{ID: authkit.MetricPasswordResetSuccess, Name: "authkit_password_reset_success_total", Help: "Completed password resets."},
	{ID: authkit.MetricPasswordResetFailure, Name: "authkit_password_reset_failure_total", Help: "Failed password reset confirmations."},
	{ID: authkit.MetricVerificationRequest, Name: "authkit_verification_request_total", Help: "Verification code requests."},
	{ID: authkit.MetricVerificationSuccess, Name: "authkit_verification_success_total", Help: "Completed verifications."},
	{ID: authkit.MetricVerificationFailure, Name: "authkit_verification_failure_total", Help: "Failed verification confirmations."},
}

var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricVerifyLatency, Name: "authkit_verify_latency_seconds", Help: "Token verification latency histogram."},
}

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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exporters expose.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
