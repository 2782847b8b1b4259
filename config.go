package authkit

import (
	"errors"
	"time"

	"github.com/classward/authkit/password"
	"github.com/classward/authkit/token"
)

// Config carries all engine tuning. Build one with DefaultConfig, adjust
// what the deployment needs, and treat it as immutable after Build.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	OTP      OTPConfig
	Password PasswordConfig
	Account  AccountConfig
	Notify   NotifyConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig configures signing and lifetimes. The signing material is
// process-wide configuration, never per request.
type TokenConfig struct {
	SigningMethod token.SigningMethod
	Secret        []byte // HS256
	PrivateKey    []byte // Ed25519, raw or PEM
	PublicKey     []byte // Ed25519, raw or PEM
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

type SessionConfig struct {
	RedisPrefix string
	// EpochTTL bounds how long a user-wide revocation epoch is kept.
	// Zero defaults to the refresh TTL.
	EpochTTL time.Duration
}

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	Digits      int
	// MaxIssuesPerWindow throttles code requests per destination.
	MaxIssuesPerWindow int
	IssueWindow        time.Duration
}

type PasswordConfig struct {
	Argon2 password.Config
	// MinLength is the policy floor for plaintext passwords.
	MinLength int
	// RehashOnLogin re-hashes verified passwords stored under weaker
	// costs than the current configuration.
	RehashOnLogin bool
}

type AccountConfig struct {
	// RequireVerification keeps new accounts pending until a
	// verification code is confirmed.
	RequireVerification bool
	// AutoCreateOnOTPLogin provisions an account when a verified OTP
	// login destination has no user yet.
	AutoCreateOnOTPLogin bool
	// DefaultRole is assigned to auto-created accounts.
	DefaultRole Role
}

type NotifyConfig struct {
	// SendTimeout bounds a single SendSMS/SendEmail call.
	SendTimeout time.Duration
	// DefaultCountryCode is prepended to national phone numbers.
	// Explicit configuration; there is no hardcoded region.
	DefaultCountryCode string
}

type SecurityConfig struct {
	ThrottleLoginByIP bool
	MaxLoginFailures  int
	LoginWindow       time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is full. Drops are counted.
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a development-friendly baseline. Deployments
// must still provide signing material.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: token.MethodHS256,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "authkit",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ak",
		},
		OTP: OTPConfig{
			TTL:                5 * time.Minute,
			MaxAttempts:        5,
			Digits:             6,
			MaxIssuesPerWindow: 3,
			IssueWindow:        10 * time.Minute,
		},
		Password: PasswordConfig{
			Argon2:        password.DefaultConfig(),
			MinLength:     10,
			RehashOnLogin: true,
		},
		Account: AccountConfig{
			RequireVerification:  false,
			AutoCreateOnOTPLogin: true,
			DefaultRole:          RoleStudent,
		},
		Notify: NotifyConfig{
			SendTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			ThrottleLoginByIP: true,
			MaxLoginFailures:  10,
			LoginWindow:       15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations that would weaken the deployment.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	switch c.Token.SigningMethod {
	case token.MethodHS256:
		if len(c.Token.Secret) < 32 {
			return errors.New("hs256 secret must be at least 32 bytes")
		}
	case token.MethodEd25519:
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires both keys")
		}
	default:
		return errors.New("unknown signing method")
	}

	if c.OTP.TTL < 30*time.Second || c.OTP.TTL > time.Hour {
		return errors.New("otp ttl must be between 30s and 1h")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 20 {
		return errors.New("otp max attempts must be between 1 and 20")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.MaxIssuesPerWindow < 1 || c.OTP.IssueWindow <= 0 {
		return errors.New("otp issue throttle must be positive")
	}

	if c.Password.MinLength < 8 {
		return errors.New("password min length must be at least 8")
	}

	if c.Account.DefaultRole != "" && !c.Account.DefaultRole.Valid() {
		return errors.New("invalid default role")
	}
	if c.Account.AutoCreateOnOTPLogin && c.Account.DefaultRole == "" {
		return errors.New("auto-create requires a default role")
	}

	if c.Notify.SendTimeout <= 0 {
		return errors.New("notification send timeout must be positive")
	}

	if c.Security.MaxLoginFailures < 1 || c.Security.LoginWindow <= 0 {
		return errors.New("login throttle must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be positive")
	}

	return nil
}

func (c *Config) tokenConfig() token.Config {
	return token.Config{
		SigningMethod: c.Token.SigningMethod,
		Secret:        c.Token.Secret,
		PrivateKey:    c.Token.PrivateKey,
		PublicKey:     c.Token.PublicKey,
		AccessTTL:     c.Token.AccessTTL,
		RefreshTTL:    c.Token.RefreshTTL,
		Issuer:        c.Token.Issuer,
		Leeway:        c.Token.Leeway,
	}
}

func (c *Config) epochTTL() time.Duration {
	if c.Session.EpochTTL > 0 {
		return c.Session.EpochTTL
	}
	return c.Token.RefreshTTL
}
