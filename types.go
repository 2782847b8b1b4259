package authkit

import (
	"context"
	"time"
)

// Role is the platform role carried inside access tokens.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Channel identifies how a destination is reached.
type Channel uint8

const (
	ChannelEmail Channel = iota + 1
	ChannelSMS
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// UserRecord is the full account record exchanged with the
// CredentialStore. Accounts are never physically deleted; Active false
// means soft-deactivated.
type UserRecord struct {
	UserID        string
	Email         string
	Username      string
	Phone         string
	PasswordHash  string
	Role          Role
	Active        bool
	EmailVerified bool
	VerifiedAt    time.Time
	LastLoginAt   time.Time
	CreatedAt     time.Time
}

// Profile is the sanitized view of an account returned to callers.
// It never carries the password hash.
type Profile struct {
	UserID        string
	Email         string
	Username      string
	Phone         string
	Role          Role
	Active        bool
	EmailVerified bool
	VerifiedAt    time.Time
	LastLoginAt   time.Time
	CreatedAt     time.Time
}

func profileOf(u *UserRecord) Profile {
	return Profile{
		UserID:        u.UserID,
		Email:         u.Email,
		Username:      u.Username,
		Phone:         u.Phone,
		Role:          u.Role,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		VerifiedAt:    u.VerifiedAt,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// CreateUserInput is passed to CredentialStore.Create. The password
// arrives already hashed.
type CreateUserInput struct {
	Email        string
	Username     string
	Phone        string
	PasswordHash string
	Role         Role
	Active       bool
}

// CredentialStore is the durable account backend callers must
// implement. Uniqueness violations from Create must surface as
// ErrEmailExists or ErrUsernameExists so Register can report which
// identifier collided.
type CredentialStore interface {
	// FindByIdentifier resolves an account by email or username.
	// Missing accounts return ErrUserNotFound.
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)

	// FindByID resolves an account by its ID.
	FindByID(ctx context.Context, userID string) (*UserRecord, error)

	// FindByDestination resolves an account by the email address or
	// phone number an OTP was delivered to.
	FindByDestination(ctx context.Context, destination string) (*UserRecord, error)

	// Create persists a new account and returns it with UserID and
	// CreatedAt populated.
	Create(ctx context.Context, input CreateUserInput) (*UserRecord, error)

	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// MarkVerified stamps the verification flag and timestamp and
	// activates a pending account.
	MarkVerified(ctx context.Context, userID string, at time.Time) error

	// TouchLastLogin records a successful sign-in. Best effort; the
	// engine ignores its error.
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// PasswordHasher abstracts the one-way hash primitive. The default is
// the Argon2id implementation in the password package; cost is fixed at
// construction, not per call.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// RehashingHasher is optionally implemented by hashers that can detect
// hashes produced under outdated costs. The engine re-hashes on login
// when NeedsRehash reports true.
type RehashingHasher interface {
	PasswordHasher
	NeedsRehash(encodedHash string) (bool, error)
}

// Delivery is the provider acknowledgement for a sent notification.
type Delivery struct {
	MessageID string
}

// NotificationSender delivers codes and security notices. Both methods
// must return the provider-assigned message ID on success, for audit.
type NotificationSender interface {
	SendSMS(ctx context.Context, destination, message string) (Delivery, error)
	SendEmail(ctx context.Context, destination, subject, body string) (Delivery, error)
}

// TokenPair is the result of a successful authentication.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// RefreshResult carries the replacement access token. The refresh
// token is not rotated; callers keep using the one they presented.
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// LoginResult bundles the token pair with the sanitized account.
type LoginResult struct {
	Tokens TokenPair
	User   Profile
}

// LogoutCredential is a tagged token for Logout; build it with
// AccessLogout or RefreshLogout so the engine verifies the token
// against the kind it was presented as.
type LogoutCredential struct {
	token   string
	refresh bool
}

// AccessLogout wraps an access token for logout.
func AccessLogout(token string) LogoutCredential {
	return LogoutCredential{token: token}
}

// RefreshLogout wraps a refresh token for logout.
func RefreshLogout(token string) LogoutCredential {
	return LogoutCredential{token: token, refresh: true}
}
