package authkit

import (
	"context"
	"errors"
	"fmt"
)

// RegisterInput is the caller-supplied account request. Role defaults
// to the configured default when empty.
type RegisterInput struct {
	Email    string
	Username string
	Phone    string
	Password string
	Role     Role
}

// Register creates an account. The email and username must be unique;
// collisions surface as ErrEmailExists or ErrUsernameExists so callers
// can report which identifier is taken. The returned profile never
// carries the password hash.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*Profile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	username, err := normalizeUsername(input.Username)
	if err != nil {
		return nil, err
	}

	phone := ""
	if input.Phone != "" {
		phone, err = normalizePhone(input.Phone, e.config.Notify.DefaultCountryCode)
		if err != nil {
			return nil, err
		}
	}

	role := input.Role
	if role == "" {
		role = e.config.Account.DefaultRole
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, input.Role)
	}

	if err := validatePassword(input.Password, e.config.Password.MinLength); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user, err := e.store.Create(ctx, CreateUserInput{
		Email:        email,
		Username:     username,
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailExists), errors.Is(err, ErrUsernameExists):
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, AuditEvent{EventType: AuditRegister, Error: ErrorCode(err)})
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: AuditRegister, UserID: user.UserID, Success: true})

	profile := profileOf(user)
	return &profile, nil
}
