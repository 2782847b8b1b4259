package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classward/authkit/internal/rate"
	"github.com/classward/authkit/otp"
)

// RequestLoginOTP issues a single-use code for the destination (email
// address or phone number) and delivers it. Delivery failure surfaces
// as the overall result, since the caller cannot obtain the code any
// other way.
func (e *Engine) RequestLoginOTP(ctx context.Context, rawDestination string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	destination, channel, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return err
	}

	return e.sendCode(ctx, destination, channel, otp.PurposeLogin, AuditOTPRequest)
}

// ConfirmLoginOTP verifies a delivered code and signs the user in. When
// no account exists for the destination and auto-create is enabled, one
// is provisioned with the configured default role.
func (e *Engine) ConfirmLoginOTP(ctx context.Context, rawDestination, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	destination, channel, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	if _, err := e.otpStore.Verify(ctx, destination, otp.PurposeLogin, code); err != nil {
		e.metricInc(MetricOTPLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditOTPLogin, Destination: destination, Error: ErrorCode(mapOTPError(err))})
		return nil, mapOTPError(err)
	}

	user, err := e.store.FindByDestination(ctx, destination)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			if !e.config.Account.AutoCreateOnOTPLogin {
				return nil, ErrUserNotFound
			}
			user, err = e.autoCreate(ctx, destination, channel)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if !user.Active {
		e.metricInc(MetricOTPLoginFailure)
		return nil, ErrAccountDisabled
	}

	// The code proved ownership of the destination.
	if channel == ChannelEmail && !user.EmailVerified {
		if err := e.store.MarkVerified(ctx, user.UserID, time.Now()); err == nil {
			user.EmailVerified = true
			user.VerifiedAt = time.Now()
		}
	}

	pair, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditOTPLogin,
		UserID:      user.UserID,
		Destination: destination,
		SessionID:   pair.SessionID,
		Success:     true,
	})

	return &LoginResult{Tokens: pair, User: profileOf(user)}, nil
}

// autoCreate provisions an account for a destination that verified an
// OTP but has no user yet. The password slot is filled with a hash of
// random material, so password login stays impossible until a reset.
func (e *Engine) autoCreate(ctx context.Context, destination string, channel Channel) (*UserRecord, error) {
	input := CreateUserInput{
		Username: "user-" + strings.Split(uuid.NewString(), "-")[0],
		Role:     e.config.Account.DefaultRole,
		Active:   true,
	}
	switch channel {
	case ChannelEmail:
		input.Email = destination
	case ChannelSMS:
		input.Phone = destination
	}

	hash, err := e.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	input.PasswordHash = hash

	user, err := e.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return user, nil
}

// sendCode charges the issuance budget, mints a challenge, and
// delivers it over the destination's channel within the configured
// timeout.
func (e *Engine) sendCode(ctx context.Context, destination string, channel Channel, purpose otp.Purpose, auditType string) error {
	if err := e.checkOTPIssue(ctx, destination, auditType); err != nil {
		return err
	}
	return e.deliverCode(ctx, destination, channel, purpose, auditType)
}

// checkOTPIssue charges one code issuance against the destination's
// window. Flows that hide account existence charge the budget before
// the account lookup, so known and unknown destinations throttle on
// the same schedule.
func (e *Engine) checkOTPIssue(ctx context.Context, destination, auditType string) error {
	if err := e.limiter.CheckOTPIssue(ctx, destination); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			e.metricInc(MetricOTPRateLimited)
			e.emitAudit(ctx, AuditEvent{EventType: auditType, Destination: destination, Error: "rate limited"})
			return ErrOTPRateLimited
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// deliverCode mints a challenge and delivers it. The issuance budget
// must already have been charged.
func (e *Engine) deliverCode(ctx context.Context, destination string, channel Channel, purpose otp.Purpose, auditType string) error {
	code, _, err := e.otpStore.Issue(
		ctx,
		destination,
		purpose,
		e.config.OTP.Digits,
		e.config.OTP.TTL,
		e.config.OTP.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Notify.SendTimeout)
	defer cancel()

	var delivery Delivery
	switch channel {
	case ChannelSMS:
		delivery, err = e.sender.SendSMS(sendCtx, destination, codeMessage(code, purpose))
	default:
		delivery, err = e.sender.SendEmail(sendCtx, destination, codeSubject(purpose), codeMessage(code, purpose))
	}
	if err != nil {
		e.metricInc(MetricOTPSendFailure)
		e.emitAudit(ctx, AuditEvent{EventType: auditType, Destination: destination, Error: "delivery failed"})

		// An undeliverable code is useless; drop it so the attempt
		// budget is not consumed by a challenge nobody received. The
		// delivery classification wins over any cleanup failure.
		if cleanupErr := e.otpStore.Invalidate(ctx, destination, purpose); cleanupErr != nil {
			e.emitAudit(ctx, AuditEvent{EventType: auditType, Destination: destination, Error: "challenge cleanup failed"})
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: notification send", ErrTimeout)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditType,
		Destination: destination,
		Success:     true,
		Metadata:    map[string]string{"message_id": delivery.MessageID, "purpose": purpose.String()},
	})
	return nil
}

func codeSubject(purpose otp.Purpose) string {
	switch purpose {
	case otp.PurposePasswordReset:
		return "Your password reset code"
	case otp.PurposeVerification:
		return "Your verification code"
	default:
		return "Your sign-in code"
	}
}

func codeMessage(code string, purpose otp.Purpose) string {
	switch purpose {
	case otp.PurposePasswordReset:
		return "Your password reset code is " + code + ". It expires shortly; never share it."
	case otp.PurposeVerification:
		return "Your verification code is " + code + ". It expires shortly; never share it."
	default:
		return "Your sign-in code is " + code + ". It expires shortly; never share it."
	}
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, otp.ErrExpired):
		return ErrOTPExpired
	case errors.Is(err, otp.ErrMismatch):
		return ErrOTPMismatch
	case errors.Is(err, otp.ErrExhausted):
		return ErrOTPExhausted
	case errors.Is(err, otp.ErrConsumed):
		return ErrOTPAlreadyConsumed
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
