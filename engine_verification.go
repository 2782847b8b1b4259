package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classward/authkit/otp"
)

// RequestVerification issues a verification code to one of the user's
// own destinations. Unlike password reset, the caller already knows the
// account, so an unknown destination is a plain error.
func (e *Engine) RequestVerification(ctx context.Context, rawDestination string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	destination, channel, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return err
	}

	if _, err := e.store.FindByDestination(ctx, destination); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricVerificationRequest)
	return e.sendCode(ctx, destination, channel, otp.PurposeVerification, AuditVerification)
}

// ConfirmVerification validates the code and stamps the account
// verified, activating deployments that hold accounts pending until
// verification.
func (e *Engine) ConfirmVerification(ctx context.Context, rawDestination, code string) (*Profile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	destination, _, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	if _, err := e.otpStore.Verify(ctx, destination, otp.PurposeVerification, code); err != nil {
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditVerification, Destination: destination, Error: ErrorCode(mapOTPError(err))})
		return nil, mapOTPError(err)
	}

	user, err := e.store.FindByDestination(ctx, destination)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	if err := e.store.MarkVerified(ctx, user.UserID, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	user.EmailVerified = true
	user.VerifiedAt = now

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: AuditVerification, UserID: user.UserID, Destination: destination, Success: true})

	profile := profileOf(user)
	return &profile, nil
}
