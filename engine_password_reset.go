package authkit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/classward/authkit/otp"
)

// RequestPasswordReset issues a reset code for the destination. The
// result is enumeration-safe: an unknown destination returns success
// after a small jittered delay and sends nothing, so callers cannot
// probe which emails or phones have accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, rawDestination string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	destination, channel, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	// Charge the issuance budget before the account lookup so the
	// throttle cannot be used as an account-existence oracle: known and
	// unknown destinations run out of requests on the same schedule.
	if err := e.checkOTPIssue(ctx, destination, AuditPasswordResetReq); err != nil {
		return err
	}

	if _, err := e.store.FindByDestination(ctx, destination); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, AuditEvent{EventType: AuditPasswordResetReq, Destination: destination, Error: "unknown destination"})
			return sleepEnumerationDelay(ctx)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return e.deliverCode(ctx, destination, channel, otp.PurposePasswordReset, AuditPasswordResetReq)
}

// ConfirmPasswordReset verifies the reset code, installs the new
// password, and revokes every outstanding session and token for the
// user, on every instance, including tokens whose session rows were
// lost.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawDestination, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	destination, _, err := resolveDestination(rawDestination, e.config.Notify.DefaultCountryCode)
	if err != nil {
		return err
	}
	if err := validatePassword(newPassword, e.config.Password.MinLength); err != nil {
		return err
	}

	if _, err := e.otpStore.Verify(ctx, destination, otp.PurposePasswordReset, code); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditPasswordReset, Destination: destination, Error: ErrorCode(mapOTPError(err))})
		return mapOTPError(err)
	}

	user, err := e.store.FindByDestination(ctx, destination)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if err := e.store.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Everything issued before this moment must die: walk the session
	// index and stamp the user epoch for tokens the index lost.
	if err := e.registry.RevokeAllForUser(ctx, user.UserID, e.config.epochTTL()); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	// The stolen-credential window is over; let the owner back in
	// whichever identifier the failures were counted under.
	ip := clientIPFromContext(ctx)
	for _, identifier := range []string{user.Email, user.Username} {
		if identifier == "" {
			continue
		}
		if err := e.limiter.ResetLogin(ctx, identifier, ip); err != nil {
			e.emitAudit(ctx, AuditEvent{EventType: AuditPasswordReset, UserID: user.UserID, Error: "limiter reset failed"})
			break
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{EventType: AuditPasswordReset, UserID: user.UserID, Success: true})

	return nil
}

// sleepEnumerationDelay pauses 20-40ms so the unknown-destination path
// is not trivially distinguishable from a real send by timing.
func sleepEnumerationDelay(ctx context.Context) error {
	const minMs, maxMs = int64(20), int64(40)

	n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs+1))
	if err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(minMs+n.Int64()) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
