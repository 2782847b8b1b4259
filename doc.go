// Package authkit is an embeddable authentication and session-lifecycle
// engine for multi-role platforms: password and one-time-code sign-in,
// JWT access/refresh pairs, Redis-backed session tracking and token
// revocation, and OTP-driven verification and password reset.
//
// The engine owns no durable account state. Callers supply a
// CredentialStore for user records and a NotificationSender for code
// delivery; sessions, revocations, codes, and rate-limit counters live
// in Redis. Build an Engine with the Builder:
//
//	engine, err := authkit.New().
//		WithRedis(redisClient).
//		WithCredentialStore(store).
//		WithNotificationSender(sender).
//		WithConfig(cfg).
//		Build()
//
// All failures are classified by package-level sentinel errors matched
// with errors.Is; ErrorCode maps them to stable codes for transports.
package authkit
