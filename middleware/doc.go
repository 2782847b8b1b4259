// Package middleware exposes HTTP adapters over authkit.Engine token
// verification.
//
//   - [Guard] — requires a valid, unrevoked access token.
//   - [RequireRole] — Guard plus a role allow-list.
//
// Each guard reads the Authorization header, calls Engine.VerifyAccess,
// and injects the verified claims into the request context for
// [ClaimsFromContext].
//
// This package only translates HTTP semantics into engine calls; it
// never parses tokens or talks to Redis itself.
package middleware
