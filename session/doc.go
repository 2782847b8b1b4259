// Package session provides Redis-backed session tracking and token
// revocation for authentication hot paths.
//
// # Binary encoding
//
// Session rows are stored as a compact, schema-versioned binary blob with
// length-prefixed string fields and big-endian timestamps.
//
// # Architecture boundaries
//
// This package owns the [Registry] (Redis operations), the [Record] model,
// and the revocation set. It does not parse tokens or make authentication
// decisions — those belong to the Engine.
package session
