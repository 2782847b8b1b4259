// Package token issues and verifies signed access and refresh tokens using
// process-wide signing material and strict validation semantics.
//
// The [Codec] is stateless: a verification outcome is a pure function of the
// configured keys and the input token. Revocation is not its concern — the
// session registry owns that.
package token
