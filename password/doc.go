// Package password provides the default Argon2id password hasher.
//
// Hashes are stored in PHC string format, so each hash carries the
// parameters it was produced with and cost upgrades never invalidate
// existing credentials. NeedsRehash identifies hashes produced under
// lower costs so callers can re-hash opportunistically.
package password
