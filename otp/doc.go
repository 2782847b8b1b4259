// Package otp stores single-use numeric verification codes in Redis.
//
// Each challenge is keyed by destination and purpose, so at most one
// code is live per pair and re-requesting replaces the previous one.
// Verification runs under an optimistic WATCH transaction to keep the
// attempt counter and the consumed flag exact under concurrent calls.
package otp
