// Package rate throttles abusable operations with Redis fixed-window
// counters: failed logins per identifier and source IP, and code
// issuance per destination.
package rate
