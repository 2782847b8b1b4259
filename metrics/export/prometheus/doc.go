// Package prometheus renders engine metrics in Prometheus text
// exposition format. Counter names are prefixed authkit_*_total; the
// single histogram is authkit_verify_latency_seconds. Nothing is
// registered globally; callers mount the Handler themselves.
package prometheus
