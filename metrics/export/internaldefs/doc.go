// Package internaldefs holds the metric name definitions shared by the
// exporter implementations, so the Prometheus and OTel exporters expose
// identical names and bucket boundaries.
package internaldefs
