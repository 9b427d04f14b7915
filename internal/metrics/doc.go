// Package metrics exposes mailroom counters through a private Prometheus
// registry. A nil *Metrics is valid and records nothing.
package metrics
