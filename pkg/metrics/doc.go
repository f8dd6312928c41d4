// Package metrics defines the Prometheus instrumentation: task gauges
// refreshed by a registry-polling collector, snatch attempt/success
// counters fed from the event broker, and the HTTP request metrics the
// API middleware records. Everything registers against the default
// registry at init and is served by Handler.
package metrics
