// Package prometheus renders goCred engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads [goCred.Engine.MetricsSnapshot] on every
// scrape. Counters are named gocred_*_total and the verify latency
// histogram is gocred_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
