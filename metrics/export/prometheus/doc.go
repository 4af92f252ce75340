// Package prometheus renders tokenlife metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [tokenlife.Engine] and exposes an
// http.Handler that writes every counter and histogram from the engine's
// snapshot. Counter names are prefixed tokenlife_*_total; the single histogram
// is tokenlife_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the
//     Handler where they want it.
//   - Mutate engine state.
package prometheus
