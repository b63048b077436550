// Package prometheus provides Prometheus collectors for dirgate metrics.
//
// [NewPrometheusExporter] accepts a [dirgate.Engine] and exposes an [http.Handler]
// that renders all dirgate counters in Prometheus text exposition format.
// Counter names are prefixed dirgate_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
