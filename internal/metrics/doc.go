// Package metrics provides the observability hooks for ghsync sync cycles.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	b := watcher.New(store, trigger, watcher.Options{Recorder: metrics.NoopRecorder{}})
//
// When `metrics_addr` is configured the daemon swaps in a PrometheusRecorder
// and serves HTTPHandler on /metrics.
package metrics
