// Package progress tracks crawl-run completion. Tracker holds the run-keyed
// percentage that subscribers poll, and Hub batches lifecycle events on a
// background goroutine and fans them out to pluggable sinks such as
// Prometheus metrics, the run registry or Pub/Sub notifications.
package progress
