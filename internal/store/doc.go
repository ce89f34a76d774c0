// Package store defines the persistence contracts shared by the crawl pipeline
// and the analytics engine: establishment snapshots and crawl-run records.
// Implementations live under internal/storage; this package must not import
// database drivers or concrete clients.
package store
