// Package crawler implements the crawl orchestration pipeline: the shared
// target, record and result types, the browser/page abstractions the record
// extractor runs against, normalization of extracted values into ingestion
// snapshots, and the Orchestrator that walks a target list sequentially with
// per-target failure isolation and run-keyed progress reporting.
package crawler
