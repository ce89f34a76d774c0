// Package analytics computes the trend report over the full snapshot history.
//
// The report is recomputed on every read: KPIs, per-platform totals, review
// and growth rankings and city averages are derived from scratch with a few
// grouping passes over the snapshots. Nothing is cached between calls.
package analytics
