// Package api exposes the HTTP interface of the review-trends service: crawl
// triggers, the run registry, live progress over websocket and the analytics
// report.
package api
