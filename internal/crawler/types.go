package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Platform is the lowercase delivery platform tag recorded on every snapshot.
type Platform string

// Supported platforms.
const (
	PlatformIFood   Platform = "ifood"
	PlatformAiqfome Platform = "aiqfome"
)

// ParsePlatform validates a user-supplied platform tag.
func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformIFood, PlatformAiqfome:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", raw)
	}
}

// Target is one establishment page to crawl.
type Target struct {
	// Link is the absolute page URL; it is the per-run deduplication key.
	Link string `json:"link"`
	// City and State override link-derived location when set.
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// Request describes one crawl run.
type Request struct {
	RunID     string    `json:"run_id"`
	Platform  Platform  `json:"platform"`
	Targets   []Target  `json:"targets"`
	Submitted time.Time `json:"submitted_at"`
}

// DedupeTargets drops repeated links, keeping the first occurrence.
func DedupeTargets(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		link := strings.TrimSpace(t.Link)
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		t.Link = link
		out = append(out, t)
	}
	return out
}

// Step names one stage of the record extraction chain.
type Step string

// Extraction steps in execution order.
const (
	StepTitle  Step = "title"
	StepReveal Step = "reveal"
	StepCount  Step = "count"
	StepDates  Step = "dates"
)

// StepStatus tags the outcome of one extraction step.
type StepStatus string

// Step outcomes.
const (
	// StepOK means the step read its value from the page.
	StepOK StepStatus = "ok"
	// StepDefault means the step failed and the default value was kept.
	StepDefault StepStatus = "default"
	// StepSkipped means a prerequisite step did not succeed.
	StepSkipped StepStatus = "skipped"
	// StepAbsent means the page showed the establishment has no reviews.
	StepAbsent StepStatus = "absent"
)

// StepResult is the tagged result of one extraction step.
type StepResult struct {
	Step   Step       `json:"step"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Placeholder review-count values understood by ParseReviewCount.
const (
	DefaultReviewCount     = "0"
	PlaceholderNoReviews   = "no reviews yet"
	PlaceholderCountFailed = "error fetching reviews"
)

// Record is the best-effort output of the record extractor for one target.
type Record struct {
	Name string `json:"name"`
	// ReviewCount is the raw count text, a placeholder, or DefaultReviewCount.
	ReviewCount string `json:"review_count"`
	// LastReviewDate is the most recent review date as DD/MM/YYYY.
	LastReviewDate *string      `json:"last_review_date"`
	Steps          []StepResult `json:"steps,omitempty"`
}

// Status returns the recorded outcome of a step, or StepSkipped when absent.
func (r Record) Status(step Step) StepStatus {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Status
		}
	}
	return StepSkipped
}

// CountCaptured reports whether the review count reflects the page rather than
// a default.
func (r Record) CountCaptured() bool {
	return r.Status(StepCount) == StepOK || r.Status(StepReveal) == StepAbsent
}

// Item is one normalized, successfully extracted establishment.
type Item struct {
	Name         string  `json:"name"`
	Link         string  `json:"link"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Reviews      int     `json:"reviews"`
	ReviewsKnown bool    `json:"reviews_known"`
	LastReview   *string `json:"last_review"`
	SnapshotID   string  `json:"snapshot_id,omitempty"`
}

// Failure records a target that was skipped.
type Failure struct {
	Link  string `json:"link"`
	Error string `json:"error"`
}

// Result is the outcome of one crawl run.
type Result struct {
	RunID    string    `json:"run_id"`
	Platform Platform  `json:"platform"`
	Success  bool      `json:"success"`
	Targets  int       `json:"targets"`
	Items    []Item    `json:"data"`
	Failed   []Failure `json:"failed"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
}
