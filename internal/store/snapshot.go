package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SnapshotDateLayout is the storage format for a snapshot's last review date.
const SnapshotDateLayout = "2006/01/02"

// NewSnapshot is the ingestion payload produced for every successfully crawled
// establishment.
type NewSnapshot struct {
	// RunID ties the snapshot to the crawl run that produced it.
	RunID string `json:"run_id,omitempty"`
	// Establishment is the display name shown on the platform.
	Establishment string `json:"establishment"`
	// City and State locate the establishment; "Unknown" when not derivable.
	City  string `json:"city"`
	State string `json:"state"`
	// Platform is the lowercase delivery platform tag.
	Platform string `json:"platform"`
	// Link is the establishment page URL.
	Link string `json:"link"`
	// Reviews is the parsed total review count. It is zero when unknown.
	Reviews int `json:"reviews"`
	// ReviewsKnown is false when the count could not be read from the page.
	ReviewsKnown bool `json:"reviews_known"`
	// LastReview is "YYYY/MM/DD", or nil when no dated review was found.
	LastReview *string `json:"last_review,omitempty"`
}

// Validate checks the fields every snapshot must carry.
func (n NewSnapshot) Validate() error {
	if strings.TrimSpace(n.Establishment) == "" {
		return errors.New("establishment is required")
	}
	if strings.TrimSpace(n.Platform) == "" {
		return errors.New("platform is required")
	}
	if n.Reviews < 0 {
		return errors.New("reviews must be >= 0")
	}
	if n.LastReview != nil {
		if _, err := time.Parse(SnapshotDateLayout, *n.LastReview); err != nil {
			return fmt.Errorf("last_review %q: %w", *n.LastReview, err)
		}
	}
	return nil
}

// Snapshot is one persisted observation of an establishment.
type Snapshot struct {
	ID            string     `json:"id"`
	RunID         string     `json:"run_id,omitempty"`
	Establishment string     `json:"establishment"`
	City          string     `json:"city"`
	State         string     `json:"state"`
	Platform      string     `json:"platform"`
	Link          string     `json:"link"`
	Reviews       int        `json:"reviews"`
	ReviewsKnown  bool       `json:"reviews_known"`
	LastReview    *time.Time `json:"last_review,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FromNew builds a Snapshot from an ingestion payload. The last review date is
// parsed as a UTC calendar day.
func FromNew(id string, in NewSnapshot, createdAt time.Time) (Snapshot, error) {
	if err := in.Validate(); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ID:            id,
		RunID:         in.RunID,
		Establishment: in.Establishment,
		City:          in.City,
		State:         in.State,
		Platform:      in.Platform,
		Link:          in.Link,
		Reviews:       in.Reviews,
		ReviewsKnown:  in.ReviewsKnown,
		CreatedAt:     createdAt.UTC(),
	}
	if in.LastReview != nil {
		ts, err := time.ParseInLocation(SnapshotDateLayout, *in.LastReview, time.UTC)
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse last review: %w", err)
		}
		snap.LastReview = &ts
	}
	return snap, nil
}

// SnapshotRepository persists snapshots and exposes the full history to the
// analytics engine.
type SnapshotRepository interface {
	// Create persists one snapshot and returns it with its assigned ID.
	Create(ctx context.Context, in NewSnapshot) (Snapshot, error)
	// ListAll returns every snapshot ever stored, oldest first.
	ListAll(ctx context.Context) ([]Snapshot, error)
}
