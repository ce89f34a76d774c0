package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/review-trends/internal/store"
)

// Browser starts an automation session; one session serves one crawl run.
type Browser interface {
	Start(ctx context.Context) (Session, error)
}

// Session hands out pages. Close releases the whole session.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single automation tab used for exactly one target.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	TextAll(ctx context.Context, selector string) ([]string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Extractor produces a best-effort record for one target page.
type Extractor interface {
	Extract(ctx context.Context, page Page, platform Platform, link string) (Record, error)
}

// IngestionSink appends one snapshot to the history.
type IngestionSink interface {
	Create(ctx context.Context, in store.NewSnapshot) (store.Snapshot, error)
}

// ProgressTracker holds run-keyed completion percentages.
type ProgressTracker interface {
	Start(runID string)
	Advance(runID string, percentage int)
	Complete(runID string)
}

// ArtifactStore writes raw page captures and returns a URI.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for asynchronous crawl runs.
type Queue interface {
	Enqueue(ctx context.Context, req Request) error
	Dequeue(ctx context.Context) (Request, error)
}

// Runner executes one crawl run.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
