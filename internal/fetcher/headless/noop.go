package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// ErrUnavailable is returned by Noop when no browser is configured.
var ErrUnavailable = errors.New("headless browser not configured")

// Noop implements crawler.Browser but never starts a session. It backs
// deployments that only serve analytics.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// Start always fails with ErrUnavailable.
func (Noop) Start(context.Context) (crawler.Session, error) {
	return nil, ErrUnavailable
}
