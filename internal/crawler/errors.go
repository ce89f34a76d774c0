package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionStart is returned when the automation session cannot start.
	ErrSessionStart = errors.New("automation session start failed")
	// ErrPageLoad is returned when a target page or its title never loads.
	ErrPageLoad = errors.New("page load failed")
	// ErrInvalidRequest flags a crawl request that cannot be run.
	ErrInvalidRequest = errors.New("invalid crawl request")
	// ErrQueueClosed is returned by a Queue that accepts no more work.
	ErrQueueClosed = errors.New("queue closed")
)

// SessionError aborts a whole crawl run.
type SessionError struct {
	Err error
}

func (e SessionError) Error() string {
	return fmt.Errorf("%w: %w", ErrSessionStart, e.Err).Error()
}

func (e SessionError) Unwrap() []error {
	return []error{ErrSessionStart, e.Err}
}

// PageLoadError skips a single target.
type PageLoadError struct {
	Link string
	Err  error
}

func (e PageLoadError) Error() string {
	return fmt.Errorf("%w for %s: %w", ErrPageLoad, e.Link, e.Err).Error()
}

func (e PageLoadError) Unwrap() []error {
	return []error{ErrPageLoad, e.Err}
}
