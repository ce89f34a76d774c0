package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var robotsRetryBackoff = []time.Duration{
	200 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt fetches that hit a transient TLS or
// timeout failure and serves an allow-all body once retries run out, so a
// flaky robots endpoint never blocks listing discovery.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
	logger  *zap.Logger
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsTransport{base: base, backoff: robotsRetryBackoff, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("listing roundtrip: %w", err)
		}
		return resp, nil
	}
	attempts := len(t.backoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
		}
		if attempt == attempts-1 {
			break
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, err
		}
	}
	t.logger.Warn("robots.txt unreachable; allowing all",
		zap.String("host", req.URL.Host),
		zap.Int("attempts", attempts),
	)
	metrics.ObserveRobotsFallback(req.URL.Host)
	return allowAllResponse(req), nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
