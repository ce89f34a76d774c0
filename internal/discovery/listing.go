package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// Config controls listing collector behavior.
type Config struct {
	// BaseURL is the aiqfome site root, e.g. https://aiqfome.com.
	BaseURL       string
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// ListingCollector discovers aiqfome establishment pages for a city.
type ListingCollector struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewListingCollector builds a ListingCollector.
func NewListingCollector(cfg Config, logger *zap.Logger) (*ListingCollector, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid listing base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingCollector{
		cfg:       cfg,
		transport: newRobotsTransport(newHTTPTransport(), logger),
		logger:    logger,
	}, nil
}

// ListingURL returns the city listing page for city and state.
func (l *ListingCollector) ListingURL(city, state string) string {
	return fmt.Sprintf("%s/restaurantes/%s-%s", strings.TrimSuffix(l.cfg.BaseURL, "/"), city, state)
}

// Discover fetches the city listing and returns every establishment link
// under /<state>/<city>. The request location is attached to each target.
func (l *ListingCollector) Discover(ctx context.Context, city, state string) ([]crawler.Target, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	state = strings.ToLower(strings.TrimSpace(state))
	if city == "" || state == "" {
		return nil, fmt.Errorf("%w: city and state are required", crawler.ErrInvalidRequest)
	}
	base, err := url.Parse(l.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	listing := l.ListingURL(city, state)
	hrefs, err := l.collect(ctx, listing)
	if err != nil {
		return nil, err
	}

	marker := "/" + state + "/" + city
	var targets []crawler.Target
	for _, href := range hrefs {
		if !strings.Contains(href, marker) {
			continue
		}
		link, ok := resolve(base, href)
		if !ok {
			continue
		}
		targets = append(targets, crawler.Target{Link: link, City: city, State: strings.ToUpper(state)})
	}
	targets = crawler.DedupeTargets(targets)
	l.logger.Info("listing discovered",
		zap.String("listing", listing),
		zap.Int("anchors", len(hrefs)),
		zap.Int("targets", len(targets)),
	)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	return targets, nil
}

type visitResult struct {
	hrefs []string
	err   error
}

// collect visits listing on its own goroutine, which owns the collected
// hrefs until it sends its result.
func (l *ListingCollector) collect(ctx context.Context, listing string) ([]string, error) {
	done := make(chan visitResult, 1)
	go func() {
		done <- l.visit(listing)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	case res := <-done:
		return res.hrefs, res.err
	}
}

func (l *ListingCollector) visit(listing string) visitResult {
	var (
		hrefs    []string
		fetchErr error
	)
	collector := colly.NewCollector(colly.Async(false))
	collector.WithTransport(l.transport)
	if l.cfg.UserAgent != "" {
		collector.UserAgent = l.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !l.cfg.RespectRobots
	collector.SetRequestTimeout(l.cfg.Timeout)
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		hrefs = append(hrefs, e.Attr("href"))
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(listing); err != nil {
		return visitResult{err: fmt.Errorf("listing visit failed: %w", err)}
	}
	if fetchErr != nil {
		return visitResult{err: fmt.Errorf("listing response failed: %w", fetchErr)}
	}
	return visitResult{hrefs: hrefs}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
