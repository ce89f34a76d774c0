// Package headless drives establishment pages through a real browser.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// Config controls the behavior of the headless browser.
type Config struct {
	// MaxSessions caps concurrently open browser sessions; 0 means unlimited.
	MaxSessions       int
	UserAgent         string
	NavigationTimeout time.Duration
	NoSandbox         bool
	DisableGPU        bool
	ExecPath          string
	// Headers are sent with every page request.
	Headers http.Header
}

// Browser implements crawler.Browser using chromedp and headless Chrome.
type Browser struct {
	cfg     Config
	limiter chan struct{}
	logger  *zap.Logger
}

var _ crawler.Browser = (*Browser)(nil)

// NewChromedp creates a headless browser launcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxSessions > 0 {
		limiter = make(chan struct{}, cfg.MaxSessions)
	}
	return &Browser{cfg: cfg, limiter: limiter, logger: logger}, nil
}

// Start launches a browser process. The session ends when Close is called or
// ctx is canceled.
func (b *Browser) Start(ctx context.Context) (crawler.Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}
	stop := context.AfterFunc(ctx, cancel)

	// The first Run allocates the browser and must use the browser context
	// itself; a derived deadline would close the browser when it fires.
	if err := chromedp.Run(browserCtx); err != nil {
		stop()
		cancel()
		b.release()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b.logger.Debug("browser session started")
	return &session{browser: b, ctx: browserCtx, cancel: cancel, stop: stop}, nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if b.cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

type session struct {
	browser *Browser
	ctx     context.Context
	cancel  func()
	stop    func() bool
	once    sync.Once
}

// NewPage opens a new tab in the browser.
func (s *session) NewPage(ctx context.Context) (crawler.Page, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser session closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	p := &page{ctx: tabCtx, cancel: tabCancel, meta: meta}
	if err := p.run(ctx, s.networkSetupAction()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close shuts down the browser process. It is safe to call more than once.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		closeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if cerr := chromedp.Cancel(closeCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close browser: %w", cerr)
		}
		s.cancel()
		s.browser.release()
	})
	return err
}

func (s *session) networkSetupAction() chromedp.Action {
	cfg := s.browser.cfg
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	meta   *responseMeta
	once   sync.Once
}

// run executes actions on the tab, bounded by the deadline and cancellation
// of the caller's ctx.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *page) Navigate(ctx context.Context, url string) error {
	p.meta.reset()
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status, _ := p.meta.snapshot(); status >= http.StatusBadRequest {
		return fmt.Errorf("navigate %s: unexpected status %d", url, status)
	}
	return nil
}

func (p *page) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *page) Exists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, fmt.Errorf("quote selector: %w", err)
	}
	var found bool
	script := fmt.Sprintf("document.querySelector(%s) !== null", quoted)
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return found, nil
}

func (p *page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.TextContent(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text %q: %w", selector, err)
	}
	return text, nil
}

func (p *page) TextAll(ctx context.Context, selector string) ([]string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("quote selector: %w", err)
	}
	var texts []string
	script := fmt.Sprintf("Array.from(document.querySelectorAll(%s), el => el.textContent.trim())", quoted)
	if err := p.run(ctx, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, fmt.Errorf("read texts %q: %w", selector, err)
	}
	return texts, nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *page) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// responseMeta records the main document response of the current navigation.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
