package discovery

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// MerchantLinkSelector matches establishment anchors on a saved iFood listing.
const MerchantLinkSelector = ".merchant-v2__link"

// ErrNoTargets is returned when a listing yields no establishment links.
var ErrNoTargets = errors.New("listing contains no establishment links")

// FromHTML reads a saved listing page and returns one target per merchant
// anchor. Relative links are resolved against baseURL.
func FromHTML(r io.Reader, baseURL string) ([]crawler.Target, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	var targets []crawler.Target
	doc.Find(MerchantLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		link, ok := resolve(base, href)
		if !ok {
			return
		}
		targets = append(targets, crawler.Target{Link: link})
	})
	targets = crawler.DedupeTargets(targets)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	return targets, nil
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
