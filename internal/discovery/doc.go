// Package discovery turns platform listing pages into crawl targets. Saved
// iFood listings are parsed with goquery; aiqfome city listings are fetched
// live with colly.
package discovery
