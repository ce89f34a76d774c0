package crawler

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// UnknownLocation is recorded when city or state cannot be derived.
const UnknownLocation = "Unknown"

var deliveryPath = regexp.MustCompile(`/delivery/([a-zA-Z-]+)-([a-zA-Z]{2})/`)

// LocationFromLink derives city and state from a /delivery/<city>-<uf>/ path.
// Dashes in the city become spaces and the state is upper-cased.
func LocationFromLink(link string) (city, state string) {
	m := deliveryPath.FindStringSubmatch(link)
	if m == nil {
		return UnknownLocation, UnknownLocation
	}
	return strings.ReplaceAll(m[1], "-", " "), strings.ToUpper(m[2])
}

// NormalizeDate converts DD/MM/YYYY into YYYY/MM/DD. Anything without exactly
// three components yields nil.
func NormalizeDate(raw *string) *string {
	if raw == nil {
		return nil
	}
	parts := strings.Split(strings.TrimSpace(*raw), "/")
	if len(parts) != 3 {
		return nil
	}
	out := parts[2] + "/" + parts[1] + "/" + parts[0]
	return &out
}

// ParseReviewCount converts extracted count text into an integer. The boolean
// reports whether the value is a confirmed count rather than an unknown.
func ParseReviewCount(raw string) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	switch text {
	case "":
		return 0, false
	case DefaultReviewCount, PlaceholderNoReviews, "without reviews":
		return 0, true
	case PlaceholderCountFailed:
		return 0, false
	}
	text = strings.NewReplacer(".", "", ",", "", " ", "").Replace(text)
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(text[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Percentage is round(processed/total*100). It stays below 100 until every
// target is processed; an empty run is complete.
func Percentage(processed, total int) int {
	if total <= 0 {
		return 100
	}
	pct := int(math.Round(float64(processed) / float64(total) * 100))
	if processed < total && pct >= 100 {
		return 99
	}
	if pct > 100 {
		return 100
	}
	return pct
}
