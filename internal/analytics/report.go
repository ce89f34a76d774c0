package analytics

import (
	"sort"
	"time"

	"github.com/JakeFAU/review-trends/internal/store"
)

const (
	// TopN bounds every ranking in the report.
	TopN = 10
	// ActiveWindow is how recent a last review must be to count as active.
	ActiveWindow = 30 * 24 * time.Hour

	day = 24 * time.Hour
)

// KPIs are the scalar summaries of the history.
type KPIs struct {
	TotalEstablishments        int     `json:"total_establishments"`
	TotalReviews               int     `json:"total_reviews"`
	AvgReviewsPerEstablishment float64 `json:"avg_reviews_per_establishment"`
	MedianDaysSinceLastReview  float64 `json:"median_days_since_last_review"`
	PctActive30d               float64 `json:"pct_active_30d"`
	// UnknownReviewSnapshots counts snapshots whose review count could not be read.
	UnknownReviewSnapshots int `json:"unknown_review_snapshots"`
}

// PlatformStat aggregates one platform.
type PlatformStat struct {
	Platform       string `json:"platform"`
	Establishments int    `json:"establishments"`
	Reviews        int    `json:"reviews"`
}

// RankedEstablishment is one row of the review ranking.
type RankedEstablishment struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	City     string `json:"city"`
	State    string `json:"state"`
	Link     string `json:"link"`
	Reviews  int    `json:"reviews"`
}

// GrowthEntry is one row of the growth ranking. Attributes come from the
// latest snapshot of the establishment.
type GrowthEntry struct {
	Name         string  `json:"name"`
	Platform     string  `json:"platform"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Link         string  `json:"link"`
	FirstReviews int     `json:"first_reviews"`
	LastReviews  int     `json:"last_reviews"`
	GrowthPct    float64 `json:"growth_pct"`
}

// CityStat is the average review count of a (city, state) pair.
type CityStat struct {
	City       string  `json:"city"`
	State      string  `json:"state"`
	AvgReviews float64 `json:"avg_reviews"`
	Count      int     `json:"count"`
}

// Report is the full analytics payload.
type Report struct {
	KPIs          KPIs                  `json:"kpis"`
	PlatformStats []PlatformStat        `json:"platform_stats"`
	TopByReviews  []RankedEstablishment `json:"top_by_reviews"`
	TopByGrowth   []GrowthEntry         `json:"top_by_growth"`
	TopCities     []CityStat            `json:"top_cities"`
	LastUpdated   time.Time             `json:"last_updated"`
}

// Compute builds the report for snaps as seen at now. An empty history yields
// a zeroed report with empty rankings.
func Compute(snaps []store.Snapshot, now time.Time) Report {
	report := Report{
		PlatformStats: []PlatformStat{},
		TopByReviews:  []RankedEstablishment{},
		TopByGrowth:   []GrowthEntry{},
		TopCities:     []CityStat{},
		LastUpdated:   now.UTC(),
	}
	if len(snaps) == 0 {
		return report
	}
	report.KPIs = kpis(snaps, now)
	report.PlatformStats = platformStats(snaps)
	report.TopByReviews = topByReviews(snaps)
	report.TopByGrowth = topByGrowth(snaps)
	report.TopCities = topCities(snaps)
	return report
}

func kpis(snaps []store.Snapshot, now time.Time) KPIs {
	var (
		k      KPIs
		names  = make(map[string]struct{})
		active = make(map[string]struct{})
		days   = make([]float64, 0, len(snaps))
	)
	for _, s := range snaps {
		names[s.Establishment] = struct{}{}
		k.TotalReviews += s.Reviews
		if !s.ReviewsKnown {
			k.UnknownReviewSnapshots++
		}
		if s.LastReview == nil {
			continue
		}
		if d, ok := DaysSinceLastReview(s); ok {
			days = append(days, d)
		}
		if now.Sub(*s.LastReview) <= ActiveWindow {
			active[s.Establishment] = struct{}{}
		}
	}
	k.TotalEstablishments = len(names)
	if k.TotalEstablishments > 0 {
		k.AvgReviewsPerEstablishment = float64(k.TotalReviews) / float64(k.TotalEstablishments)
		k.PctActive30d = float64(len(active)) / float64(k.TotalEstablishments)
	}
	k.MedianDaysSinceLastReview = Median(days)
	return k
}

// DaysSinceLastReview returns the whole days between the snapshot's creation
// day and its last review. ok is false when there is no last review or the
// review postdates the snapshot.
func DaysSinceLastReview(s store.Snapshot) (float64, bool) {
	if s.LastReview == nil {
		return 0, false
	}
	created := s.CreatedAt.UTC().Truncate(day)
	diff := created.Sub(s.LastReview.UTC()).Hours() / 24
	if diff < 0 {
		return 0, false
	}
	return diff, true
}

// Median returns the median of values, or 0 when values is empty. values is
// not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func platformStats(snaps []store.Snapshot) []PlatformStat {
	type group struct {
		names   map[string]struct{}
		reviews int
	}
	var order []string
	groups := make(map[string]*group)
	for _, s := range snaps {
		g, ok := groups[s.Platform]
		if !ok {
			g = &group{names: make(map[string]struct{})}
			groups[s.Platform] = g
			order = append(order, s.Platform)
		}
		g.names[s.Establishment] = struct{}{}
		g.reviews += s.Reviews
	}
	out := []PlatformStat{}
	for _, platform := range order {
		g := groups[platform]
		if g.reviews == 0 {
			continue
		}
		out = append(out, PlatformStat{
			Platform:       platform,
			Establishments: len(g.names),
			Reviews:        g.reviews,
		})
	}
	return out
}

func topByReviews(snaps []store.Snapshot) []RankedEstablishment {
	ranked := make([]store.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Reviews > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Reviews > ranked[j].Reviews })
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	out := make([]RankedEstablishment, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, RankedEstablishment{
			Name:     s.Establishment,
			Platform: s.Platform,
			City:     s.City,
			State:    s.State,
			Link:     s.Link,
			Reviews:  s.Reviews,
		})
	}
	return out
}

// History groups snapshots by establishment name, each group ordered by
// creation time. Groups are returned in order of first appearance.
func History(snaps []store.Snapshot) [][]store.Snapshot {
	var order []string
	groups := make(map[string][]store.Snapshot)
	for _, s := range snaps {
		if _, ok := groups[s.Establishment]; !ok {
			order = append(order, s.Establishment)
		}
		groups[s.Establishment] = append(groups[s.Establishment], s)
	}
	out := make([][]store.Snapshot, 0, len(order))
	for _, name := range order {
		g := groups[name]
		sort.SliceStable(g, func(i, j int) bool { return g[i].CreatedAt.Before(g[j].CreatedAt) })
		out = append(out, g)
	}
	return out
}

// Growth returns the relative change between the first and last review
// counts. A zero baseline yields 0.
func Growth(first, last int) float64 {
	if first == 0 {
		return 0
	}
	return float64(last-first) / float64(first)
}

func topByGrowth(snaps []store.Snapshot) []GrowthEntry {
	known := make([]store.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.ReviewsKnown {
			known = append(known, s)
		}
	}
	out := []GrowthEntry{}
	for _, group := range History(known) {
		if len(group) < 2 {
			continue
		}
		first, last := group[0], group[len(group)-1]
		out = append(out, GrowthEntry{
			Name:         last.Establishment,
			Platform:     last.Platform,
			City:         last.City,
			State:        last.State,
			Link:         last.Link,
			FirstReviews: first.Reviews,
			LastReviews:  last.Reviews,
			GrowthPct:    Growth(first.Reviews, last.Reviews),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrowthPct > out[j].GrowthPct })
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func topCities(snaps []store.Snapshot) []CityStat {
	type key struct{ city, state string }
	type group struct{ sum, count int }
	var order []key
	groups := make(map[key]*group)
	for _, s := range snaps {
		if s.City == "" || s.State == "" || !s.ReviewsKnown {
			continue
		}
		k := key{city: s.City, state: s.State}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		g.sum += s.Reviews
		g.count++
	}
	out := make([]CityStat, 0, len(order))
	for _, k := range order {
		g := groups[k]
		out = append(out, CityStat{
			City:       k.city,
			State:      k.state,
			AvgReviews: float64(g.sum) / float64(g.count),
			Count:      g.count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgReviews > out[j].AvgReviews })
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}
