package analytics_test

import (
	"fmt"
	"time"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/store"
)

func ExampleCompute() {
	first := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	snaps := []store.Snapshot{
		{Establishment: "Pizzaria Boa", City: "sao paulo", State: "SP", Platform: "ifood", Reviews: 10, ReviewsKnown: true, CreatedAt: first},
		{Establishment: "Pizzaria Boa", City: "sao paulo", State: "SP", Platform: "ifood", Reviews: 25, ReviewsKnown: true, CreatedAt: first.AddDate(0, 0, 9)},
		{Establishment: "Lanches", City: "sao paulo", State: "SP", Platform: "aiqfome", Reviews: 0, ReviewsKnown: true, CreatedAt: first},
	}
	report := analytics.Compute(snaps, first.AddDate(0, 0, 10))

	fmt.Println("establishments:", report.KPIs.TotalEstablishments)
	fmt.Println("reviews:", report.KPIs.TotalReviews)
	fmt.Printf("growth: %s %.2f\n", report.TopByGrowth[0].Name, report.TopByGrowth[0].GrowthPct)
	fmt.Println("platforms:", len(report.PlatformStats))
	// Output:
	// establishments: 2
	// reviews: 35
	// growth: Pizzaria Boa 1.50
	// platforms: 1
}
