package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/review-trends/internal/analytics"
)

func newReportCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Computes the analytics report over every stored snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := app.Report(cmd.Context())
			if err != nil {
				return fmt.Errorf("compute report: %w", err)
			}
			if asJSON {
				return writeIndentedJSON(cmd.OutOrStdout(), report)
			}
			renderReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func renderReport(w io.Writer, r analytics.Report) {
	kpis := newTable(w, fmt.Sprintf("market overview (%s)", r.LastUpdated.Format(time.RFC3339)))
	kpis.AppendRows([]table.Row{
		{"Establishments", r.KPIs.TotalEstablishments},
		{"Total reviews", r.KPIs.TotalReviews},
		{"Avg reviews per establishment", fmt.Sprintf("%.2f", r.KPIs.AvgReviewsPerEstablishment)},
		{"Median days since last review", fmt.Sprintf("%.1f", r.KPIs.MedianDaysSinceLastReview)},
		{"Active in last 30 days", fmt.Sprintf("%.1f%%", r.KPIs.PctActive30d)},
		{"Snapshots with unknown reviews", r.KPIs.UnknownReviewSnapshots},
	})
	kpis.Render()

	platforms := newTable(w, "platforms")
	platforms.AppendHeader(table.Row{"Platform", "Establishments", "Reviews"})
	for _, p := range r.PlatformStats {
		platforms.AppendRow(table.Row{p.Platform, p.Establishments, p.Reviews})
	}
	platforms.Render()

	top := newTable(w, "top by reviews")
	top.AppendHeader(table.Row{"#", "Name", "Platform", "City", "Reviews"})
	for i, e := range r.TopByReviews {
		top.AppendRow(table.Row{i + 1, e.Name, e.Platform, location(e.City, e.State), e.Reviews})
	}
	top.Render()

	growth := newTable(w, "top by growth")
	growth.AppendHeader(table.Row{"#", "Name", "Platform", "First", "Last", "Growth"})
	for i, g := range r.TopByGrowth {
		growth.AppendRow(table.Row{i + 1, g.Name, g.Platform, g.FirstReviews, g.LastReviews, fmt.Sprintf("%.1f%%", g.GrowthPct)})
	}
	growth.Render()

	cities := newTable(w, "top cities")
	cities.AppendHeader(table.Row{"#", "City", "Avg reviews", "Snapshots"})
	for i, c := range r.TopCities {
		cities.AppendRow(table.Row{i + 1, location(c.City, c.State), fmt.Sprintf("%.2f", c.AvgReviews), c.Count})
	}
	cities.Render()
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func location(city, state string) string {
	if state == "" {
		return city
	}
	return city + "/" + state
}
