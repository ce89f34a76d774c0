package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/discovery"
)

type crawlOptions struct {
	platform string
	file     string
	city     string
	state    string
	targets  []string
	runID    string
	asJSON   bool
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl synchronously and prints the captured establishments",
		Long: `Crawls establishment pages on one platform and stores a snapshot per page.
Targets come from --target links, a saved iFood listing page (--file), or an
aiqfome city listing (--city and --state).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.platform, "platform", "", "platform to crawl (ifood or aiqfome)")
	cmd.Flags().StringVar(&opts.file, "file", "", "saved listing page to read targets from")
	cmd.Flags().StringVar(&opts.city, "city", "", "city slug for listing discovery")
	cmd.Flags().StringVar(&opts.state, "state", "", "state slug for listing discovery")
	cmd.Flags().StringSliceVar(&opts.targets, "target", nil, "establishment page link (repeatable)")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "run identifier (generated when empty)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the run result as JSON")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	platform, err := crawler.ParsePlatform(opts.platform)
	if err != nil {
		return err
	}
	targets, err := crawlTargets(cmd, app, platform, opts)
	if err != nil {
		return err
	}
	runID := opts.runID
	if runID == "" {
		if runID, err = app.NewRunID(); err != nil {
			return fmt.Errorf("allocate run id: %w", err)
		}
	}

	result, err := app.Runner().Run(cmd.Context(), crawler.Request{
		RunID:    runID,
		Platform: platform,
		Targets:  targets,
	})
	if err != nil {
		return fmt.Errorf("crawl run %s: %w", runID, err)
	}
	app.Logger().Info("crawl command finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", len(result.Items)),
		zap.Int("failed", len(result.Failed)),
	)
	if opts.asJSON {
		return writeIndentedJSON(cmd.OutOrStdout(), result)
	}
	renderResult(cmd.OutOrStdout(), result)
	return nil
}

func crawlTargets(cmd *cobra.Command, app App, platform crawler.Platform, opts *crawlOptions) ([]crawler.Target, error) {
	switch {
	case len(opts.targets) > 0:
		targets := make([]crawler.Target, 0, len(opts.targets))
		for _, link := range opts.targets {
			targets = append(targets, crawler.Target{Link: link, City: opts.city, State: opts.state})
		}
		return crawler.DedupeTargets(targets), nil
	case opts.file != "":
		f, err := os.Open(opts.file)
		if err != nil {
			return nil, fmt.Errorf("open listing file: %w", err)
		}
		defer f.Close()
		targets, err := discovery.FromHTML(f, app.BaseURL(platform))
		if err != nil {
			return nil, fmt.Errorf("read listing file: %w", err)
		}
		return targets, nil
	case opts.city != "" || opts.state != "":
		return app.Discover(cmd.Context(), platform, strings.TrimSpace(opts.city), strings.TrimSpace(opts.state))
	default:
		return nil, errors.New("one of --target, --file, or --city/--state is required")
	}
}

func renderResult(w io.Writer, result crawler.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("run %s (%s)", result.RunID, result.Platform))
	t.AppendHeader(table.Row{"Name", "City", "State", "Reviews", "Last review", "Link"})
	for _, item := range result.Items {
		reviews := fmt.Sprint(item.Reviews)
		if !item.ReviewsKnown {
			reviews = "?"
		}
		last := "-"
		if item.LastReview != nil {
			last = *item.LastReview
		}
		t.AppendRow(table.Row{item.Name, item.City, item.State, reviews, last, item.Link})
	}
	t.AppendFooter(table.Row{"", "", "", "", "captured", len(result.Items)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(result.Failed) == 0 {
		return
	}
	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.SetTitle("skipped targets")
	f.AppendHeader(table.Row{"Link", "Error"})
	for _, failure := range result.Failed {
		f.AppendRow(table.Row{failure.Link, failure.Error})
	}
	f.SetStyle(table.StyleRounded)
	f.Render()
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
