// Package cmd defines the CLI commands for the reviewtrends executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/config"
	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/logging"
	"github.com/JakeFAU/review-trends/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the application the commands use, so tests can inject
// a fake.
type App interface {
	Logger() *zap.Logger
	Runner() crawler.Runner
	Report(ctx context.Context) (analytics.Report, error)
	Discover(ctx context.Context, platform crawler.Platform, city, state string) ([]crawler.Target, error)
	BaseURL(platform crawler.Platform) string
	NewRunID() (string, error)
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewtrends",
		Short: "Crawls delivery platforms and reports establishment review trends.",
		Long: `reviewtrends collects establishment review snapshots from iFood and aiqfome
with a headless browser and computes market analytics over the stored history.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(App); ok && app != nil {
				if err := app.Close(context.Background()); err != nil {
					app.Logger().Warn("application close failed", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/reviewtrends, $HOME/.reviewtrends)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	app, ok := ctx.Value(appKey).(App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}
