package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/core/trending"
	"github.com/medcityai/pubgate/internal/observability"
	"github.com/medcityai/pubgate/internal/output"
)

var featuredCmd = &cobra.Command{
	Use:   "featured",
	Short: "Build the weekly featured articles report",
	Long: `Rank last week's liked articles, fetch their records and write the
featured report to featured.output_path.

With --show the last written report is printed instead.`,
	RunE: runFeatured,
}

func init() {
	rootCmd.AddCommand(featuredCmd)

	featuredCmd.Flags().Bool("show", false, "Print the last written report without rebuilding")
	featuredCmd.Flags().Int("limit", 0, "Maximum featured articles (default from config)")
	featuredCmd.Flags().String("path", "", "Report path (overrides featured.output_path)")
	addOutputFlags(featuredCmd)
}

func runFeatured(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if path, _ := cmd.Flags().GetString("path"); path != "" {
		overrides["featured.output_path"] = path
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		overrides["featured.limit"] = limit
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	if show, _ := cmd.Flags().GetBool("show"); show {
		report, err := trending.ReadFeatured(fs, cfg.Featured.OutputPath)
		if err != nil {
			return fmt.Errorf("read featured report: %w", err)
		}
		return render(cmd, func(f output.Formatter) (string, error) {
			return f.FormatFeatured(report)
		})
	}

	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	report, err := buildFeatured(cmd.Context(), cfg, svc, fs, time.Now())
	if err != nil {
		if errors.Is(err, trending.ErrNoLikes) {
			cmd.PrintErrln("No liked articles in the prior week; report not written.")
			return nil
		}
		return err
	}
	if verbose {
		cmd.PrintErrf("Wrote %s\n", cfg.Featured.OutputPath)
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatFeatured(report)
	})
}

// buildFeatured builds the report for the week before now and writes it.
// ErrNoLikes leaves any previous report in place.
func buildFeatured(ctx context.Context, cfg *config.Config, svc *services, fs afero.Fs, now time.Time) (*trending.FeaturedReport, error) {
	likes, err := newTrendingService(cfg).Likes.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch likes: %w", err)
	}

	report, err := trending.BuildFeatured(ctx, likes, svc.client, now, cfg.Featured.Limit)
	if err != nil {
		return nil, err
	}
	if err := trending.WriteFeatured(fs, cfg.Featured.OutputPath, report); err != nil {
		return nil, fmt.Errorf("write featured report: %w", err)
	}

	if logger := observability.Logger(); logger != nil {
		logger.Info("Featured report written",
			zap.String("run_id", report.RunID),
			zap.String("week_start", report.WeekStart),
			zap.Int("featured", report.FeaturedCount),
			zap.String("path", cfg.Featured.OutputPath))
	}
	return report, nil
}
