package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/output"
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List the most liked recent articles",
	Long: `Combine community like counts with the article catalog and print the
most liked articles published inside the trending window.`,
	RunE: runTrending,
}

func init() {
	rootCmd.AddCommand(trendingCmd)

	trendingCmd.Flags().Int("limit", 0, "Maximum number of articles (default from config)")
	trendingCmd.Flags().String("catalog", "", "Catalog CSV path (overrides trending.catalog_path)")
	addOutputFlags(trendingCmd)
}

func runTrending(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	overrides := map[string]any{}
	if catalog, _ := cmd.Flags().GetString("catalog"); catalog != "" {
		overrides["trending.catalog_path"] = catalog
	}

	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}
	entries, err := newTrendingService(cfg).Trending(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatTrending(entries)
	})
}
