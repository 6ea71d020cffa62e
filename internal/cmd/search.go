package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search PubMed",
	Long: `Run an esearch query and print the matching PMIDs.

Without a term the Rochester, MN affiliation query is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("retmax", 20, "Maximum number of ids to return")
	searchCmd.Flags().Int("retstart", 0, "Index of the first id to return")
	searchCmd.Flags().String("sort", "", "Sort order (for example pub_date, relevance)")
	searchCmd.Flags().Int("reldate", 0, "Only records from the last N days")
	searchCmd.Flags().String("datetype", "", "Date field for reldate/mindate/maxdate (edat, pdat, mdat)")
	searchCmd.Flags().String("mindate", "", "Earliest date (YYYY/MM/DD)")
	searchCmd.Flags().String("maxdate", "", "Latest date (YYYY/MM/DD)")
	addOutputFlags(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	term := pubmed.DefaultLocationTerm
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		term = args[0]
	}

	query := pubmed.SearchQuery{Term: term}
	var err error
	if query.RetMax, err = cmd.Flags().GetInt("retmax"); err != nil {
		return err
	}
	if query.RetStart, err = cmd.Flags().GetInt("retstart"); err != nil {
		return err
	}
	if query.RelDate, err = cmd.Flags().GetInt("reldate"); err != nil {
		return err
	}
	if query.Sort, err = cmd.Flags().GetString("sort"); err != nil {
		return err
	}
	if query.DateType, err = cmd.Flags().GetString("datetype"); err != nil {
		return err
	}
	if query.MinDate, err = cmd.Flags().GetString("mindate"); err != nil {
		return err
	}
	if query.MaxDate, err = cmd.Flags().GetString("maxdate"); err != nil {
		return err
	}
	if query.RetMax < 0 {
		return fmt.Errorf("retmax must not be negative")
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	result, err := svc.client.Search(cmd.Context(), query)
	if err != nil {
		return err
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatSearch(result)
	})
}
