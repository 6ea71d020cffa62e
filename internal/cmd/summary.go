package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/output"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <pmid>...",
	Short: "Show esummary records for PMIDs",
	Long:  "Fetch esummary documents for one or more PMIDs. Ids may be given as separate arguments or comma separated.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	addOutputFlags(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ids := gateway.UniqueIDs(splitArgs(args))
	if len(ids) == 0 {
		return errors.New("at least one pmid is required")
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

	summaries, err := svc.client.Summaries(cmd.Context(), ids)
	if err != nil {
		return err
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatSummaries(summaries)
	})
}
