package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats [term]",
	Short: "Show publication counts for the last day, week and month",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	addOutputFlags(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	var term string
	if len(args) == 1 {
		term = args[0]
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

	stats, err := svc.client.Stats(cmd.Context(), term, time.Now())
	if err != nil {
		return err
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatStats(stats)
	})
}
