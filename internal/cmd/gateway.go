package cmd

import (
	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/output"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Show the effective gateway settings",
	RunE:  runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	addOutputFlags(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	svc, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	view := output.GatewayView{Settings: svc.gateway.Settings(), State: svc.gateway.State()}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatGateway(view)
	})
}
