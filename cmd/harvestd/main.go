package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/offchainlab/harvestd/cmd/harvestd/internal/gateway"
	"github.com/offchainlab/harvestd/cmd/harvestd/internal/status"
	"github.com/offchainlab/harvestd/cmd/harvestd/internal/version"
)

func NewHarvestdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "harvestd",
		Short:   "harvestd - chat message harvesting daemon",
		Example: "harvestd gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewHarvestdCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
