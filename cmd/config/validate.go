package config

import (
	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validates the current configuration",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// note: config file path parameter comes from the root command (-c)
		configuration.ReadConfigFile()

		if err := configuration.Validate(); err != nil {
			ui.FatalWithoutStacktrace("Validation failed: %v", err)
		}

		ui.Success("Config looks good! :)")
		return nil
	},
}

func init() {
	Command.AddCommand(validateCmd)
}
