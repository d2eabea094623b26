package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a default settings.yaml",
		Long: `Create $NEST_HOME/settings.yaml populated with the current defaults so it
can be edited manually. An existing file is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(nestHome(), 0o750); err != nil {
				return fmt.Errorf("create %s: %w", nestHome(), err)
			}

			if err := viper.SafeWriteConfigAs(settingsFile()); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cmd.Println("wrote", settingsFile())

			return nil
		},
	}
}
