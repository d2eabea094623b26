package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newSettingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Show or change nest settings",
	}

	cmd.AddCommand(newSettingShowCmd(), newSettingSetCmd())

	return cmd
}

func newSettingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [KEY]",
		Short: "Print the effective settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = viper.AllSettings()

			if len(args) == 1 {
				if !slices.Contains(viper.AllKeys(), args[0]) {
					return fmt.Errorf("unknown setting %q", args[0])
				}

				value = viper.Get(args[0])
			}

			out, err := yaml.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}

			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
}

func newSettingSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Persist one setting to settings.yaml",
		Long: `Persist one setting to $NEST_HOME/settings.yaml. VALUE is parsed as YAML,
so lists are written as [a, b].`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if key == homeKey || !slices.Contains(viper.AllKeys(), key) {
				return fmt.Errorf("unknown setting %q", key)
			}

			var value any
			if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}

			viper.Set(key, value)

			if err := os.MkdirAll(nestHome(), 0o750); err != nil {
				return fmt.Errorf("create %s: %w", nestHome(), err)
			}

			if err := viper.WriteConfigAs(settingsFile()); err != nil {
				return fmt.Errorf("failed to write settings: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)

			return nil
		},
	}
}
