// Package cmd provides the root command and CLI setup for nest.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"nest.dev/pkg/nest/internal/adapter"
	"nest.dev/pkg/nest/internal/builtin"
	"nest.dev/pkg/nest/internal/controller"
	"nest.dev/pkg/nest/internal/domain"
	m "nest.dev/pkg/nest/internal/model"
)

const (
	verboseFlagName     = "verbose"
	searchPathsFlagName = "search-paths"
	plainFlagName       = "plain"
)

const rootLongDescription = `Nest registers Go functions as named modules, keeps them in sync with
their source files and wires them together from YAML, TOML or HCL task
documents.

Settings live in $NEST_HOME/settings.yaml (default ~/.nest) and can be
overridden with NEST_* environment variables.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nest",
		Short:         "Hot-reloading module registry and task runner",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	cmd.AddCommand(
		newModuleCmd(),
		newTaskCmd(),
		newSettingCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolP(verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	cmd.PersistentFlags().String(searchPathsFlagName, viper.GetString(searchPathsKey), "search-path table file (default $NEST_HOME/search_paths.yaml)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(searchPathsFlagName), searchPathsKey)

	cmd.PersistentFlags().Bool(plainFlagName, viper.GetBool(uiPlainKey), "never open the interactive browser")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(plainFlagName), uiPlainKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute reads the settings, then runs the command tree. This is called by
// main.main().
func Execute() {
	initConfig()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func naming() m.Naming {
	return m.Naming{
		Separator: viper.GetString(namespaceSeparatorKey),
		Reverse:   viper.GetBool(namespaceReverseKey),
	}
}

// newWorkflow assembles the registry and its adapters from the current
// settings. Output goes to cmd.
func newWorkflow(cmd *cobra.Command) (domain.Workflow, error) {
	out := cmd.OutOrStdout()
	names := naming()

	store := adapter.NewYAMLSearchPathStore()
	fs := adapter.NewLocalSourceFSAdapter()
	table := m.Path(searchPathsFile())
	loader := domain.NewUnitLoader(fs, adapter.NewLocalGoFileAdapter(), adapter.NewYaegiInterpreter(out, cmd.ErrOrStderr()), names)

	registry := domain.NewRegistry(
		domain.NewStoredSearchPaths(store, table),
		loader,
		fs,
		adapter.NewYAMLMetadataStore(),
		domain.RegistryOptions{
			Naming:         names,
			Order:          viper.GetStringSlice(namespaceOrderKey),
			ConfigFile:     viper.GetString(namespaceConfigFileKey),
			Parallel:       viper.GetInt(discoveryParallelKey),
			Raise:          viper.GetBool(errorsRaiseKey),
			ReloadInterval: viper.GetDuration(reloadIntervalKey),
			ServeStale:     viper.GetBool(reloadServeStaleKey),
		},
	)

	if err := registry.RegisterFrozen(cmd.Context(), builtin.Namespace, builtin.Specs(out)); err != nil {
		return nil, fmt.Errorf("register %s modules: %w", builtin.Namespace, err)
	}

	interactive := !viper.GetBool(uiPlainKey) && controller.IsTTY(os.Stdout)
	if f, ok := out.(*os.File); !ok || f != os.Stdout {
		interactive = false
	}

	return domain.NewWorkflow(
		registry,
		store,
		fs,
		adapter.NewLocalDocumentLoader(),
		adapter.NewFSNotifyWatcher(viper.GetDuration(watchDebounceKey)),
		loader,
		controller.NewUI(cmd, interactive),
		domain.WorkflowOptions{
			SearchPaths: table,
			Builder: domain.BuilderOptions{
				Strict:         viper.GetBool(parserStrictKey),
				VariablePrefix: viper.GetString(parserVariablePrefixKey),
			},
		},
	), nil
}
