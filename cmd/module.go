package cmd

import (
	"github.com/spf13/cobra"

	"nest.dev/pkg/nest/internal/domain"
	m "nest.dev/pkg/nest/internal/model"
)

const queryHelp = `Queries:
  name           exact module name, qualified or not
  vision.*       glob over qualified names
  *_loader       glob over identifiers
  re:^vision\.   regular expression over qualified names`

func newModuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Inspect and manage module namespaces",
	}

	cmd.AddCommand(
		newModuleListCmd(),
		newModuleInstallCmd(),
		newModuleRemoveCmd(),
		newModuleCheckCmd(),
	)

	return cmd
}

func newModuleListCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered modules",
		Long:  "List registered modules, optionally filtered.\n\n" + queryHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workflow, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			return workflow.List(cmd.Context(), domain.ListArgs{Query: query})
		},
	}

	cmd.Flags().StringVarP(&query, "filter", "f", "", "only list modules matching this query")

	return cmd
}

func newModuleInstallCmd() *cobra.Command {
	var args domain.InstallArgs

	cmd := &cobra.Command{
		Use:   "install PATH",
		Short: "Add a directory to the search-path table",
		Long: `Add a directory to the search-path table. The namespace is named after
the directory unless --name is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			workflow, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			args.Path = m.Path(positional[0])

			return workflow.Install(cmd.Context(), args)
		},
	}

	cmd.Flags().StringVarP(&args.Name, "name", "n", "", "namespace name")
	cmd.Flags().BoolVar(&args.Frozen, "frozen", false, "never reload modules from this namespace")
	cmd.Flags().BoolVar(&args.Force, "force", false, "replace an existing namespace with the same name")

	return cmd
}

func newModuleRemoveCmd() *cobra.Command {
	var args domain.RemoveArgs

	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Drop a namespace from the search-path table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			workflow, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			args.Name = positional[0]

			return workflow.Remove(cmd.Context(), args)
		},
	}

	cmd.Flags().BoolVarP(&args.Delete, "delete", "d", false, "also delete the namespace directory")

	return cmd
}

func newModuleCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [namespace|path...]",
		Short: "Parse source units without registering them",
		Long: `Parse and interpret source units without registering them, reporting
every unit that would be skipped. With no arguments every installed namespace
is checked.`,
		RunE: func(cmd *cobra.Command, targets []string) error {
			workflow, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			return workflow.Check(cmd.Context(), domain.CheckArgs{Targets: targets})
		},
	}
}
