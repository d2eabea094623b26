package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nest.dev/pkg/nest/internal/domain"
	m "nest.dev/pkg/nest/internal/model"
)

const taskRunLongDescription = `Build a task document. Every mapping with a _name key calls the named
module with the remaining keys as arguments, innermost mappings first.

  _var:      defines variables for the siblings that follow
  _partial:  binds the given arguments and passes the module on as a callable
  "@name":   reads a variable, then the environment ("@@" escapes the prefix)

With --params, the document is built once per entry of the params file.
Entries accumulate, so later entries see earlier assignments.`

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run task documents",
	}

	cmd.AddCommand(newTaskRunCmd())

	return cmd
}

func newTaskRunCmd() *cobra.Command {
	var (
		params string
		vars   []string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "run CONFIG",
		Short: "Build a YAML, TOML or HCL task document",
		Long:  taskRunLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			globals, err := parseVars(vars)
			if err != nil {
				return err
			}

			workflow, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return workflow.Run(ctx, domain.RunArgs{
				Config: m.Path(positional[0]),
				Params: m.Path(params),
				Vars:   globals,
				Watch:  watch,
			})
		},
	}

	cmd.Flags().StringVarP(&params, "params", "p", "", "document with one mapping or a list of mappings to sweep over")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "global variable as KEY=VALUE, VALUE parsed as YAML (can be repeated)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rebuild whenever the document or a namespace changes")

	return cmd
}

// parseVars turns KEY=VALUE pairs into global variables. Values are YAML
// scalars, so numbers and booleans keep their type.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid variable %q: expected KEY=VALUE", pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		vars[strings.TrimSpace(key)] = value
	}

	return vars, nil
}
