package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/catalog"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/spf13/cobra"
)

var listBuiltinFlag bool

var listCmd = &cobra.Command{
	Use:   "list [file|directory...]",
	Short: "List scenarios in execution order",
	Long: `List the scenarios in scenario files, or in the built-in catalog with
--builtin, in the order they would run.

Examples:
  contractspec list scenarios/posts.yaml
  contractspec list --builtin`,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().BoolVar(&listBuiltinFlag, "builtin", false, "List the built-in posts and auth contract")
}

func listCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !listBuiltinFlag {
		return exitWith(ExitUsageError, errors.New("no scenario files given (pass files, directories or --builtin)"))
	}

	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(args) > 0 && len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no .yaml or .yml scenario files found"))
	}

	out := cmd.OutOrStdout()
	for _, file := range files {
		suite, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}
		printScenarios(out, file, suite.Scenarios)
	}

	if listBuiltinFlag {
		printScenarios(out, BuiltinSource, catalog.All(builtin.NewProvider(0)))
	}

	return nil
}

func printScenarios(w io.Writer, source string, scenarios []*parser.Scenario) {
	fmt.Fprintf(w, "\n%s:\n", source)
	for _, s := range scenarios {
		fmt.Fprintf(w, "  - %s\n", s.Name)
		fmt.Fprintf(w, "    %s %s -> %s\n", s.Request.Method, s.Request.Path, s.Expect.Status)
		if len(s.Tags) > 0 {
			fmt.Fprintf(w, "    tags: %s\n", strings.Join(s.Tags, ", "))
		}
		if len(s.DependsOn) > 0 {
			fmt.Fprintf(w, "    depends on: %s\n", strings.Join(s.DependsOn, ", "))
		}
	}
}
