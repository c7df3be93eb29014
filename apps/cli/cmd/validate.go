package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate scenario files without running them",
	Long: `Validate scenario files without sending any request. A file is valid
when it parses, every scenario has a name, a known method and an expected
status, names are unique and each dependency names an earlier scenario.

Examples:
  contractspec validate scenarios/posts.yaml
  contractspec validate ./scenarios/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no .yaml or .yml scenario files found"))
	}

	hasErrors := false
	for _, file := range files {
		suite, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d scenarios)\n", file, len(suite.Scenarios))
	}

	if hasErrors {
		return exitWith(ExitParseError, errors.New("validation failed"))
	}

	return nil
}
