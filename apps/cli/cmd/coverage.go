package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/catalog"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/coverage"
	"github.com/abdul-hamid-achik/contractspec/packages/fakeapi"
	"github.com/spf13/cobra"
)

var (
	coverageBuiltinFlag bool
	coverageOpenAPIFlag string
	coverageJSONFlag    bool
)

var coverageCmd = &cobra.Command{
	Use:   "coverage [file|directory...]",
	Short: "Show which API endpoints the scenarios exercise",
	Long: `Match every scenario request against a list of endpoints and report
which endpoints no scenario touches. Endpoints come from an OpenAPI
document with --openapi, or default to the routes of the fake API.

Examples:
  contractspec coverage --builtin
  contractspec coverage scenarios/ --openapi openapi.yaml --json`,
	RunE: coverageCommand,
}

func init() {
	coverageCmd.Flags().BoolVar(&coverageBuiltinFlag, "builtin", false, "Include the built-in posts and auth contract")
	coverageCmd.Flags().StringVar(&coverageOpenAPIFlag, "openapi", "", "OpenAPI document listing the endpoints")
	coverageCmd.Flags().BoolVar(&coverageJSONFlag, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(coverageCmd)
}

func coverageCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !coverageBuiltinFlag {
		return exitWith(ExitUsageError, errors.New("no scenario files given (pass files, directories or --builtin)"))
	}

	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	var scenarios []*parser.Scenario
	for _, file := range files {
		suite, err := parser.ParseFile(file)
		if err != nil {
			return exitWith(ExitParseError, err)
		}
		scenarios = append(scenarios, suite.Scenarios...)
	}
	if coverageBuiltinFlag {
		scenarios = append(scenarios, catalog.All(builtin.NewProvider(0))...)
	}

	analyzer := coverage.NewAnalyzer(coverage.WithPathRewrite(fakeapi.UnguardedPath))
	if coverageOpenAPIFlag != "" {
		if err := analyzer.LoadOpenAPI(coverageOpenAPIFlag); err != nil {
			return exitWith(ExitConfigError, err)
		}
	} else {
		for _, r := range fakeapi.NewServer().Routes() {
			analyzer.AddEndpoint(coverage.Endpoint{Method: r.Method, Path: r.PathPattern})
		}
	}

	report := analyzer.Analyze(coverage.RequestsFromScenarios(scenarios))
	if coverageJSONFlag {
		out, err := report.FormatJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), report.FormatConsole())
	return nil
}
