package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/contractspec/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new contractspec project",
	Long: `Initialize a new contractspec project in the current directory.

This creates:
  - .contractspec.json      - Configuration file with environments
  - scenarios/example.yaml  - Example scenario file

Examples:
  contractspec init
  contractspec init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleScenarios = `name: example
variables:
  title: "Created by contractspec {{timestamp()}}"

scenarios:
  - name: create post
    tags: [smoke]
    request:
      method: POST
      path: /posts
      body: {title: "{{title}}", body: Example body, userId: 1}
    expect:
      status: 201
      headers: [Location]
      body:
        - {path: id, type: number}
    capture:
      - {name: postId, body: id}

  - name: read post
    tags: [smoke]
    dependsOn: [create post]
    request: {method: GET, path: "/posts/{{postId}}"}
    expect:
      status: 200
      body:
        - {path: id, equals: "{{postId}}"}
        - {path: title, equals: "{{title}}"}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "scenarios", "example.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Headers = map[string]string{"User-Agent": "contractspec/" + version}
	cfg.Environments = map[string]map[string]any{
		"dev":     {"baseUrl": "http://localhost:3000"},
		"staging": {"baseUrl": "https://staging.api.example.com"},
	}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.MkdirAll(filepath.Dir(exampleFile), 0755); err != nil {
		return fmt.Errorf("failed to create scenarios directory: %w", err)
	}
	if err := os.WriteFile(exampleFile, []byte(exampleScenarios), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ncontractspec project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Start the fake API with 'contractspec serve', then run 'contractspec run scenarios/'.\n")

	return nil
}
