package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/catalog"
	"github.com/abdul-hamid-achik/contractspec/packages/core/config"
	"github.com/abdul-hamid-achik/contractspec/packages/core/env"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
	"github.com/abdul-hamid-achik/contractspec/packages/history"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
	"github.com/abdul-hamid-achik/contractspec/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file|directory...]",
	Short: "Run contract scenarios",
	Long: `Run the scenarios in YAML scenario files, or the built-in posts and
auth contract with --builtin. Scenarios run one at a time in file order.

Examples:
  contractspec run --builtin --base-url http://localhost:3000
  contractspec run scenarios/posts.yaml
  contractspec run ./scenarios/ --env staging --tags smoke
  contractspec run scenarios/ --output junit --output-file report.xml
  contractspec run --builtin --seed 42 --history runs.db`,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond

	// BuiltinSource names the built-in catalog in reports.
	BuiltinSource = "builtin"

	defaultBaseURL = "http://localhost:3000"
)

var (
	envFlag        string
	envFileFlag    string
	configFlag     string
	baseURLFlag    string
	nameFlag       string
	tagsFlag       string
	verboseFlag    int
	noColorFlag    bool
	outputFlag     string
	outputFileFlag string
	bailFlag       bool
	timeoutFlag    string
	runTimeoutFlag string
	rateFlag       float64
	seedFlag       int64
	historyFlag    string
	builtinFlag    bool
	dryRunFlag     bool
	watchFlag      bool
	proxyFlag      string
	insecureFlag   bool
)

func init() {
	// Core flags
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("CONTRACTSPEC_ENV", ""), "Environment from the config file (env: CONTRACTSPEC_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("CONTRACTSPEC_ENV_FILE", ""), "Path to .env file for template variables (env: CONTRACTSPEC_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("CONTRACTSPEC_CONFIG", ""), "Path to config file (env: CONTRACTSPEC_CONFIG)")
	runCmd.Flags().StringVarP(&baseURLFlag, "base-url", "u", getEnvString("CONTRACTSPEC_BASE_URL", ""), "Base URL of the API under test (env: CONTRACTSPEC_BASE_URL)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only scenarios matching name pattern (leading or trailing * allowed)")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", getEnvString("CONTRACTSPEC_TAGS", ""), "Run only scenarios with one of these tags (comma-separated) (env: CONTRACTSPEC_TAGS)")
	runCmd.Flags().BoolVar(&builtinFlag, "builtin", false, "Run the built-in posts and auth contract")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output: request lines and captured values")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("CONTRACTSPEC_NO_COLOR", false), "Disable colored output (env: CONTRACTSPEC_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("CONTRACTSPEC_OUTPUT", ""), "Output format: console, json, junit (env: CONTRACTSPEC_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("CONTRACTSPEC_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: CONTRACTSPEC_OUTPUT_FILE)")
	runCmd.Flags().StringVar(&historyFlag, "history", getEnvString("CONTRACTSPEC_HISTORY", ""), "Record runs in this SQLite file (env: CONTRACTSPEC_HISTORY)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("CONTRACTSPEC_BAIL", false), "Skip remaining scenarios after the first failure (env: CONTRACTSPEC_BAIL)")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("CONTRACTSPEC_TIMEOUT", ""), "Per-request timeout, e.g. 30s (env: CONTRACTSPEC_TIMEOUT)")
	runCmd.Flags().StringVar(&runTimeoutFlag, "run-timeout", getEnvString("CONTRACTSPEC_RUN_TIMEOUT", ""), "Timeout for the whole run, e.g. 5m (env: CONTRACTSPEC_RUN_TIMEOUT)")
	runCmd.Flags().Float64VarP(&rateFlag, "rate", "r", getEnvFloat("CONTRACTSPEC_RATE", 0), "Maximum requests per second, 0 for no limit (env: CONTRACTSPEC_RATE)")
	runCmd.Flags().Int64Var(&seedFlag, "seed", getEnvInt64("CONTRACTSPEC_SEED", 0), "Seed for generated test data, 0 for random (env: CONTRACTSPEC_SEED)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "List what would run without sending requests")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch scenario files for changes and re-run")

	// Network flags
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("CONTRACTSPEC_PROXY", ""), "Proxy URL for HTTP requests (env: CONTRACTSPEC_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("CONTRACTSPEC_INSECURE", false), "Disable SSL certificate validation (env: CONTRACTSPEC_INSECURE)")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Streamer is implemented by formatters that print scenarios as they finish.
type Streamer interface {
	FormatSource(source string)
	FormatScenario(res *runner.ScenarioResult)
	FormatSummary(result *runner.RunResult)
}

func newFormatter(format string, w io.Writer, cfg *config.Config) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w)), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verboseFlag > 0 || cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console, json or junit)", format)
	}
}

// boolOverride returns a pointer only when the flag was given on the command
// line or through its environment variable, so config values survive.
func boolOverride(cmd *cobra.Command, name, envKey string, val bool) *bool {
	if cmd.Flags().Changed(name) || os.Getenv(envKey) != "" {
		return config.BoolPtr(val)
	}
	return nil
}

func parseMillis(flag, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w (use format like 30s, 1m, 500ms)", flag, value, err)
	}
	return int(d.Milliseconds()), nil
}

// runConfig loads the config file and applies command-line overrides.
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}

	timeout, err := parseMillis("timeout", timeoutFlag)
	if err != nil {
		return nil, exitWith(ExitUsageError, err)
	}
	runTimeout, err := parseMillis("run-timeout", runTimeoutFlag)
	if err != nil {
		return nil, exitWith(ExitUsageError, err)
	}

	overrides := &config.Config{
		BaseURL:            baseURLFlag,
		DefaultEnvironment: envFlag,
		Timeout:            timeout,
		RunTimeout:         runTimeout,
		RateLimit:          rateFlag,
		Seed:               seedFlag,
		Proxy:              proxyFlag,
		History:            historyFlag,
		Bail:               boolOverride(cmd, "bail", "CONTRACTSPEC_BAIL", bailFlag),
		NoColor:            boolOverride(cmd, "no-color", "CONTRACTSPEC_NO_COLOR", noColorFlag),
	}
	if insecureFlag {
		overrides.ValidateSSL = config.BoolPtr(false)
	}
	if outputFlag != "" {
		if _, err := newFormatter(outputFlag, io.Discard, fileConfig); err != nil {
			return nil, exitWith(ExitUsageError, err)
		}
		overrides.Reporters = []string{strings.ToLower(outputFlag)}
	}

	cfg := fileConfig.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *http.Client {
	return http.NewClient(
		http.WithTimeout(cfg.GetTimeout()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithMaxRedirects(cfg.MaxRedirects),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithProxy(cfg.Proxy),
		http.WithDefaultHeaders(cfg.Headers),
		http.WithRateLimit(cfg.RateLimit),
	)
}

// runPlan is everything needed to execute one pass over the sources.
type runPlan struct {
	cfg        *config.Config
	files      []string
	builtin    bool
	variables  map[string]any
	nameFilter string
	tags       []string
	dryRun     bool
	history    *history.Store
	out        io.Writer
}

// loadSuites parses every file and appends the built-in catalog, if asked.
// Files are re-read on every call so watch mode picks up edits.
func (p *runPlan) loadSuites(provider builtin.Provider) ([]*parser.Suite, error) {
	var suites []*parser.Suite
	for _, file := range p.files {
		suite, err := parser.ParseFile(file)
		if err != nil {
			return nil, err
		}
		suites = append(suites, suite)
	}
	if p.builtin {
		suites = append(suites, &parser.Suite{
			Name:      BuiltinSource,
			Variables: map[string]any{runner.BaseURLVariable: defaultBaseURL},
			Scenarios: catalog.All(provider),
		})
	}
	return suites, nil
}

func suiteSource(s *parser.Suite) string {
	if s.Path != "" {
		return s.Path
	}
	return s.Name
}

// execute runs every suite with its own registry so captured values never
// leak between sources. A parse or registration error stops the pass before
// any request is sent.
func (p *runPlan) execute(ctx context.Context, formatter Formatter) ([]*runner.RunResult, error) {
	provider := builtin.NewProvider(p.cfg.Seed)
	client := newClient(p.cfg)

	suites, err := p.loadSuites(provider)
	if err != nil {
		return nil, exitWith(ExitParseError, err)
	}

	streamer, streaming := formatter.(Streamer)

	registries := make([]*runner.Registry, len(suites))
	for i, suite := range suites {
		opts := []runner.Option{
			runner.WithClient(client),
			runner.WithProvider(provider),
			runner.WithBaseURL(p.cfg.BaseURL),
			runner.WithBail(p.cfg.GetBail()),
			runner.WithRunTimeout(p.cfg.GetRunTimeout()),
			runner.WithNameFilter(p.nameFilter),
			runner.WithTags(p.tags...),
			runner.WithWarnFunc(warn),
		}
		if streaming {
			opts = append(opts, runner.WithObserver(streamer.FormatScenario))
		}
		registries[i] = runner.NewRegistry(opts...)

		res := registries[i].Resolver()
		res.SetVariables(p.variables)
		if err := registries[i].RegisterSuite(suite); err != nil {
			return nil, exitWith(ExitParseError, fmt.Errorf("%s: %w", suiteSource(suite), err))
		}
		// Environment values win over a suite's own defaults.
		res.SetVariables(p.variables)
	}

	if p.dryRun {
		for i, suite := range suites {
			fmt.Fprintf(p.out, "%s:\n", suiteSource(suite))
			for _, s := range registries[i].Scenarios() {
				fmt.Fprintf(p.out, "  Would run: %s (%s %s)\n", s.Name, s.Request.Method, s.Request.Path)
			}
		}
		return nil, nil
	}

	var results []*runner.RunResult
	for i, suite := range suites {
		if ctx.Err() != nil {
			break
		}
		source := suiteSource(suite)
		if streaming {
			streamer.FormatSource(source)
		}

		result := registries[i].RunAll(ctx)
		result.Source = source
		results = append(results, result)

		if streaming {
			streamer.FormatSummary(result)
		} else {
			formatter.FormatResult(result)
		}

		if p.history != nil {
			if err := p.history.Record(ctx, result); err != nil {
				warn("recording run history: %v", err)
			}
		}

		if p.cfg.GetBail() && result.Failed > 0 {
			break
		}
	}
	return results, nil
}

func countFailed(results []*runner.RunResult) int {
	failed := 0
	for _, r := range results {
		failed += r.Failed
	}
	return failed
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !builtinFlag {
		return exitWith(ExitUsageError, errors.New("no scenario files given (pass files, directories or --builtin)"))
	}

	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}

	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(args) > 0 && len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no .yaml or .yml scenario files found"))
	}

	environment, err := env.LoadEnvironment(cfg.DefaultEnvironment, cfg.Environments, envFileFlag)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	// Setup output writer
	format := ""
	if len(cfg.Reporters) > 0 {
		format = cfg.Reporters[0]
	}
	var outWriter io.Writer = cmd.OutOrStdout()
	outPath := outputFileFlag
	if outPath == "" && cfg.OutputDir != "" && format != "console" {
		outPath = filepath.Join(cfg.OutputDir, reportFilename(format))
	}
	if outPath != "" {
		if dir := filepath.Dir(outPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return exitWith(ExitConfigError, fmt.Errorf("cannot create output directory: %w", err))
			}
		}
		f, err := os.Create(outPath)
		if err != nil {
			return exitWith(ExitConfigError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		outWriter = f
	}

	formatter, err := newFormatter(format, outWriter, cfg)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	formatter.FormatHeader(version)

	plan := &runPlan{
		cfg:        cfg,
		files:      files,
		builtin:    builtinFlag,
		variables:  environment.Variables,
		nameFilter: nameFlag,
		tags:       splitList(tagsFlag),
		dryRun:     dryRunFlag,
		out:        cmd.OutOrStdout(),
	}

	if cfg.History != "" && !dryRunFlag {
		store, err := history.Open(cfg.History)
		if err != nil {
			return exitWith(ExitConfigError, fmt.Errorf("opening run history: %w", err))
		}
		defer store.Close()
		plan.history = store
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce := func(formatter Formatter) (int, error) {
		start := time.Now()
		results, err := plan.execute(ctx, formatter)
		if err != nil {
			return 0, err
		}
		// Flush output for formatters that accumulate results
		if flushable, ok := formatter.(Flushable); ok {
			if err := flushable.Flush(time.Since(start)); err != nil {
				return 0, fmt.Errorf("error writing output: %w", err)
			}
		}
		return countFailed(results), nil
	}

	failed, err := runOnce(formatter)

	// If watch mode is not enabled, exit normally
	if !watchFlag || dryRunFlag {
		if err != nil {
			return err
		}
		if failed > 0 {
			return exitWith(ExitTestFailure, nil)
		}
		return nil
	}

	return watch(ctx, cmd, files, args, func() {
		if len(args) > 0 {
			if files, err := collectFiles(args); err == nil {
				plan.files = files
			}
		}
		f, err := newFormatter(format, outWriter, cfg)
		if err != nil {
			return
		}
		if _, err := runOnce(f); err != nil {
			f.FormatError(err)
		}
	})
}

func reportFilename(format string) string {
	if format == "junit" {
		return "contractspec-junit.xml"
	}
	return "contractspec-results.json"
}

// watch re-runs rerun whenever a scenario file under the watched paths is
// written, until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, files, args []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				warn("failed to watch %s: %v", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	// Also watch the original args if they're directories
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	if len(watchedDirs) == 0 {
		return exitWith(ExitUsageError, errors.New("--watch needs scenario files to watch"))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")
	watchLoop(ctx, watcher.Events, watcher.Errors, cmd.OutOrStdout(), WatchDebounceDelay, rerun)
	return nil
}

// watchLoop debounces scenario file events and calls rerun on its own
// goroutine, so reruns never overlap. Events arriving during a rerun start
// a new debounce window once it returns.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, out io.Writer, delay time.Duration, rerun func()) {
	var (
		pending <-chan time.Time
		changed string
	)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isScenarioFile(event.Name) {
				changed = event.Name
				pending = time.After(delay)
			}

		case <-pending:
			pending = nil
			fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running scenarios...\n\n", changed)
			rerun()
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-errs:
			if !ok {
				return
			}
			warn("watcher error: %v", err)
		}
	}
}
