package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/assertions"
	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case string:
		v = fmt.Sprintf("%q", val)
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// FormatScenario prints one line for res. It is used directly as a runner
// observer so progress shows while the run is going.
func (f *ConsoleFormatter) FormatScenario(res *runner.ScenarioResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	switch res.Outcome {
	case runner.Skipped:
		fmt.Fprintf(f.writer, "  %s %s", yellow("-"), res.Name)
		if res.Reason != runner.ReasonFilteredOut || f.verbose {
			fmt.Fprintf(f.writer, " %s", yellow("("+res.Reason+")"))
		}
		fmt.Fprintln(f.writer)
		return
	case runner.Passed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), res.Name, cyan("("+millis(res.Duration)+")"))
	case runner.Failed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), res.Name, cyan("("+millis(res.Duration)+")"))
		fmt.Fprintf(f.writer, "    %s %s\n", red("→"), res.Reason)
		if a := res.Assertion; a != nil && !a.Passed && a.Step == assertions.StepBody {
			fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
			fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
		}
	}

	if !f.verbose {
		return
	}
	if res.Request != nil {
		fmt.Fprintf(f.writer, "    %s %s\n", res.Request.Method, res.Request.URL)
	}
	if res.Response != nil {
		fmt.Fprintf(f.writer, "    Status: %d\n", res.Response.StatusCode)
	}
	if len(res.Captures) > 0 {
		names := make([]string, 0, len(res.Captures))
		for name := range res.Captures {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(f.writer, "    Captures:\n")
		for _, name := range names {
			fmt.Fprintf(f.writer, "      %s = %v\n", name, res.Captures[name])
		}
	}
}

// FormatSource prints the heading for a run of one suite.
func (f *ConsoleFormatter) FormatSource(source string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+source))
}

// FormatResult prints every scenario and then the summary. Use FormatSummary
// alone when the scenarios were already streamed via FormatScenario.
func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	f.FormatSource(result.Source)
	for _, res := range result.Results {
		f.FormatScenario(res)
	}
	f.FormatSummary(result)
}

func (f *ConsoleFormatter) FormatSummary(result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if result.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", result.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", result.Total())
	fmt.Fprintf(f.writer, "Time:  %s\n", millis(result.Duration))
	if l := result.Latency; l.Count > 0 {
		fmt.Fprintf(f.writer, "Latency: p50 %s, p95 %s, p99 %s, max %s\n",
			millis(l.P50), millis(l.P95), millis(l.P99), millis(l.Max))
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("contractspec"), version)
}
