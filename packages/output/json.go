package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Runs     []JSONRun   `json:"runs"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the totals across all runs
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// JSONRun is one RunAll over one source
type JSONRun struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	StartedAt string         `json:"startedAt"`
	Duration  float64        `json:"duration"`
	Summary   JSONSummary    `json:"summary"`
	Latency   *JSONLatency   `json:"latency,omitempty"`
	Scenarios []JSONScenario `json:"scenarios"`
}

// JSONLatency holds response time percentiles in milliseconds
type JSONLatency struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// JSONScenario represents a single scenario outcome
type JSONScenario struct {
	Name      string         `json:"name"`
	Outcome   string         `json:"outcome"`
	Kind      string         `json:"kind,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Duration  float64        `json:"duration"`
	Request   *JSONRequest   `json:"request,omitempty"`
	Response  *JSONResponse  `json:"response,omitempty"`
	Assertion *JSONAssertion `json:"assertion,omitempty"`
	Captures  map[string]any `json:"captures,omitempty"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONAssertion is the first failing check of a scenario
type JSONAssertion struct {
	Step     string `json:"step"`
	Subject  string `json:"subject,omitempty"`
	Operator string `json:"operator,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Message  string `json:"message"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer io.Writer
	runs   []JSONRun
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runs:   make([]JSONRun, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	run := JSONRun{
		ID:        result.ID,
		Source:    result.Source,
		StartedAt: result.StartedAt.Format(time.RFC3339),
		Duration:  ms(result.Duration),
		Summary: JSONSummary{
			Total:   result.Total(),
			Passed:  result.Passed,
			Failed:  result.Failed,
			Skipped: result.Skipped,
		},
		Scenarios: make([]JSONScenario, 0, len(result.Results)),
	}
	if l := result.Latency; l.Count > 0 {
		run.Latency = &JSONLatency{
			Count: l.Count,
			Min:   ms(l.Min),
			Mean:  ms(l.Mean),
			P50:   ms(l.P50),
			P95:   ms(l.P95),
			P99:   ms(l.P99),
			Max:   ms(l.Max),
		}
	}

	for _, r := range result.Results {
		sc := JSONScenario{
			Name:     r.Name,
			Outcome:  r.Outcome.String(),
			Kind:     r.Kind.String(),
			Reason:   r.Reason,
			Duration: ms(r.Duration),
		}

		if r.Request != nil {
			sc.Request = &JSONRequest{
				Method:  r.Request.Method,
				URL:     r.Request.URL,
				Headers: r.Request.Headers,
			}
		}

		if r.Response != nil {
			sc.Response = &JSONResponse{
				StatusCode: r.Response.StatusCode,
				Status:     r.Response.Status,
				Headers:    r.Response.Headers,
				Duration:   ms(r.Response.Duration),
			}
		}

		if a := r.Assertion; a != nil && !a.Passed {
			sc.Assertion = &JSONAssertion{
				Step:     a.Step.String(),
				Subject:  a.Subject,
				Operator: a.Operator,
				Reason:   a.Reason,
				Expected: a.Expected,
				Actual:   a.Actual,
				Message:  a.Message,
			}
		}

		if len(r.Captures) > 0 {
			sc.Captures = r.Captures
		}

		run.Scenarios = append(run.Scenarios, sc)
	}

	f.runs = append(f.runs, run)
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual scenario results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, run := range f.runs {
		summary.Total += run.Summary.Total
		summary.Passed += run.Summary.Passed
		summary.Failed += run.Summary.Failed
		summary.Skipped += run.Summary.Skipped
	}

	output := JSONOutput{
		Summary:  summary,
		Runs:     f.runs,
		Duration: ms(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
