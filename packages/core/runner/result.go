package runner

import (
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/assertions"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
)

// Outcome is the verdict for one registered scenario.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// FailureKind says which stage of a scenario failed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransport
	FailureAssertion
	FailureCapture
	// FailureRequest means the request could not be built, so nothing was
	// sent; for example a template function rejected its arguments.
	FailureRequest
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureAssertion:
		return "assertion"
	case FailureCapture:
		return "capture"
	case FailureRequest:
		return "request"
	default:
		return ""
	}
}

// Skip reasons reported by the registry.
const (
	ReasonFilteredOut      = "filtered out"
	ReasonRunCancelled     = "run cancelled"
	ReasonBail             = "bail: previous failure"
	ReasonDependencyPrefix = "dependency not resolved: "
)

type ScenarioResult struct {
	Name     string
	Scenario *parser.Scenario
	Outcome  Outcome
	Kind     FailureKind
	// Reason is empty for passed scenarios. Failure reasons start with the
	// failure kind, e.g. "transport: dial tcp ...".
	Reason    string
	Duration  time.Duration
	Request   *http.Request
	Response  *http.Response
	Assertion *assertions.Result
	Captures  map[string]any
	Error     error
}

func (r *ScenarioResult) Passed() bool  { return r.Outcome == Passed }
func (r *ScenarioResult) Failed() bool  { return r.Outcome == Failed }
func (r *ScenarioResult) Skipped() bool { return r.Outcome == Skipped }

// Executed reports whether a request was sent for this scenario.
func (r *ScenarioResult) Executed() bool {
	return r.Outcome != Skipped
}

// RunResult holds one result per registered scenario, in registration order.
type RunResult struct {
	ID        string
	StartedAt time.Time
	Source    string
	Results   []*ScenarioResult
	Duration  time.Duration
	Passed    int
	Failed    int
	Skipped   int
	Latency   Latency
}

func (r *RunResult) add(res *ScenarioResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case Passed:
		r.Passed++
	case Failed:
		r.Failed++
	case Skipped:
		r.Skipped++
	}
}

// Total is the number of registered scenarios.
func (r *RunResult) Total() int {
	return len(r.Results)
}

// OK reports whether no scenario failed.
func (r *RunResult) OK() bool {
	return r.Failed == 0
}

// Result returns the result for the named scenario.
func (r *RunResult) Result(name string) (*ScenarioResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return nil, false
}
